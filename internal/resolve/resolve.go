// Package resolve composes a composition graph into one schema by compiling
// every node graph its nodes reference.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/ident"
	"github.com/agentic-research/attrgraph/internal/nodegraph"
	"github.com/agentic-research/attrgraph/internal/schema"
)

// ReferencedNodeGraphNotFoundError is returned when a composition node points
// at a node graph that does not exist.
type ReferencedNodeGraphNotFoundError struct {
	NodeID string
}

func (e *ReferencedNodeGraphNotFoundError) Error() string {
	return fmt.Sprintf("referenced node graph %q not found", e.NodeID)
}

// SourceError is returned when the node graph source fails for a reason
// other than a missing node graph.
type SourceError struct {
	NodeID string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("load node graph %s: %v", e.NodeID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NodeGraphSource loads node graphs by id. It returns an error matching
// api.ErrNotFound for unknown ids.
type NodeGraphSource interface {
	GetNodeGraph(ctx context.Context, nodeID string) (*api.NodeGraph, error)
}

// Policy controls how referenced sub-schemas enter the composed schema.
type Policy int

const (
	// RequiredFields makes every referenced sub-schema a required field.
	RequiredFields Policy = iota
	// OptionalFields makes them nullable fields defaulting to null.
	OptionalFields
)

// Resolver compiles node graphs and composition graphs.
type Resolver struct {
	source   NodeGraphSource
	walker   *nodegraph.Walker
	compiler *schema.Compiler
	policy   Policy
}

// New returns a resolver reading node graphs from source.
func New(source NodeGraphSource, walker *nodegraph.Walker, compiler *schema.Compiler, policy Policy) *Resolver {
	if walker == nil {
		walker = &nodegraph.Walker{}
	}
	if compiler == nil {
		compiler = schema.NewCompiler(schema.LastWriteWins)
	}
	return &Resolver{source: source, walker: walker, compiler: compiler, policy: policy}
}

// Compiler returns the schema compiler the resolver uses.
func (r *Resolver) Compiler() *schema.Compiler { return r.compiler }

// CompileNodeGraph walks ng and compiles the result.
func (r *Resolver) CompileNodeGraph(ng *api.NodeGraph) (*schema.Type, error) {
	className, attrs, err := r.walker.Walk(ng)
	if err != nil {
		return nil, err
	}
	return r.compiler.Compile(className, attrs)
}

// ResolveAttributes compiles an inline attribute list with no stored graphs involved.
func (r *Resolver) ResolveAttributes(className string, attrs []api.AttributeDefinition) (*schema.Type, error) {
	return r.compiler.Compile(className, attrs)
}

// Resolve compiles every node graph referenced by g and composes them into a
// schema named after g. Each sub-schema becomes a field named after its node
// graph's own name; nodes without a reference are skipped. Edges are ignored.
func (r *Resolver) Resolve(ctx context.Context, g *api.Graph) (*schema.Type, error) {
	fields := make([]*schema.Field, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeID, ok := api.NodeRef(n)
		if !ok {
			continue
		}

		ng, err := r.source.GetNodeGraph(ctx, nodeID)
		if errors.Is(err, api.ErrNotFound) {
			return nil, &ReferencedNodeGraphNotFoundError{NodeID: nodeID}
		}
		if err != nil {
			return nil, &SourceError{NodeID: nodeID, Err: err}
		}

		sub, err := r.CompileNodeGraph(ng)
		if err != nil {
			return nil, fmt.Errorf("compile node graph %s: %w", nodeID, err)
		}

		f := &schema.Field{Name: ident.Field(ng.Name), Type: sub}
		if r.policy == OptionalFields {
			f.Nullable, f.HasDefault = true, true
		} else {
			f.Required = true
		}
		fields = append(fields, f)
	}
	return r.compiler.Object(ident.Model(g.Name), fields)
}

// Package nodegraph turns a stored attribute node graph into the ordered
// attribute definitions the schema compiler consumes.
package nodegraph

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/ohler55/ojg/jp"
	"github.com/samber/lo"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/schema"
)

// ErrClassDefinitionNotFound matches every ClassDefinitionNotFoundError.
var ErrClassDefinitionNotFound = errors.New("class definition not found")

// ClassDefinitionNotFoundError is returned when a node graph has no
// classDefinition root node.
type ClassDefinitionNotFoundError struct {
	NodeGraphID string
}

func (e *ClassDefinitionNotFoundError) Error() string {
	return fmt.Sprintf("node graph %q has no %s node", e.NodeGraphID, api.NodeTypeClassDefinition)
}

func (e *ClassDefinitionNotFoundError) Is(target error) bool {
	return target == ErrClassDefinitionNotFound
}

// CycleError is returned when a node is reached again while it is still
// being expanded.
type CycleError struct {
	NodeID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("attribute node %q is its own ancestor", e.NodeID)
}

// UnknownKindError is returned for an attribute node whose type is not an
// attribute kind.
type UnknownKindError struct {
	NodeID string
	Kind   string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("attribute node %q has unknown type %q", e.NodeID, e.Kind)
}

var (
	attributePath = jp.MustParseString("$.attribute")
	classNamePath = jp.MustParseString("$.className")
)

// Walker converts node graphs to attribute definitions. The zero value uses
// schema.DefaultMaxDepth.
type Walker struct {
	MaxDepth int
}

func (w *Walker) maxDepth() int {
	if w == nil || w.MaxDepth <= 0 {
		return schema.DefaultMaxDepth
	}
	return w.MaxDepth
}

// Walk locates the classDefinition root of ng and returns the class name and
// its attributes in edge order. Nested and list_nested attributes collect the
// targets of their own outgoing edges, depth first.
//
// Edges to missing nodes and nodes without an attribute payload are skipped.
// A node reached through two parents is expanded twice; a node reached from
// one of its own descendants fails with CycleError.
func (w *Walker) Walk(ng *api.NodeGraph) (string, []api.AttributeDefinition, error) {
	root, ok := lo.Find(ng.Nodes, func(n api.Node) bool {
		return n.Type == api.NodeTypeClassDefinition
	})
	if !ok {
		return "", nil, &ClassDefinitionNotFoundError{NodeGraphID: ng.NodeID}
	}

	className, _ := classNamePath.First(root.Data).(string)
	if className == "" {
		className = ng.Name
	}

	s := newWalkState(ng, w.maxDepth())

	// The editor wires top-level attributes from the fixed marker id; older
	// graphs wired them from the root node itself.
	mains := s.children[api.RootEdgeSource]
	if root.ID != api.RootEdgeSource {
		mains = lo.Uniq(append(mains, s.children[root.ID]...))
	}

	attrs, err := s.expand(mains, 1)
	if err != nil {
		return "", nil, err
	}
	return className, attrs, nil
}

type walkState struct {
	ng       *api.NodeGraph
	index    map[string]uint32
	children map[string][]string
	onPath   *roaring.Bitmap
	maxDepth int
}

func newWalkState(ng *api.NodeGraph, maxDepth int) *walkState {
	s := &walkState{
		ng:       ng,
		index:    make(map[string]uint32, len(ng.Nodes)),
		children: make(map[string][]string),
		onPath:   roaring.New(),
		maxDepth: maxDepth,
	}
	for i, n := range ng.Nodes {
		if _, dup := s.index[n.ID]; !dup {
			s.index[n.ID] = uint32(i)
		}
	}
	for _, e := range ng.Edges {
		s.children[e.Source] = append(s.children[e.Source], e.Target)
	}
	for src, targets := range s.children {
		s.children[src] = lo.Uniq(targets)
	}
	return s
}

func (s *walkState) expand(ids []string, depth int) ([]api.AttributeDefinition, error) {
	attrs := make([]api.AttributeDefinition, 0, len(ids))
	for _, id := range ids {
		attr, ok, err := s.attribute(id, depth)
		if err != nil {
			return nil, err
		}
		if ok {
			attrs = append(attrs, attr)
		}
	}
	return attrs, nil
}

func (s *walkState) attribute(id string, depth int) (api.AttributeDefinition, bool, error) {
	pos, ok := s.index[id]
	if !ok {
		return api.AttributeDefinition{}, false, nil
	}
	if s.onPath.Contains(pos) {
		return api.AttributeDefinition{}, false, &CycleError{NodeID: id}
	}
	if depth > s.maxDepth {
		return api.AttributeDefinition{}, false, &schema.DepthExceededError{Type: id, MaxDepth: s.maxDepth}
	}

	node := s.ng.Nodes[pos]
	payload, ok := attributePath.First(node.Data).(map[string]any)
	if !ok {
		return api.AttributeDefinition{}, false, nil
	}
	attr := decodeAttribute(payload)
	if !attr.Type.Valid() {
		return api.AttributeDefinition{}, false, &UnknownKindError{NodeID: id, Kind: string(attr.Type)}
	}
	if !attr.Type.HasChildren() {
		return attr, true, nil
	}

	s.onPath.Add(pos)
	defer s.onPath.Remove(pos)

	children, err := s.expand(s.children[id], depth+1)
	if err != nil {
		return api.AttributeDefinition{}, false, err
	}
	attr.NestedAttributes = children
	return attr, true, nil
}

func decodeAttribute(m map[string]any) api.AttributeDefinition {
	var a api.AttributeDefinition
	a.Name, _ = m["name"].(string)
	kind, _ := m["type"].(string)
	a.Type = api.AttributeKind(kind)
	a.Nullable, _ = m["nullable"].(bool)
	a.Description, _ = m["description"].(string)
	if v, ok := m["defaultValue"]; ok {
		a.DefaultValue = v
	} else {
		a.DefaultValue = m["default_value"]
	}
	return a
}

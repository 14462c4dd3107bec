// Package generate runs structured generation against a compiled schema and
// keeps an audit trail of every invocation.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/metrics"
	"github.com/agentic-research/attrgraph/internal/resolve"
	"github.com/agentic-research/attrgraph/internal/schema"
)

var (
	// ErrMissingCredential is returned by generators that cannot find their API key.
	ErrMissingCredential = errors.New("generation backend credential not configured")
	// ErrEmptyResult is returned when the backend stream ends without a single instance.
	ErrEmptyResult = errors.New("generation produced no result")
)

// SchemaCompilationError wraps a failure to turn a graph into a schema.
type SchemaCompilationError struct {
	Err error
}

func (e *SchemaCompilationError) Error() string {
	return fmt.Sprintf("schema compilation failed: %v", e.Err)
}

func (e *SchemaCompilationError) Unwrap() error { return e.Err }

// BackendError wraps a failure of the generation backend.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Request is what a Generator receives.
type Request struct {
	Prompt       string
	SystemPrompt string
	Schema       *schema.Type
}

// Generator produces a stream of progressively more complete instances of
// req.Schema. The last instance yielded is the result.
type Generator interface {
	Generate(ctx context.Context, req Request) iter.Seq2[map[string]any, error]
}

// GraphSource loads composition graphs.
type GraphSource interface {
	GetGraph(ctx context.Context, graphID string) (*api.Graph, error)
}

// Recorder persists audit records.
type Recorder interface {
	InsertGenerationRecord(ctx context.Context, rec *api.GenerationRecord) error
}

// Result is a successful generation.
type Result struct {
	GraphID  string         `json:"graph_id,omitempty"`
	RecordID string         `json:"record_id,omitempty"`
	Result   map[string]any `json:"result"`
	Schema   *schema.Type   `json:"schema"`
}

// Invoker ties graph resolution, a Generator and the audit trail together.
type Invoker struct {
	graphs   GraphSource
	resolver *resolve.Resolver
	gen      Generator
	records  Recorder
	logger   *slog.Logger
}

// NewInvoker returns an invoker. records may be nil to disable auditing.
func NewInvoker(graphs GraphSource, resolver *resolve.Resolver, gen Generator, records Recorder, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{graphs: graphs, resolver: resolver, gen: gen, records: records, logger: logger.With("component", "generate")}
}

// Invoke generates an instance of the schema compiled from graphID.
func (inv *Invoker) Invoke(ctx context.Context, graphID, userPrompt string) (*Result, error) {
	return inv.Stream(ctx, graphID, userPrompt, nil)
}

// Stream is Invoke with every partial instance passed to onPartial as it
// arrives. An error from onPartial aborts the generation.
func (inv *Invoker) Stream(ctx context.Context, graphID, userPrompt string, onPartial func(map[string]any) error) (*Result, error) {
	g, err := inv.graphs.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}

	rec := &api.GenerationRecord{
		GraphID:        g.GraphID,
		Name:           g.Name,
		Nodes:          g.Nodes,
		Edges:          g.Edges,
		Viewport:       g.Viewport,
		SystemPrompt:   g.SystemPrompt,
		UserPrompt:     userPrompt,
		CompiledSchema: json.RawMessage("{}"),
	}

	// 1. Compile
	start := time.Now()
	typ, err := inv.resolver.Resolve(ctx, g)
	metrics.RecordCompile(start, err)
	if err != nil {
		rec.ErrorMessage = err.Error()
		inv.record(ctx, rec)
		var srcErr *resolve.SourceError
		if errors.As(err, &srcErr) {
			return nil, err
		}
		return nil, &SchemaCompilationError{Err: err}
	}
	if raw, err := json.Marshal(typ); err == nil {
		rec.CompiledSchema = raw
	}

	// 2. Generate
	out, err := inv.run(ctx, Request{Prompt: userPrompt, SystemPrompt: g.SystemPrompt, Schema: typ}, onPartial)
	if err != nil {
		rec.ErrorMessage = err.Error()
		inv.record(ctx, rec)
		return nil, err
	}

	// 3. Record
	rec.GenerationResult = out
	rec.Success = true
	inv.record(ctx, rec)

	inv.logger.Info("generation complete", "graph_id", graphID, "record_id", rec.ID)
	return &Result{GraphID: graphID, RecordID: rec.ID, Result: out, Schema: typ}, nil
}

// InvokeAdHoc generates against an inline attribute list. Nothing is recorded.
func (inv *Invoker) InvokeAdHoc(ctx context.Context, className string, attrs []api.AttributeDefinition, prompt, systemPrompt string) (*Result, error) {
	start := time.Now()
	typ, err := inv.resolver.ResolveAttributes(className, attrs)
	metrics.RecordCompile(start, err)
	if err != nil {
		return nil, &SchemaCompilationError{Err: err}
	}

	out, err := inv.run(ctx, Request{Prompt: prompt, SystemPrompt: systemPrompt, Schema: typ}, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Result: out, Schema: typ}, nil
}

func (inv *Invoker) run(ctx context.Context, req Request, onPartial func(map[string]any) error) (map[string]any, error) {
	start := time.Now()
	out, err := inv.collect(ctx, req, onPartial)
	metrics.RecordGeneration(start, err)
	return out, err
}

func (inv *Invoker) collect(ctx context.Context, req Request, onPartial func(map[string]any) error) (map[string]any, error) {
	var last map[string]any
	for partial, err := range inv.gen.Generate(ctx, req) {
		if err != nil {
			if errors.Is(err, ErrMissingCredential) {
				return nil, err
			}
			return nil, &BackendError{Err: err}
		}
		last = partial
		if onPartial != nil {
			if err := onPartial(partial); err != nil {
				return nil, err
			}
		}
	}
	if last == nil {
		return nil, &BackendError{Err: ErrEmptyResult}
	}

	applied, err := req.Schema.Apply(last)
	if err != nil {
		return nil, &BackendError{Err: fmt.Errorf("result does not match schema: %w", err)}
	}
	out, _ := applied.(map[string]any)
	return out, nil
}

func (inv *Invoker) record(ctx context.Context, rec *api.GenerationRecord) {
	if inv.records == nil {
		return
	}
	// The audit write must land even if the caller went away.
	if err := inv.records.InsertGenerationRecord(context.WithoutCancel(ctx), rec); err != nil {
		inv.logger.Error("failed to record generation", "graph_id", rec.GraphID, "error", err)
	}
}

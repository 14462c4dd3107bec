// Package mcptools exposes schema compilation, generation and publishing as
// MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/attrgraph/internal/generate"
	"github.com/agentic-research/attrgraph/internal/publish"
	"github.com/agentic-research/attrgraph/internal/resolve"
	"github.com/agentic-research/attrgraph/internal/schema"
	"github.com/agentic-research/attrgraph/internal/store"
)

// Deps are the services the tools call into.
type Deps struct {
	Store    *store.Store
	Publish  *publish.Manager
	Resolver *resolve.Resolver
	Invoker  *generate.Invoker
	Logger   *slog.Logger
}

// Tools implements the MCP tool handlers.
type Tools struct {
	d Deps
}

// NewServer returns an MCP server with every tool registered.
func NewServer(d Deps, version string) *server.MCPServer {
	s := server.NewMCPServer("attrgraph", version, server.WithToolCapabilities(false))
	New(d).Register(s)
	return s
}

// New returns the tool set.
func New(d Deps) *Tools {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", "mcp")
	return &Tools{d: d}
}

// Register adds every tool to s.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("compile_schema",
		mcp.WithDescription("Compile a stored composition graph or node graph into a schema"),
		mcp.WithString("graph_id", mcp.Description("Composition graph to compile")),
		mcp.WithString("node_id", mcp.Description("Node graph to compile instead of a composition graph")),
		mcp.WithString("format", mcp.Description("json (default), strict, yaml or go")),
	), t.CompileSchema)

	s.AddTool(mcp.NewTool("generate",
		mcp.WithDescription("Generate an instance of a graph's compiled schema from a prompt"),
		mcp.WithString("graph_id", mcp.Required()),
		mcp.WithString("prompt", mcp.Required()),
	), t.Generate)

	s.AddTool(mcp.NewTool("publish",
		mcp.WithDescription("Publish the current state of a graph as a new immutable version"),
		mcp.WithString("graph_id", mcp.Required()),
		mcp.WithBoolean("set_active", mcp.Description("Make the new version the active one")),
	), t.Publish)

	s.AddTool(mcp.NewTool("list_versions",
		mcp.WithDescription("List a graph's published versions, newest first"),
		mcp.WithString("graph_id", mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of versions (default 5)")),
	), t.ListVersions)

	s.AddTool(mcp.NewTool("activate_version",
		mcp.WithDescription("Mark one published version as the active one"),
		mcp.WithString("graph_id", mcp.Required()),
		mcp.WithNumber("version", mcp.Required()),
	), t.ActivateVersion)

	s.AddTool(mcp.NewTool("restore_version",
		mcp.WithDescription("Overwrite a graph and its node graphs with a published version"),
		mcp.WithString("graph_id", mcp.Required()),
		mcp.WithNumber("version", mcp.Required()),
	), t.RestoreVersion)
}

func (t *Tools) CompileSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID := req.GetString("graph_id", "")
	nodeID := req.GetString("node_id", "")

	var (
		typ *schema.Type
		err error
	)
	switch {
	case nodeID != "":
		ng, gerr := t.d.Store.GetNodeGraph(ctx, nodeID)
		if gerr != nil {
			return toolError(gerr), nil
		}
		typ, err = t.d.Resolver.CompileNodeGraph(ng)
	case graphID != "":
		g, gerr := t.d.Store.GetGraph(ctx, graphID)
		if gerr != nil {
			return toolError(gerr), nil
		}
		typ, err = t.d.Resolver.Resolve(ctx, g)
	default:
		return mcp.NewToolResultError("graph_id or node_id required"), nil
	}
	if err != nil {
		return toolError(err), nil
	}

	switch format := req.GetString("format", "json"); format {
	case "json":
		return jsonResult(typ.JSONSchema())
	case "strict":
		return jsonResult(typ.StrictJSONSchema())
	case "yaml":
		out, err := typ.YAML()
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	case "go":
		out, err := typ.GoSource("models")
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", format)), nil
	}
}

func (t *Tools) Generate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, err := req.RequireString("graph_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.d.Invoker.Invoke(ctx, graphID, prompt)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res.Result)
}

func (t *Tools) Publish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, err := req.RequireString("graph_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.d.Publish.Publish(ctx, graphID, req.GetBool("set_active", false))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (t *Tools) ListVersions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, err := req.RequireString("graph_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	versions, err := t.d.Publish.History(ctx, graphID, req.GetInt("limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(versions)
}

func (t *Tools) ActivateVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, version, err := graphVersion(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.d.Publish.SetActive(ctx, graphID, version); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Version %d is now active", version)), nil
}

func (t *Tools) RestoreVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, version, err := graphVersion(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := t.d.Publish.Restore(ctx, graphID, version)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(g)
}

func graphVersion(req mcp.CallToolRequest) (string, int, error) {
	graphID, err := req.RequireString("graph_id")
	if err != nil {
		return "", 0, err
	}
	version, err := req.RequireInt("version")
	if err != nil {
		return "", 0, err
	}
	if version < 1 {
		return "", 0, errors.New("version must be a positive integer")
	}
	return graphID, version, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError reports err to the client as a failed tool call.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

package server

import (
	"errors"
	"net/http"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/generate"
	"github.com/agentic-research/attrgraph/internal/resolve"
	"github.com/agentic-research/attrgraph/internal/schema"
)

// ----- Composition graphs -----

func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	g, err := h.store.GetGraph(r.Context(), graphID)
	if errors.Is(err, api.ErrNotFound) {
		// Unsaved graphs read as an empty placeholder so editors can poll.
		writeJSON(w, http.StatusOK, api.NewPlaceholderGraph(graphID, h.now().UTC()))
		return
	}
	if err != nil {
		h.fail(w, r, "failed to load graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) SaveGraph(w http.ResponseWriter, r *http.Request) {
	var upd api.GraphUpdate
	if err := decodeBody(w, r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if upd.Nodes == nil || upd.Edges == nil {
		writeError(w, http.StatusBadRequest, "nodes and edges required", nil)
		return
	}

	g, err := h.store.SaveGraph(r.Context(), r.PathValue("graph_id"), upd)
	if err != nil {
		h.fail(w, r, "failed to save graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) DeleteGraph(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	if err := h.store.DeleteGraph(r.Context(), graphID); err != nil {
		h.fail(w, r, "graph not found", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Graph deleted successfully", GraphID: graphID})
}

func (h *Handler) ListNodeGraphs(w http.ResponseWriter, r *http.Request) {
	defs, err := h.store.ListNodeGraphs(r.Context(), r.PathValue("graph_id"))
	if err != nil {
		h.fail(w, r, "failed to list node graphs", err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (h *Handler) GraphSchema(w http.ResponseWriter, r *http.Request) {
	g, err := h.store.GetGraph(r.Context(), r.PathValue("graph_id"))
	if err != nil {
		h.fail(w, r, "graph not found", err)
		return
	}
	typ, err := h.resolver.Resolve(r.Context(), g)
	if err != nil {
		var srcErr *resolve.SourceError
		if !errors.As(err, &srcErr) {
			err = &generate.SchemaCompilationError{Err: err}
		}
		h.fail(w, r, "failed to compile graph", err)
		return
	}
	h.writeSchema(w, r, typ)
}

// ----- Node graphs -----

func (h *Handler) GetNodeGraph(w http.ResponseWriter, r *http.Request) {
	ng, err := h.store.GetNodeGraph(r.Context(), r.PathValue("node_id"))
	if err != nil {
		h.fail(w, r, "node graph not found", err)
		return
	}
	writeJSON(w, http.StatusOK, ng)
}

func (h *Handler) SaveNodeGraph(w http.ResponseWriter, r *http.Request) {
	var upd api.NodeGraphUpdate
	if err := decodeBody(w, r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if upd.GraphID == "" || upd.Nodes == nil || upd.Edges == nil {
		writeError(w, http.StatusBadRequest, "graph_id, nodes and edges required", nil)
		return
	}

	ng, err := h.store.SaveNodeGraph(r.Context(), r.PathValue("node_id"), upd)
	if err != nil {
		h.fail(w, r, "failed to save node graph", err)
		return
	}
	writeJSON(w, http.StatusOK, ng)
}

func (h *Handler) DeleteNodeGraph(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("node_id")
	if err := h.store.DeleteNodeGraph(r.Context(), nodeID); err != nil {
		h.fail(w, r, "node graph not found", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "PCD deleted successfully", NodeID: nodeID})
}

func (h *Handler) NodeGraphSchema(w http.ResponseWriter, r *http.Request) {
	ng, err := h.store.GetNodeGraph(r.Context(), r.PathValue("node_id"))
	if err != nil {
		h.fail(w, r, "node graph not found", err)
		return
	}
	typ, err := h.resolver.CompileNodeGraph(ng)
	if err != nil {
		h.fail(w, r, "failed to compile node graph", &generate.SchemaCompilationError{Err: err})
		return
	}
	h.writeSchema(w, r, typ)
}

// writeSchema renders typ as JSON Schema, or as YAML or Go source when
// ?format asks for it.
func (h *Handler) writeSchema(w http.ResponseWriter, r *http.Request, typ *schema.Type) {
	q := r.URL.Query()
	switch q.Get("format") {
	case "", "json":
		strict, err := queryBool(r, "strict")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid strict flag", err)
			return
		}
		if strict {
			writeJSON(w, http.StatusOK, typ.StrictJSONSchema())
			return
		}
		writeJSON(w, http.StatusOK, typ.JSONSchema())
	case "yaml":
		out, err := typ.YAML()
		if err != nil {
			h.fail(w, r, "failed to render schema", err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(out)
	case "go":
		pkg := q.Get("package")
		if pkg == "" {
			pkg = "models"
		}
		out, err := typ.GoSource(pkg)
		if err != nil {
			h.fail(w, r, "failed to render schema", err)
			return
		}
		w.Header().Set("Content-Type", "text/x-go; charset=utf-8")
		_, _ = w.Write(out)
	default:
		writeError(w, http.StatusBadRequest, "unknown schema format", nil)
	}
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentic-research/attrgraph/api"
)

const defaultGenerationLimit = 20

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// adHocRequest accepts both the snake_case and the camelCase field names.
type adHocRequest struct {
	ClassName      string                    `json:"class_name"`
	ClassNameCamel string                    `json:"className"`
	Attributes     []api.AttributeDefinition `json:"attributes"`
	Prompt         string                    `json:"prompt"`
	SystemPrompt   string                    `json:"system_prompt"`
}

type adHocResponse struct {
	Result         map[string]any `json:"result"`
	GeneratedClass string         `json:"generatedClass"`
}

type generationsResponse struct {
	GraphID string                 `json:"graph_id"`
	Records []api.GenerationRecord `json:"records"`
}

// streamMessage is one frame sent over the generation WebSocket.
type streamMessage struct {
	Type     string         `json:"type"` // partial, result or error
	Data     map[string]any `json:"data,omitempty"`
	RecordID string         `json:"record_id,omitempty"`
	Error    string         `json:"error,omitempty"`
	Details  string         `json:"details,omitempty"`
	Status   int            `json:"status,omitempty"`
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt required", nil)
		return
	}

	res, err := h.invoker.Invoke(r.Context(), r.PathValue("graph_id"), req.Prompt)
	if err != nil {
		h.fail(w, r, "generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GenerateAdHoc(w http.ResponseWriter, r *http.Request) {
	var req adHocRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	className := req.ClassName
	if className == "" {
		className = req.ClassNameCamel
	}
	if className == "" || req.Attributes == nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "class_name, attributes and prompt required", nil)
		return
	}

	res, err := h.invoker.InvokeAdHoc(r.Context(), className, req.Attributes, req.Prompt, req.SystemPrompt)
	if err != nil {
		h.fail(w, r, "generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, adHocResponse{Result: res.Result, GeneratedClass: className})
}

func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultGenerationLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}
	graphID := r.PathValue("graph_id")
	recs, err := h.store.ListGenerationRecords(r.Context(), graphID, limit)
	if err != nil {
		h.fail(w, r, "failed to list generations", err)
		return
	}
	writeJSON(w, http.StatusOK, generationsResponse{GraphID: graphID, Records: recs})
}

// GenerateStream upgrades to a WebSocket, reads one {"prompt": ...} message
// and streams every partial instance followed by the final result.
func (h *Handler) GenerateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader already replied
	}
	defer func() { _ = conn.Close() }()

	graphID := r.PathValue("graph_id")
	_ = conn.SetReadDeadline(time.Now().Add(time.Minute))
	var req generateRequest
	if err := conn.ReadJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		if err == nil {
			err = errors.New("prompt required")
		}
		h.sendStreamError(conn, http.StatusBadRequest, "invalid request", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// A failed write aborts the generation.
	res, err := h.invoker.Stream(r.Context(), graphID, req.Prompt, func(partial map[string]any) error {
		return conn.WriteJSON(streamMessage{Type: "partial", Data: partial})
	})
	if err != nil {
		h.sendStreamError(conn, statusFor(err), "generation failed", err)
		return
	}

	_ = conn.WriteJSON(streamMessage{Type: "result", Data: res.Result, RecordID: res.RecordID})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Handler) sendStreamError(conn *websocket.Conn, status int, msg string, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	}
	frame, _ := json.Marshal(streamMessage{Type: "error", Error: msg, Details: err.Error(), Status: status})
	_ = conn.WriteMessage(websocket.TextMessage, frame)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

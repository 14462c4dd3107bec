package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/agentic-research/attrgraph/api"
)

// snapshotResponse is a published snapshot in the graph-state shape editors
// load, with updated_at set to the publish time.
type snapshotResponse struct {
	*api.PublishedSnapshot
	UpdatedAt time.Time `json:"updated_at"`
}

func newSnapshotResponse(s *api.PublishedSnapshot) snapshotResponse {
	return snapshotResponse{PublishedSnapshot: s, UpdatedAt: s.PublishedAt}
}

type versionsResponse struct {
	GraphID  string            `json:"graph_id"`
	Versions []api.VersionInfo `json:"versions"`
}

type restoreResponse struct {
	Message string     `json:"message"`
	GraphID string     `json:"graph_id"`
	Version int        `json:"version"`
	Graph   *api.Graph `json:"graph"`
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	setActive, err := queryBool(r, "set_active")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid set_active flag", err)
		return
	}
	res, err := h.publish.Publish(r.Context(), r.PathValue("graph_id"), setActive)
	if err != nil {
		h.fail(w, r, "failed to publish graph", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) LatestPublished(w http.ResponseWriter, r *http.Request) {
	snap, err := h.publish.Latest(r.Context(), r.PathValue("graph_id"))
	if err != nil {
		h.fail(w, r, "no published version found", err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

func (h *Handler) ActivePublished(w http.ResponseWriter, r *http.Request) {
	snap, err := h.publish.Active(r.Context(), r.PathValue("graph_id"))
	if err != nil {
		h.fail(w, r, "no active version found", err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

func (h *Handler) LatestVersion(w http.ResponseWriter, r *http.Request) {
	lv, err := h.publish.LatestVersion(r.Context(), r.PathValue("graph_id"))
	if err != nil {
		h.fail(w, r, "failed to load latest version", err)
		return
	}
	writeJSON(w, http.StatusOK, lv)
}

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", h.cfg.VersionHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}
	graphID := r.PathValue("graph_id")
	versions, err := h.publish.History(r.Context(), graphID, limit)
	if err != nil {
		h.fail(w, r, "failed to list versions", err)
		return
	}
	writeJSON(w, http.StatusOK, versionsResponse{GraphID: graphID, Versions: versions})
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version", err)
		return
	}
	snap, err := h.publish.Get(r.Context(), r.PathValue("graph_id"), version)
	if err != nil {
		h.fail(w, r, "version not found", err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

func (h *Handler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version", err)
		return
	}
	graphID := r.PathValue("graph_id")
	if err := h.publish.DeleteVersion(r.Context(), graphID, version); err != nil {
		h.fail(w, r, "version not found", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Version %d deleted successfully", version),
		GraphID: graphID,
		Version: version,
	})
}

func (h *Handler) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version", err)
		return
	}
	graphID := r.PathValue("graph_id")
	if err := h.publish.SetActive(r.Context(), graphID, version); err != nil {
		h.fail(w, r, "version not found", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Version %d is now active", version),
		GraphID: graphID,
		Version: version,
	})
}

func (h *Handler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version", err)
		return
	}
	graphID := r.PathValue("graph_id")
	g, err := h.publish.Restore(r.Context(), graphID, version)
	if err != nil {
		h.fail(w, r, "failed to restore version", err)
		return
	}
	writeJSON(w, http.StatusOK, restoreResponse{
		Message: fmt.Sprintf("Graph restored to version %d", version),
		GraphID: graphID,
		Version: version,
		Graph:   g,
	})
}

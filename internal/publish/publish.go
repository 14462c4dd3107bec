// Package publish captures graphs and their node graphs as immutable
// numbered versions and manages the active version of each graph.
package publish

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lukechampine.com/blake3"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/metrics"
	"github.com/agentic-research/attrgraph/internal/store"
)

// DefaultHistoryLimit is the number of versions History returns when no limit is given.
const DefaultHistoryLimit = 5

var (
	// ErrNoPublishedVersion is returned by Latest and Active when nothing matches.
	ErrNoPublishedVersion = fmt.Errorf("no published version: %w", api.ErrNotFound)
	// ErrDigestMismatch is returned when a stored snapshot no longer matches its digest.
	ErrDigestMismatch = errors.New("snapshot digest mismatch")
)

// GraphNotFoundError is returned when publishing a graph that was never saved.
type GraphNotFoundError struct {
	GraphID string
}

func (e *GraphNotFoundError) Error() string {
	return fmt.Sprintf("graph %q not found", e.GraphID)
}

func (e *GraphNotFoundError) Is(target error) bool { return target == api.ErrNotFound }

// VersionNotFoundError is returned when a version of a graph does not exist.
type VersionNotFoundError struct {
	GraphID string
	Version int
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("version %d of graph %q not found", e.Version, e.GraphID)
}

func (e *VersionNotFoundError) Is(target error) bool { return target == api.ErrNotFound }

// Options tune a Manager.
type Options struct {
	// HistoryLimit replaces DefaultHistoryLimit when positive.
	HistoryLimit int
	// Serialize makes writers to the same graph wait for each other in-process.
	Serialize bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager implements publish, activate, restore and delete of versions.
// Every mutation runs in one store transaction.
type Manager struct {
	store  *store.Store
	logger *slog.Logger
	locks  *keyedMutex
	opts   Options
}

// NewManager returns a manager over s.
func NewManager(s *store.Store, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:  s,
		logger: logger.With("component", "publish"),
		locks:  newKeyedMutex(),
		opts:   opts,
	}
}

// Result describes a newly published version.
type Result struct {
	GraphID     string    `json:"graph_id"`
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
	IsActive    bool      `json:"is_active"`
	Message     string    `json:"message"`
}

func (m *Manager) lock(graphID string) func() {
	if !m.opts.Serialize {
		return func() {}
	}
	return m.locks.Lock(graphID)
}

// Publish snapshots the graph and every node graph it owns as the next
// version. With setActive the new version becomes the only active one.
func (m *Manager) Publish(ctx context.Context, graphID string, setActive bool) (*Result, error) {
	defer m.lock(graphID)()

	var snap *api.PublishedSnapshot
	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		// 1. Read the live graph and its node graphs.
		g, err := tx.GetGraph(ctx, graphID)
		if errors.Is(err, store.ErrNotFound) {
			return &GraphNotFoundError{GraphID: graphID}
		}
		if err != nil {
			return err
		}
		defs, err := tx.ListNodeGraphs(ctx, graphID)
		if err != nil {
			return err
		}

		// 2. Number the version.
		latest, err := tx.MaxVersion(ctx, graphID)
		if err != nil {
			return err
		}

		snap = &api.PublishedSnapshot{
			GraphID:         graphID,
			Version:         latest + 1,
			Name:            g.Name,
			Nodes:           g.Nodes,
			Edges:           g.Edges,
			Viewport:        g.Viewport,
			SystemPrompt:    g.SystemPrompt,
			NodeDefinitions: defs,
			PublishedAt:     m.opts.Now().UTC(),
			IsActive:        setActive,
		}
		if snap.Digest, err = Digest(snap); err != nil {
			return err
		}

		// 3. Flip siblings before inserting so the active index never sees two.
		if setActive {
			if err := tx.DeactivateAll(ctx, graphID); err != nil {
				return err
			}
		}
		return tx.InsertSnapshot(ctx, snap)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPublish()
	m.logger.Info("graph published", "graph_id", graphID, "version", snap.Version,
		"node_graphs", len(snap.NodeDefinitions), "active", snap.IsActive)

	return &Result{
		GraphID:     graphID,
		Version:     snap.Version,
		Name:        snap.Name,
		PublishedAt: snap.PublishedAt,
		IsActive:    snap.IsActive,
		Message:     fmt.Sprintf("Graph published successfully as version %d", snap.Version),
	}, nil
}

// SetActive makes version the only active version of graphID.
func (m *Manager) SetActive(ctx context.Context, graphID string, version int) error {
	defer m.lock(graphID)()

	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetSnapshot(ctx, graphID, version); err != nil {
			return m.versionErr(err, graphID, version)
		}
		if err := tx.DeactivateAll(ctx, graphID); err != nil {
			return err
		}
		return tx.SetActive(ctx, graphID, version)
	})
	if err != nil {
		return err
	}
	m.logger.Info("version activated", "graph_id", graphID, "version", version)
	return nil
}

// Restore overwrites the live graph's name, nodes, edges and viewport with
// version and replaces all of its node graphs with the snapshotted ones.
// A graph deleted since the publish is recreated.
func (m *Manager) Restore(ctx context.Context, graphID string, version int) (*api.Graph, error) {
	defer m.lock(graphID)()

	var (
		restored *api.Graph
		defs     int
	)
	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		snap, err := tx.GetSnapshot(ctx, graphID, version)
		if err != nil {
			return m.versionErr(err, graphID, version)
		}
		if err := Verify(snap); err != nil {
			return err
		}

		now := m.opts.Now().UTC()
		g, err := tx.GetGraph(ctx, graphID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			g = &api.Graph{GraphID: graphID, SystemPrompt: snap.SystemPrompt, CreatedAt: now}
		case err != nil:
			return err
		}
		g.Name = snap.Name
		g.Nodes = snap.Nodes
		g.Edges = snap.Edges
		g.Viewport = snap.Viewport
		g.UpdatedAt = now

		if err := tx.PutGraph(ctx, g); err != nil {
			return err
		}
		if err := tx.ReplaceNodeGraphs(ctx, graphID, snap.NodeDefinitions); err != nil {
			return err
		}
		restored, defs = g, len(snap.NodeDefinitions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("version restored", "graph_id", graphID, "version", version,
		"node_graphs", defs)
	return restored, nil
}

// DeleteVersion removes one version. The active flag of the others is untouched.
func (m *Manager) DeleteVersion(ctx context.Context, graphID string, version int) error {
	defer m.lock(graphID)()

	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		return m.versionErr(tx.DeleteSnapshot(ctx, graphID, version), graphID, version)
	})
	if err != nil {
		return err
	}
	m.logger.Info("version deleted", "graph_id", graphID, "version", version)
	return nil
}

// Get returns one version.
func (m *Manager) Get(ctx context.Context, graphID string, version int) (*api.PublishedSnapshot, error) {
	snap, err := m.store.GetSnapshot(ctx, graphID, version)
	if err != nil {
		return nil, m.versionErr(err, graphID, version)
	}
	return snap, nil
}

// Latest returns the highest version of graphID.
func (m *Manager) Latest(ctx context.Context, graphID string) (*api.PublishedSnapshot, error) {
	snap, err := m.store.LatestSnapshot(ctx, graphID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPublishedVersion
	}
	return snap, err
}

// Active returns the active version of graphID.
func (m *Manager) Active(ctx context.Context, graphID string) (*api.PublishedSnapshot, error) {
	snap, err := m.store.ActiveSnapshot(ctx, graphID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPublishedVersion
	}
	return snap, err
}

// LatestVersion reports the newest version number and publish time, with
// null fields when graphID was never published.
func (m *Manager) LatestVersion(ctx context.Context, graphID string) (*api.LatestVersion, error) {
	versions, err := m.store.ListVersions(ctx, graphID, 1)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return &api.LatestVersion{}, nil
	}
	v := versions[0]
	return &api.LatestVersion{Version: &v.Version, PublishedAt: &v.PublishedAt}, nil
}

// History lists versions newest first, at most limit of them (the
// configured default when limit is not positive).
func (m *Manager) History(ctx context.Context, graphID string, limit int) ([]api.VersionInfo, error) {
	if limit <= 0 {
		limit = m.opts.HistoryLimit
	}
	return m.store.ListVersions(ctx, graphID, limit)
}

// Snapshots returns every version of graphID, oldest first.
func (m *Manager) Snapshots(ctx context.Context, graphID string) ([]api.PublishedSnapshot, error) {
	return m.store.ListSnapshots(ctx, graphID)
}

// Import stores snap as an inactive version after checking its digest. It
// reports false when the version already exists; existing versions are never
// overwritten.
func (m *Manager) Import(ctx context.Context, snap *api.PublishedSnapshot) (bool, error) {
	if err := Verify(snap); err != nil {
		return false, err
	}
	defer m.lock(snap.GraphID)()

	imported := *snap
	imported.IsActive = false
	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertSnapshot(ctx, &imported)
	})
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.logger.Info("version imported", "graph_id", snap.GraphID, "version", snap.Version)
	return true, nil
}

func (m *Manager) versionErr(err error, graphID string, version int) error {
	if errors.Is(err, store.ErrNotFound) {
		return &VersionNotFoundError{GraphID: graphID, Version: version}
	}
	return err
}

type digestPayload struct {
	GraphID         string          `json:"graph_id"`
	Version         int             `json:"version"`
	Name            string          `json:"name"`
	Nodes           []api.Node      `json:"nodes"`
	Edges           []api.Edge      `json:"edges"`
	Viewport        map[string]any  `json:"viewport"`
	SystemPrompt    string          `json:"system_prompt"`
	NodeDefinitions []api.NodeGraph `json:"node_definitions"`
}

// Digest is the hex blake3 hash of the snapshot's immutable content.
// encoding/json sorts map keys, so equal content always hashes equal.
func Digest(snap *api.PublishedSnapshot) (string, error) {
	raw, err := json.Marshal(digestPayload{
		GraphID:         snap.GraphID,
		Version:         snap.Version,
		Name:            snap.Name,
		Nodes:           snap.Nodes,
		Edges:           snap.Edges,
		Viewport:        snap.Viewport,
		SystemPrompt:    snap.SystemPrompt,
		NodeDefinitions: snap.NodeDefinitions,
	})
	if err != nil {
		return "", fmt.Errorf("digest %s v%d: %w", snap.GraphID, snap.Version, err)
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks snap against its stored digest.
func Verify(snap *api.PublishedSnapshot) error {
	digest, err := Digest(snap)
	if err != nil {
		return err
	}
	if digest != snap.Digest {
		return fmt.Errorf("%s v%d: %w", snap.GraphID, snap.Version, ErrDigestMismatch)
	}
	return nil
}

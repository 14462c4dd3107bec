package store

import (
	"context"
	"fmt"

	"github.com/agentic-research/attrgraph/api"
)

const snapshotColumns = `graph_id, version, name, nodes, edges, viewport, system_prompt,
	node_definitions, digest, published_at, is_active`

func (q *queries) scanSnapshot(row rowScanner) (*api.PublishedSnapshot, error) {
	var (
		snap                   api.PublishedSnapshot
		nodes, edges, viewport string
		defs                   []byte
		publishedAt            int64
	)
	err := row.Scan(&snap.GraphID, &snap.Version, &snap.Name, &nodes, &edges, &viewport,
		&snap.SystemPrompt, &defs, &snap.Digest, &publishedAt, &snap.IsActive)
	if err != nil {
		return nil, notFound(err)
	}
	if err := decodeJSON(nodes, &snap.Nodes); err != nil {
		return nil, fmt.Errorf("snapshot %s v%d nodes: %w", snap.GraphID, snap.Version, err)
	}
	if err := decodeJSON(edges, &snap.Edges); err != nil {
		return nil, fmt.Errorf("snapshot %s v%d edges: %w", snap.GraphID, snap.Version, err)
	}
	if err := decodeJSON(viewport, &snap.Viewport); err != nil {
		return nil, fmt.Errorf("snapshot %s v%d viewport: %w", snap.GraphID, snap.Version, err)
	}
	if err := q.codec.decompressJSON(defs, &snap.NodeDefinitions); err != nil {
		return nil, fmt.Errorf("snapshot %s v%d node definitions: %w", snap.GraphID, snap.Version, err)
	}
	snap.Nodes, snap.Edges = orEmpty(snap.Nodes), orEmpty(snap.Edges)
	snap.NodeDefinitions = orEmpty(snap.NodeDefinitions)
	snap.PublishedAt = fromNanos(publishedAt)
	return &snap, nil
}

// MaxVersion returns the highest published version of graphID, or 0.
func (q *queries) MaxVersion(ctx context.Context, graphID string) (int, error) {
	var v int
	err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM published_graphs WHERE graph_id = ?`, graphID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("max version of %s: %w", graphID, err)
	}
	return v, nil
}

// InsertSnapshot stores a new immutable version. A duplicate (graph_id,
// version) or a second active version fails with ErrConflict.
func (q *queries) InsertSnapshot(ctx context.Context, snap *api.PublishedSnapshot) error {
	nodes, err := encodeJSON(orEmpty(snap.Nodes))
	if err != nil {
		return fmt.Errorf("encode nodes: %w", err)
	}
	edges, err := encodeJSON(orEmpty(snap.Edges))
	if err != nil {
		return fmt.Errorf("encode edges: %w", err)
	}
	viewport, err := encodeJSON(snap.Viewport)
	if err != nil {
		return fmt.Errorf("encode viewport: %w", err)
	}
	defs, err := q.codec.compressJSON(orEmpty(snap.NodeDefinitions))
	if err != nil {
		return fmt.Errorf("encode node definitions: %w", err)
	}

	_, err = q.q.ExecContext(ctx, `INSERT INTO published_graphs (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.GraphID, snap.Version, snap.Name, nodes, edges, viewport, snap.SystemPrompt,
		defs, snap.Digest, nanos(snap.PublishedAt), snap.IsActive,
	)
	if isConstraint(err) {
		return fmt.Errorf("insert %s v%d: %w", snap.GraphID, snap.Version, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert %s v%d: %w", snap.GraphID, snap.Version, err)
	}
	return nil
}

// GetSnapshot returns one version of graphID.
func (q *queries) GetSnapshot(ctx context.Context, graphID string, version int) (*api.PublishedSnapshot, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM published_graphs WHERE graph_id = ? AND version = ?`, graphID, version)
	return q.scanSnapshot(row)
}

// LatestSnapshot returns the highest version of graphID.
func (q *queries) LatestSnapshot(ctx context.Context, graphID string) (*api.PublishedSnapshot, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM published_graphs WHERE graph_id = ? ORDER BY version DESC LIMIT 1`, graphID)
	return q.scanSnapshot(row)
}

// ActiveSnapshot returns the active version of graphID.
func (q *queries) ActiveSnapshot(ctx context.Context, graphID string) (*api.PublishedSnapshot, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM published_graphs WHERE graph_id = ? AND is_active = 1`, graphID)
	return q.scanSnapshot(row)
}

// ListSnapshots returns every version of graphID in ascending order.
func (q *queries) ListSnapshots(ctx context.Context, graphID string) ([]api.PublishedSnapshot, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM published_graphs WHERE graph_id = ? ORDER BY version`, graphID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []api.PublishedSnapshot{}
	for rows.Next() {
		snap, err := q.scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// ListVersions returns history entries of graphID, newest first. A
// non-positive limit returns every version.
func (q *queries) ListVersions(ctx context.Context, graphID string, limit int) ([]api.VersionInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.q.QueryContext(ctx, `
		SELECT version, name, published_at, is_active FROM published_graphs
		WHERE graph_id = ? ORDER BY version DESC LIMIT ?`, graphID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []api.VersionInfo{}
	for rows.Next() {
		var (
			v           api.VersionInfo
			publishedAt int64
		)
		if err := rows.Scan(&v.Version, &v.Name, &publishedAt, &v.IsActive); err != nil {
			return nil, err
		}
		v.PublishedAt = fromNanos(publishedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeactivateAll clears the active flag on every version of graphID.
func (q *queries) DeactivateAll(ctx context.Context, graphID string) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE published_graphs SET is_active = 0 WHERE graph_id = ? AND is_active = 1`, graphID)
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", graphID, err)
	}
	return nil
}

// SetActive marks one version active. Callers deactivate siblings first.
func (q *queries) SetActive(ctx context.Context, graphID string, version int) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE published_graphs SET is_active = 1 WHERE graph_id = ? AND version = ?`, graphID, version)
	if isConstraint(err) {
		return fmt.Errorf("activate %s v%d: %w", graphID, version, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("activate %s v%d: %w", graphID, version, err)
	}
	return expectRow(res)
}

// DeleteSnapshot removes one version of graphID.
func (q *queries) DeleteSnapshot(ctx context.Context, graphID string, version int) error {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM published_graphs WHERE graph_id = ? AND version = ?`, graphID, version)
	if err != nil {
		return fmt.Errorf("delete %s v%d: %w", graphID, version, err)
	}
	return expectRow(res)
}

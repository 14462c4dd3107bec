package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/attrgraph/api"
)

const graphColumns = `graph_id, name, nodes, edges, viewport, system_prompt, created_at, updated_at`

func scanGraph(row rowScanner) (*api.Graph, error) {
	var (
		g                      api.Graph
		nodes, edges, viewport string
		createdAt, updatedAt   int64
	)
	if err := row.Scan(&g.GraphID, &g.Name, &nodes, &edges, &viewport, &g.SystemPrompt, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	if err := decodeJSON(nodes, &g.Nodes); err != nil {
		return nil, fmt.Errorf("graph %s nodes: %w", g.GraphID, err)
	}
	if err := decodeJSON(edges, &g.Edges); err != nil {
		return nil, fmt.Errorf("graph %s edges: %w", g.GraphID, err)
	}
	if err := decodeJSON(viewport, &g.Viewport); err != nil {
		return nil, fmt.Errorf("graph %s viewport: %w", g.GraphID, err)
	}
	g.Nodes, g.Edges = orEmpty(g.Nodes), orEmpty(g.Edges)
	g.CreatedAt, g.UpdatedAt = fromNanos(createdAt), fromNanos(updatedAt)
	return &g, nil
}

// GetGraph returns the graph stored under graphID.
func (q *queries) GetGraph(ctx context.Context, graphID string) (*api.Graph, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+graphColumns+` FROM graphs WHERE graph_id = ?`, graphID)
	return scanGraph(row)
}

// PutGraph inserts g or replaces every column of an existing row except created_at.
func (q *queries) PutGraph(ctx context.Context, g *api.Graph) error {
	nodes, err := encodeJSON(orEmpty(g.Nodes))
	if err != nil {
		return fmt.Errorf("encode nodes: %w", err)
	}
	edges, err := encodeJSON(orEmpty(g.Edges))
	if err != nil {
		return fmt.Errorf("encode edges: %w", err)
	}
	viewport, err := encodeJSON(g.Viewport)
	if err != nil {
		return fmt.Errorf("encode viewport: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO graphs (`+graphColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(graph_id) DO UPDATE SET
			name = excluded.name,
			nodes = excluded.nodes,
			edges = excluded.edges,
			viewport = excluded.viewport,
			system_prompt = excluded.system_prompt,
			updated_at = excluded.updated_at`,
		g.GraphID, g.Name, nodes, edges, viewport, g.SystemPrompt, nanos(g.CreatedAt), nanos(g.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put graph %s: %w", g.GraphID, err)
	}
	return nil
}

// DeleteGraph removes a graph. Node graphs and published versions are kept.
func (q *queries) DeleteGraph(ctx context.Context, graphID string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM graphs WHERE graph_id = ?`, graphID)
	if err != nil {
		return fmt.Errorf("delete graph %s: %w", graphID, err)
	}
	return expectRow(res)
}

// SaveGraph creates or updates a graph, last write wins. Nodes, edges and
// viewport are replaced; name and system prompt only when set. Legacy
// node references are migrated before the write.
func (s *Store) SaveGraph(ctx context.Context, graphID string, upd api.GraphUpdate) (*api.Graph, error) {
	var saved *api.Graph
	err := s.InTx(ctx, func(tx *Tx) error {
		now := tx.now().UTC()
		g, err := tx.GetGraph(ctx, graphID)
		existed := err == nil
		switch {
		case errors.Is(err, ErrNotFound):
			g = &api.Graph{GraphID: graphID, Name: api.DefaultGraphName, CreatedAt: now}
		case err != nil:
			return err
		}

		if upd.Name != nil && (existed || *upd.Name != "") {
			g.Name = *upd.Name
		}
		if upd.SystemPrompt != nil {
			g.SystemPrompt = *upd.SystemPrompt
		}
		g.Nodes = orEmpty(upd.Nodes)
		g.Edges = orEmpty(upd.Edges)
		g.Viewport = upd.Viewport
		g.UpdatedAt = now

		if n := api.MigrateNodeRefs(g.Nodes); n > 0 {
			s.logger.Info("migrated legacy node references", "graph_id", graphID, "count", n)
		}

		if err := tx.PutGraph(ctx, g); err != nil {
			return err
		}
		saved = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

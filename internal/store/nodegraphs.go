package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/attrgraph/api"
)

const nodeGraphColumns = `node_id, graph_id, name, nodes, edges, created_at, updated_at`

func scanNodeGraph(row rowScanner) (*api.NodeGraph, error) {
	var (
		ng                   api.NodeGraph
		nodes, edges         string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&ng.NodeID, &ng.GraphID, &ng.Name, &nodes, &edges, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	if err := decodeJSON(nodes, &ng.Nodes); err != nil {
		return nil, fmt.Errorf("node graph %s nodes: %w", ng.NodeID, err)
	}
	if err := decodeJSON(edges, &ng.Edges); err != nil {
		return nil, fmt.Errorf("node graph %s edges: %w", ng.NodeID, err)
	}
	ng.Nodes, ng.Edges = orEmpty(ng.Nodes), orEmpty(ng.Edges)
	ng.CreatedAt, ng.UpdatedAt = fromNanos(createdAt), fromNanos(updatedAt)
	return &ng, nil
}

// GetNodeGraph returns the node graph stored under nodeID.
func (q *queries) GetNodeGraph(ctx context.Context, nodeID string) (*api.NodeGraph, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+nodeGraphColumns+` FROM node_graphs WHERE node_id = ?`, nodeID)
	return scanNodeGraph(row)
}

// ListNodeGraphs returns every node graph owned by graphID, ordered by node id.
func (q *queries) ListNodeGraphs(ctx context.Context, graphID string) ([]api.NodeGraph, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+nodeGraphColumns+` FROM node_graphs WHERE graph_id = ? ORDER BY node_id`, graphID)
	if err != nil {
		return nil, fmt.Errorf("list node graphs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []api.NodeGraph{}
	for rows.Next() {
		ng, err := scanNodeGraph(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ng)
	}
	return out, rows.Err()
}

// PutNodeGraph inserts ng or replaces an existing row, keeping created_at.
func (q *queries) PutNodeGraph(ctx context.Context, ng *api.NodeGraph) error {
	nodes, err := encodeJSON(orEmpty(ng.Nodes))
	if err != nil {
		return fmt.Errorf("encode nodes: %w", err)
	}
	edges, err := encodeJSON(orEmpty(ng.Edges))
	if err != nil {
		return fmt.Errorf("encode edges: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO node_graphs (`+nodeGraphColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			graph_id = excluded.graph_id,
			name = excluded.name,
			nodes = excluded.nodes,
			edges = excluded.edges,
			updated_at = excluded.updated_at`,
		ng.NodeID, ng.GraphID, ng.Name, nodes, edges, nanos(ng.CreatedAt), nanos(ng.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put node graph %s: %w", ng.NodeID, err)
	}
	return nil
}

// DeleteNodeGraph removes one node graph.
func (q *queries) DeleteNodeGraph(ctx context.Context, nodeID string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM node_graphs WHERE node_id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("delete node graph %s: %w", nodeID, err)
	}
	return expectRow(res)
}

// ReplaceNodeGraphs deletes every node graph owned by graphID and inserts
// defs verbatim, timestamps included.
func (q *queries) ReplaceNodeGraphs(ctx context.Context, graphID string, defs []api.NodeGraph) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM node_graphs WHERE graph_id = ?`, graphID); err != nil {
		return fmt.Errorf("clear node graphs of %s: %w", graphID, err)
	}
	for _, ng := range defs {
		nodes, err := encodeJSON(orEmpty(ng.Nodes))
		if err != nil {
			return fmt.Errorf("encode nodes: %w", err)
		}
		edges, err := encodeJSON(orEmpty(ng.Edges))
		if err != nil {
			return fmt.Errorf("encode edges: %w", err)
		}
		_, err = q.q.ExecContext(ctx,
			`INSERT OR REPLACE INTO node_graphs (`+nodeGraphColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ng.NodeID, graphID, ng.Name, nodes, edges, nanos(ng.CreatedAt), nanos(ng.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert node graph %s: %w", ng.NodeID, err)
		}
	}
	return nil
}

// SaveNodeGraph creates or updates a node graph, last write wins. The owning
// graph id, nodes and edges are replaced; the name only when set.
func (s *Store) SaveNodeGraph(ctx context.Context, nodeID string, upd api.NodeGraphUpdate) (*api.NodeGraph, error) {
	var saved *api.NodeGraph
	err := s.InTx(ctx, func(tx *Tx) error {
		now := tx.now().UTC()
		ng, err := tx.GetNodeGraph(ctx, nodeID)
		existed := err == nil
		switch {
		case errors.Is(err, ErrNotFound):
			ng = &api.NodeGraph{NodeID: nodeID, Name: api.DefaultNodeGraphName, CreatedAt: now}
		case err != nil:
			return err
		}

		if upd.Name != nil && (existed || *upd.Name != "") {
			ng.Name = *upd.Name
		}
		ng.GraphID = upd.GraphID
		ng.Nodes = orEmpty(upd.Nodes)
		ng.Edges = orEmpty(upd.Edges)
		ng.UpdatedAt = now

		if err := tx.PutNodeGraph(ctx, ng); err != nil {
			return err
		}
		saved = ng
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

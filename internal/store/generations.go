package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentic-research/attrgraph/api"
)

const generationColumns = `id, graph_id, name, nodes, edges, viewport, system_prompt, user_prompt,
	compiled_schema, generation_result, error_message, success, created_at`

// InsertGenerationRecord appends an audit record, assigning its id and
// creation time when unset.
func (q *queries) InsertGenerationRecord(ctx context.Context, rec *api.GenerationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = q.now().UTC()
	}
	nodes, err := encodeJSON(orEmpty(rec.Nodes))
	if err != nil {
		return fmt.Errorf("encode nodes: %w", err)
	}
	edges, err := encodeJSON(orEmpty(rec.Edges))
	if err != nil {
		return fmt.Errorf("encode edges: %w", err)
	}
	viewport, err := encodeJSON(rec.Viewport)
	if err != nil {
		return fmt.Errorf("encode viewport: %w", err)
	}
	compiled := string(rec.CompiledSchema)
	if compiled == "" {
		compiled = "{}"
	}
	var result sql.NullString
	if rec.GenerationResult != nil {
		s, err := encodeJSON(rec.GenerationResult)
		if err != nil {
			return fmt.Errorf("encode generation result: %w", err)
		}
		result = sql.NullString{String: s, Valid: true}
	}

	_, err = q.q.ExecContext(ctx, `INSERT INTO generation_records (`+generationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GraphID, rec.Name, nodes, edges, viewport, rec.SystemPrompt, rec.UserPrompt,
		compiled, result, rec.ErrorMessage, rec.Success, nanos(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert generation record: %w", err)
	}
	return nil
}

// ListGenerationRecords returns the newest records of graphID first.
func (q *queries) ListGenerationRecords(ctx context.Context, graphID string, limit int) ([]api.GenerationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.q.QueryContext(ctx, `SELECT `+generationColumns+` FROM generation_records
		WHERE graph_id = ? ORDER BY created_at DESC, id LIMIT ?`, graphID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generation records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []api.GenerationRecord{}
	for rows.Next() {
		var (
			rec                              api.GenerationRecord
			nodes, edges, viewport, compiled string
			result                           sql.NullString
			createdAt                        int64
		)
		err := rows.Scan(&rec.ID, &rec.GraphID, &rec.Name, &nodes, &edges, &viewport, &rec.SystemPrompt,
			&rec.UserPrompt, &compiled, &result, &rec.ErrorMessage, &rec.Success, &createdAt)
		if err != nil {
			return nil, err
		}
		if err := decodeJSON(nodes, &rec.Nodes); err != nil {
			return nil, fmt.Errorf("record %s nodes: %w", rec.ID, err)
		}
		if err := decodeJSON(edges, &rec.Edges); err != nil {
			return nil, fmt.Errorf("record %s edges: %w", rec.ID, err)
		}
		if err := decodeJSON(viewport, &rec.Viewport); err != nil {
			return nil, fmt.Errorf("record %s viewport: %w", rec.ID, err)
		}
		if result.Valid {
			if err := decodeJSON(result.String, &rec.GenerationResult); err != nil {
				return nil, fmt.Errorf("record %s result: %w", rec.ID, err)
			}
		}
		rec.CompiledSchema = json.RawMessage(compiled)
		rec.Nodes, rec.Edges = orEmpty(rec.Nodes), orEmpty(rec.Edges)
		rec.CreatedAt = fromNanos(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

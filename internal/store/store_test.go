package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/attrgraph/api"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "attrgraph.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestGraphLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetGraph(ctx, "g1")
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := s.SaveGraph(ctx, "g1", api.GraphUpdate{
		Nodes: []api.Node{{ID: "n1", Type: api.NodeTypeNetwork, Data: map[string]any{"node_id": "pcd-1"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, api.DefaultGraphName, saved.Name)

	got, err := s.GetGraph(ctx, "g1")
	require.NoError(t, err)
	ref, ok := api.NodeRef(got.Nodes[0])
	require.True(t, ok, "legacy reference migrated on save")
	assert.Equal(t, "pcd-1", ref)
	assert.Empty(t, got.Edges)
	assert.NotNil(t, got.Edges)

	_, err = s.SaveGraph(ctx, "g1", api.GraphUpdate{
		Name:         ptr("Renamed"),
		Viewport:     map[string]any{"zoom": 1.5},
		SystemPrompt: ptr("be brief"),
	})
	require.NoError(t, err)
	_, err = s.SaveGraph(ctx, "g1", api.GraphUpdate{Viewport: map[string]any{"zoom": 2.0}})
	require.NoError(t, err)

	got, err = s.GetGraph(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name, "name kept when omitted")
	assert.Equal(t, "be brief", got.SystemPrompt)
	assert.Equal(t, map[string]any{"zoom": 2.0}, got.Viewport)
	assert.Empty(t, got.Nodes, "nodes replaced on every save")
	assert.True(t, !got.UpdatedAt.Before(got.CreatedAt))

	require.NoError(t, s.DeleteGraph(ctx, "g1"))
	assert.ErrorIs(t, s.DeleteGraph(ctx, "g1"), ErrNotFound)
}

func TestNodeGraphLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveNodeGraph(ctx, "pcd-1", api.NodeGraphUpdate{GraphID: "g1", Name: ptr("Person")})
	require.NoError(t, err)
	_, err = s.SaveNodeGraph(ctx, "pcd-2", api.NodeGraphUpdate{GraphID: "g1"})
	require.NoError(t, err)
	_, err = s.SaveNodeGraph(ctx, "pcd-3", api.NodeGraphUpdate{GraphID: "other"})
	require.NoError(t, err)

	ng, err := s.GetNodeGraph(ctx, "pcd-2")
	require.NoError(t, err)
	assert.Equal(t, api.DefaultNodeGraphName, ng.Name)

	list, err := s.ListNodeGraphs(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pcd-1", list[0].NodeID)

	require.NoError(t, s.DeleteNodeGraph(ctx, "pcd-1"))
	_, err = s.GetNodeGraph(ctx, "pcd-1")
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := s.ListNodeGraphs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSnapshotsInTx(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := &api.PublishedSnapshot{
		GraphID: "g1",
		Version: 1,
		Name:    "v1",
		Nodes:   []api.Node{{ID: "n1"}},
		NodeDefinitions: []api.NodeGraph{{
			NodeID: "pcd-1", GraphID: "g1", Name: "Person",
			CreatedAt: published, UpdatedAt: published,
		}},
		Digest:      "abc",
		PublishedAt: published,
		IsActive:    true,
	}
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		v, err := tx.MaxVersion(ctx, "g1")
		require.NoError(t, err)
		assert.Zero(t, v)
		return tx.InsertSnapshot(ctx, snap)
	}))

	err := s.InTx(ctx, func(tx *Tx) error { return tx.InsertSnapshot(ctx, snap) })
	assert.ErrorIs(t, err, ErrConflict)

	second := *snap
	second.Version = 2
	err = s.InTx(ctx, func(tx *Tx) error { return tx.InsertSnapshot(ctx, &second) })
	assert.ErrorIs(t, err, ErrConflict, "only one active version per graph")

	second.IsActive = false
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error { return tx.InsertSnapshot(ctx, &second) }))

	got, err := s.GetSnapshot(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Equal(t, published, got.PublishedAt)
	require.Len(t, got.NodeDefinitions, 1)
	assert.Equal(t, "Person", got.NodeDefinitions[0].Name)
	assert.Nil(t, got.Viewport)

	latest, err := s.LatestSnapshot(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	active, err := s.ActiveSnapshot(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version)

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		if err := tx.DeactivateAll(ctx, "g1"); err != nil {
			return err
		}
		return tx.SetActive(ctx, "g1", 2)
	}))
	versions, err := s.ListVersions(ctx, "g1", 5)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.True(t, versions[0].IsActive)
	assert.False(t, versions[1].IsActive)

	assert.ErrorIs(t, s.InTx(ctx, func(tx *Tx) error { return tx.SetActive(ctx, "g1", 9) }), ErrNotFound)

	require.NoError(t, s.DeleteSnapshot(ctx, "g1", 2))
	_, err = s.ActiveSnapshot(ctx, "g1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSnapshot(ctx, "g1", 2), ErrNotFound)

	all, err := s.ListSnapshots(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReplaceNodeGraphs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"old-1", "old-2"} {
		_, err := s.SaveNodeGraph(ctx, id, api.NodeGraphUpdate{GraphID: "g1"})
		require.NoError(t, err)
	}
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.ReplaceNodeGraphs(ctx, "g1", []api.NodeGraph{
			{NodeID: "new-1", Name: "Fresh", CreatedAt: created, UpdatedAt: created},
		})
	}))

	list, err := s.ListNodeGraphs(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new-1", list[0].NodeID)
	assert.Equal(t, "g1", list[0].GraphID)
	assert.Equal(t, created, list[0].CreatedAt)
}

func TestInTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx *Tx) error {
		require.NoError(t, tx.PutGraph(ctx, &api.Graph{GraphID: "g1", Name: "tmp"}))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.GetGraph(ctx, "g1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerationRecords(t *testing.T) {
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s, err := Open(filepath.Join(t.TempDir(), "gen.db"), nil, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	require.NoError(t, s.InsertGenerationRecord(ctx, &api.GenerationRecord{
		GraphID: "g1", Name: "G", UserPrompt: "first", ErrorMessage: "boom",
	}))
	ok := &api.GenerationRecord{
		GraphID:          "g1",
		Name:             "G",
		UserPrompt:       "second",
		CompiledSchema:   json.RawMessage(`{"type":"object"}`),
		GenerationResult: map[string]any{"age": 30.0},
		Success:          true,
	}
	require.NoError(t, s.InsertGenerationRecord(ctx, ok))
	assert.NotEmpty(t, ok.ID)

	recs, err := s.ListGenerationRecords(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "second", recs[0].UserPrompt)
	assert.True(t, recs[0].Success)
	assert.Equal(t, map[string]any{"age": 30.0}, recs[0].GenerationResult)
	assert.JSONEq(t, `{"type":"object"}`, string(recs[0].CompiledSchema))

	assert.False(t, recs[1].Success)
	assert.Equal(t, "boom", recs[1].ErrorMessage)
	assert.JSONEq(t, `{}`, string(recs[1].CompiledSchema))
	assert.Nil(t, recs[1].GenerationResult)
}

func TestConcurrentSaves(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SaveNodeGraph(ctx, "shared", api.NodeGraphUpdate{GraphID: "g1", Name: ptr(string(rune('a' + i)))})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := s.ListNodeGraphs(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

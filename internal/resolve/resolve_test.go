package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/nodegraph"
	"github.com/agentic-research/attrgraph/internal/schema"
)

type mapSource map[string]*api.NodeGraph

func (m mapSource) GetNodeGraph(_ context.Context, nodeID string) (*api.NodeGraph, error) {
	ng, ok := m[nodeID]
	if !ok {
		return nil, api.ErrNotFound
	}
	return ng, nil
}

type failingSource struct{ err error }

func (f failingSource) GetNodeGraph(context.Context, string) (*api.NodeGraph, error) {
	return nil, f.err
}

func simpleNodeGraph(nodeID, name string, attrs ...[2]string) *api.NodeGraph {
	ng := &api.NodeGraph{
		NodeID: nodeID,
		Name:   name,
		Nodes: []api.Node{{
			ID:   api.RootEdgeSource,
			Type: api.NodeTypeClassDefinition,
			Data: map[string]any{"className": name},
		}},
	}
	for _, a := range attrs {
		ng.Nodes = append(ng.Nodes, api.Node{
			ID:   nodeID + "/" + a[0],
			Type: api.NodeTypeAttribute,
			Data: map[string]any{"attribute": map[string]any{"name": a[0], "type": a[1], "nullable": false}},
		})
		ng.Edges = append(ng.Edges, api.Edge{Source: api.RootEdgeSource, Target: nodeID + "/" + a[0]})
	}
	return ng
}

func compositionNode(id, ref string) api.Node {
	return api.Node{
		ID:   id,
		Type: api.NodeTypeNetwork,
		Data: map[string]any{"node": map[string]any{"id": ref, "name": "label ignored"}},
	}
}

func TestResolveComposesRequiredFields(t *testing.T) {
	source := mapSource{
		"pcd-person":  simpleNodeGraph("pcd-person", "Person", [2]string{"age", "int"}),
		"pcd-company": simpleNodeGraph("pcd-company", "home company", [2]string{"name", "string"}),
	}
	g := &api.Graph{
		GraphID: "g1",
		Name:    "hiring form",
		Nodes: []api.Node{
			compositionNode("n1", "pcd-person"),
			{ID: "note", Type: "stickyNote"},
			compositionNode("n2", "pcd-company"),
		},
	}

	r := New(source, nil, nil, RequiredFields)
	typ, err := r.Resolve(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, "hiringForm", typ.Name)
	assert.Equal(t, []string{"Person", "homeCompany"}, typ.FieldNames())
	assert.True(t, typ.Field("Person").Required)
	assert.Equal(t, "Person", typ.Field("Person").Type.Name)

	require.NoError(t, typ.Validate(map[string]any{
		"Person":      map[string]any{"age": 41.0},
		"homeCompany": map[string]any{"name": "Acme"},
	}))
	assert.Error(t, typ.Validate(map[string]any{"Person": map[string]any{"age": 41.0}}))
}

func TestResolveOptionalPolicy(t *testing.T) {
	source := mapSource{"p": simpleNodeGraph("p", "Person", [2]string{"age", "int"})}
	g := &api.Graph{Name: "", Nodes: []api.Node{compositionNode("n1", "p")}}

	typ, err := New(source, nil, nil, OptionalFields).Resolve(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, "DynamicModel", typ.Name)

	out, err := typ.Apply(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Person": nil}, out)
}

func TestResolveMissingReference(t *testing.T) {
	g := &api.Graph{Name: "G", Nodes: []api.Node{compositionNode("n1", "deleted")}}

	_, err := New(mapSource{}, nil, nil, RequiredFields).Resolve(context.Background(), g)
	var target *ReferencedNodeGraphNotFoundError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "deleted", target.NodeID)
}

func TestResolveSourceFailureIsWrapped(t *testing.T) {
	boom := errors.New("disk on fire")
	g := &api.Graph{Name: "G", Nodes: []api.Node{compositionNode("n1", "x")}}

	_, err := New(failingSource{boom}, nil, nil, RequiredFields).Resolve(context.Background(), g)
	require.ErrorIs(t, err, boom)
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "x", srcErr.NodeID)
	var target *ReferencedNodeGraphNotFoundError
	assert.False(t, errors.As(err, &target))
}

func TestResolvePropagatesCompileErrors(t *testing.T) {
	broken := simpleNodeGraph("b", "Broken", [2]string{"address", "nested"})
	g := &api.Graph{Name: "G", Nodes: []api.Node{compositionNode("n1", "b")}}

	_, err := New(mapSource{"b": broken}, nil, nil, RequiredFields).Resolve(context.Background(), g)
	assert.ErrorIs(t, err, schema.ErrMissingNestedDefinition)

	noRoot := &api.NodeGraph{NodeID: "r", Name: "R"}
	g.Nodes = []api.Node{compositionNode("n1", "r")}
	_, err = New(mapSource{"r": noRoot}, nil, nil, RequiredFields).Resolve(context.Background(), g)
	assert.ErrorIs(t, err, nodegraph.ErrClassDefinitionNotFound)
}

func TestResolveCollisionPolicy(t *testing.T) {
	source := mapSource{
		"a": simpleNodeGraph("a", "Person", [2]string{"age", "int"}),
		"b": simpleNodeGraph("b", "Person!", [2]string{"name", "string"}),
	}
	g := &api.Graph{Name: "G", Nodes: []api.Node{compositionNode("n1", "a"), compositionNode("n2", "b")}}

	typ, err := New(source, nil, schema.NewCompiler(schema.LastWriteWins), RequiredFields).Resolve(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, []string{"Person"}, typ.FieldNames())
	assert.NotNil(t, typ.Field("Person").Type.Field("name"))

	_, err = New(source, nil, schema.NewCompiler(schema.RejectCollisions), RequiredFields).Resolve(context.Background(), g)
	var collision *schema.FieldCollisionError
	assert.ErrorAs(t, err, &collision)
}

func TestResolveAttributes(t *testing.T) {
	typ, err := New(mapSource{}, nil, nil, RequiredFields).ResolveAttributes("Ad hoc", []api.AttributeDefinition{
		{Name: "title", Type: api.KindString},
	})
	require.NoError(t, err)
	assert.Equal(t, "AdHoc", typ.Name)
}

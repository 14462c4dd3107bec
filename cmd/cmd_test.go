package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/attrgraph/api"
	"github.com/agentic-research/attrgraph/internal/store"
)

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Flag variables outlive a single Execute.
	configPath, dbPath, logLevel, logFormat = "", "", "", ""
	compileFormat, compilePackage, compileGraph, compileNode = "json", "models", "", ""
	publishActive, versionsLimit, generateStream = false, 0, false
	bundleDir, listenAddr = ".", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"latest", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseVersion(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileInlineClass(t *testing.T) {
	path := writeFile(t, "book.json", `{
		"class_name": "Book",
		"attributes": [
			{"name": "title", "type": "string"},
			{"name": "pages", "type": "int", "nullable": true}
		]
	}`)

	out, err := run(t, "compile", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Book"`)

	out, err = run(t, "compile", "--format", "go", "--package", "books", path)
	require.NoError(t, err)
	assert.Contains(t, out, "package books")
	assert.Contains(t, out, "type Book struct")

	_, err = run(t, "compile", "--format", "xml", path)
	assert.Error(t, err)
}

func TestCompileNodeGraphFile(t *testing.T) {
	path := writeFile(t, "person.json", `{
		"name": "Person",
		"nodes": [
			{"id": "root", "type": "classDefinition", "data": {"className": "Person"}},
			{"id": "a1", "type": "attributeNode", "data": {"attribute": {"name": "name", "type": "string", "nullable": false}}}
		],
		"edges": [{"id": "e1", "source": "class-definition", "target": "a1"}]
	}`)

	out, err := run(t, "compile", "--format", "yaml", path)
	require.NoError(t, err)
	assert.Contains(t, out, "name: Person")

	_, err = run(t, "compile")
	assert.Error(t, err, "a source is required")
}

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	s, err := store.Open(path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	name, pcdName := "Hiring Form", "Person"
	_, err = s.SaveGraph(ctx, "g1", api.GraphUpdate{
		Name: &name,
		Nodes: []api.Node{{
			ID:   "n1",
			Type: api.NodeTypeNetwork,
			Data: map[string]any{"node": map[string]any{"id": "pcd-person"}},
		}},
		Edges: []api.Edge{},
	})
	require.NoError(t, err)
	_, err = s.SaveNodeGraph(ctx, "pcd-person", api.NodeGraphUpdate{
		GraphID: "g1",
		Name:    &pcdName,
		Nodes: []api.Node{
			{ID: "root", Type: api.NodeTypeClassDefinition, Data: map[string]any{"className": "Person"}},
			{ID: "a1", Type: api.NodeTypeAttribute, Data: map[string]any{"attribute": map[string]any{"name": "name", "type": "string", "nullable": false}}},
		},
		Edges: []api.Edge{{ID: "e1", Source: api.RootEdgeSource, Target: "a1"}},
	})
	require.NoError(t, err)
	return path
}

func TestStoredGraphCommands(t *testing.T) {
	db := seedStore(t)

	out, err := run(t, "--db", db, "compile", "--graph", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "HiringForm"`)

	out, err = run(t, "--db", db, "publish", "g1", "--active")
	require.NoError(t, err)
	assert.Contains(t, out, "version 1")

	_, err = run(t, "--db", db, "publish", "g1")
	require.NoError(t, err)

	out, err = run(t, "--db", db, "versions", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "Hiring Form")

	out, err = run(t, "--db", db, "activate", "g1", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Version 2 is now active")

	_, err = run(t, "--db", db, "activate", "g1", "9")
	assert.ErrorIs(t, err, api.ErrNotFound)

	dir := t.TempDir()
	_, err = run(t, "--db", db, "bundle", "export", "g1", "--dir", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "g1", "manifest.json"))

	out, err = run(t, "--db", db, "bundle", "import", "g1", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped [1 2]")

	out, err = run(t, "--db", db, "restore", "g1", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "restored to version 1")

	out, err = run(t, "--db", db, "delete-version", "g1", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Version 1 deleted")
}

func TestConfigInit(t *testing.T) {
	out, err := run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "listen")
	assert.Contains(t, out, "llm {")

	_, err = run(t, "--log-format", "xml", "config", "init")
	assert.Error(t, err)
}

func TestGraphCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "graphs.db")

	graphFile := writeFile(t, "graph.json", `{"name": "Orders", "nodes": [], "edges": []}`)
	out, err := run(t, "--db", db, "graph", "save", "orders", graphFile)
	require.NoError(t, err)
	assert.Contains(t, out, `Saved graph orders ("Orders")`)

	ngFile := writeFile(t, "ng.json", `{"name": "Line", "nodes": [], "edges": []}`)
	_, err = run(t, "--db", db, "nodegraph", "save", "line", ngFile)
	assert.Error(t, err, "graph_id is required")

	ngFile = writeFile(t, "ng.json", `{"graph_id": "orders", "name": "Line", "nodes": [], "edges": []}`)
	_, err = run(t, "--db", db, "pcd", "save", "line", ngFile)
	require.NoError(t, err)

	out, err = run(t, "--db", db, "graph", "pcds", "orders")
	require.NoError(t, err)
	assert.Equal(t, "line\tLine\n", out)

	out, err = run(t, "--db", db, "nodegraph", "show", "line")
	require.NoError(t, err)
	assert.Contains(t, out, `"graph_id": "orders"`)

	_, err = run(t, "--db", db, "nodegraph", "delete", "line")
	require.NoError(t, err)
	_, err = run(t, "--db", db, "nodegraph", "show", "line")
	assert.ErrorIs(t, err, api.ErrNotFound)

	_, err = run(t, "--db", db, "graph", "delete", "orders")
	require.NoError(t, err)
	_, err = run(t, "--db", db, "graph", "show", "orders")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestComponentLoggedOnce(t *testing.T) {
	db := seedStore(t)

	var logs bytes.Buffer
	logOutput = &logs
	t.Cleanup(func() { logOutput = os.Stderr })

	_, err := run(t, "--db", db, "--log-format", "json", "--log-level", "debug", "publish", "g1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	var published bool
	for _, line := range lines {
		assert.LessOrEqual(t, strings.Count(line, `"component"`), 1, line)
		if strings.Contains(line, `"msg":"graph published"`) {
			published = true
			assert.Contains(t, line, `"component":"publish"`)
		}
	}
	assert.True(t, published, logs.String())
	assert.Contains(t, logs.String(), `"component":"store"`)
}

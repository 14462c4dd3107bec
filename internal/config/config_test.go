package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/attrgraph/internal/schema"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attrgraph.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.MaxSchemaDepth)
	assert.Equal(t, 5, cfg.VersionHistoryLimit)
	assert.Equal(t, schema.LastWriteWins, cfg.Collisions())
	assert.True(t, cfg.SerializePerGraph)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "gpt-5", cfg.LLM.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.LLM.APIKeyEnv)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
listen           = ":9000"
db_path          = "/var/lib/attrgraph.db"
collision_policy = "error"
cors_origins     = ["https://editor.example"]

llm {
  model   = "gpt-5-mini"
  timeout = "30s"
}
`)
	t.Setenv("ATTRGRAPH_LISTEN", ":9100")
	t.Setenv("ATTRGRAPH_MAX_SCHEMA_DEPTH", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Listen, "env wins over file")
	assert.Equal(t, "/var/lib/attrgraph.db", cfg.DBPath)
	assert.Equal(t, 8, cfg.MaxSchemaDepth)
	assert.Equal(t, schema.RejectCollisions, cfg.Collisions())
	assert.Equal(t, []string{"https://editor.example"}, cfg.CORSOrigins)
	assert.Equal(t, "gpt-5-mini", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "OPENAI_API_KEY", cfg.LLM.APIKeyEnv, "unset block attributes keep defaults")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `listen = `},
		{"bad policy", `collision_policy = "merge"`},
		{"bad depth", `max_schema_depth = 0`},
		{"bad format", `log_format = "xml"`},
		{"bad timeout", "llm {\n  timeout = \"soon\"\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestWriteHCLRoundTrips(t *testing.T) {
	want := Default()
	want.CollisionPolicy = "error"
	want.CORSOrigins = []string{"a", "b"}
	want.LLM.Timeout = 90 * time.Second

	var buf bytes.Buffer
	require.NoError(t, want.WriteHCL(&buf))

	got, err := Load(writeFile(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

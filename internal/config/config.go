// Package config provides configuration for attrgraph.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/agentic-research/attrgraph/internal/schema"
)

// Config holds process configuration.
type Config struct {
	// Listen is the HTTP listen address (e.g., ":8000").
	Listen string
	// DBPath is the SQLite database file.
	DBPath string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is text (colorized) or json.
	LogFormat string
	// MaxSchemaDepth bounds nested object depth in compiled schemas.
	MaxSchemaDepth int
	// VersionHistoryLimit is the default number of versions listed.
	VersionHistoryLimit int
	// CollisionPolicy is last_write_wins or error.
	CollisionPolicy string
	// SerializePerGraph serializes publish writers per graph in-process.
	SerializePerGraph bool
	// CORSOrigins are the allowed browser origins; "*" allows any.
	CORSOrigins []string
	// LLM configures the generation backend.
	LLM LLM
}

// LLM configures the OpenAI-compatible generation backend. The API key
// itself is never part of the configuration; APIKeyEnv names the variable
// it is read from at invocation time.
type LLM struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:              ":8000",
		DBPath:              "attrgraph.db",
		LogLevel:            "info",
		LogFormat:           "text",
		MaxSchemaDepth:      schema.DefaultMaxDepth,
		VersionHistoryLimit: 5,
		CollisionPolicy:     schema.LastWriteWins.String(),
		SerializePerGraph:   true,
		CORSOrigins:         []string{"*"},
		LLM: LLM{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-5",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   5 * time.Minute,
		},
	}
}

// FromEnv creates a Config from defaults and ATTRGRAPH_* environment variables.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Load reads defaults, then the HCL file at path (if non-empty), then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := schema.ParseCollisionPolicy(c.CollisionPolicy); err != nil {
		return err
	}
	if c.MaxSchemaDepth < 1 {
		return fmt.Errorf("max schema depth must be positive, got %d", c.MaxSchemaDepth)
	}
	if c.VersionHistoryLimit < 1 {
		return fmt.Errorf("version history limit must be positive, got %d", c.VersionHistoryLimit)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.DBPath == "" {
		return errors.New("db path must not be empty")
	}
	return nil
}

// Collisions returns the parsed collision policy.
func (c *Config) Collisions() schema.CollisionPolicy {
	p, err := schema.ParseCollisionPolicy(c.CollisionPolicy)
	if err != nil {
		return schema.LastWriteWins
	}
	return p
}

type fileLLM struct {
	BaseURL   *string `hcl:"base_url,optional"`
	Model     *string `hcl:"model,optional"`
	APIKeyEnv *string `hcl:"api_key_env,optional"`
	Timeout   *string `hcl:"timeout,optional"`
}

type fileConfig struct {
	Listen              *string   `hcl:"listen,optional"`
	DBPath              *string   `hcl:"db_path,optional"`
	LogLevel            *string   `hcl:"log_level,optional"`
	LogFormat           *string   `hcl:"log_format,optional"`
	MaxSchemaDepth      *int      `hcl:"max_schema_depth,optional"`
	VersionHistoryLimit *int      `hcl:"version_history_limit,optional"`
	CollisionPolicy     *string   `hcl:"collision_policy,optional"`
	SerializePerGraph   *bool     `hcl:"serialize_per_graph,optional"`
	CORSOrigins         *[]string `hcl:"cors_origins,optional"`
	LLM                 *fileLLM  `hcl:"llm,block"`
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	set(&c.Listen, fc.Listen)
	set(&c.DBPath, fc.DBPath)
	set(&c.LogLevel, fc.LogLevel)
	set(&c.LogFormat, fc.LogFormat)
	set(&c.MaxSchemaDepth, fc.MaxSchemaDepth)
	set(&c.VersionHistoryLimit, fc.VersionHistoryLimit)
	set(&c.CollisionPolicy, fc.CollisionPolicy)
	set(&c.SerializePerGraph, fc.SerializePerGraph)
	set(&c.CORSOrigins, fc.CORSOrigins)
	if fc.LLM != nil {
		set(&c.LLM.BaseURL, fc.LLM.BaseURL)
		set(&c.LLM.Model, fc.LLM.Model)
		set(&c.LLM.APIKeyEnv, fc.LLM.APIKeyEnv)
		if fc.LLM.Timeout != nil {
			d, err := time.ParseDuration(*fc.LLM.Timeout)
			if err != nil {
				return fmt.Errorf("load config %s: llm timeout: %w", path, err)
			}
			c.LLM.Timeout = d
		}
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) applyEnv() {
	c.Listen = getEnv("ATTRGRAPH_LISTEN", c.Listen)
	c.DBPath = getEnv("ATTRGRAPH_DB", c.DBPath)
	c.LogLevel = getEnv("ATTRGRAPH_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("ATTRGRAPH_LOG_FORMAT", c.LogFormat)
	c.MaxSchemaDepth = getEnvInt("ATTRGRAPH_MAX_SCHEMA_DEPTH", c.MaxSchemaDepth)
	c.VersionHistoryLimit = getEnvInt("ATTRGRAPH_VERSION_HISTORY_LIMIT", c.VersionHistoryLimit)
	c.CollisionPolicy = getEnv("ATTRGRAPH_COLLISION_POLICY", c.CollisionPolicy)
	c.SerializePerGraph = getEnvBool("ATTRGRAPH_SERIALIZE_PER_GRAPH", c.SerializePerGraph)
	if val := os.Getenv("ATTRGRAPH_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = strings.Split(val, ",")
	}
	c.LLM.BaseURL = getEnv("ATTRGRAPH_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("ATTRGRAPH_LLM_MODEL", c.LLM.Model)
	c.LLM.APIKeyEnv = getEnv("ATTRGRAPH_LLM_API_KEY_ENV", c.LLM.APIKeyEnv)
	c.LLM.Timeout = getEnvDuration("ATTRGRAPH_LLM_TIMEOUT", c.LLM.Timeout)
}

// WriteHCL renders c as an HCL config file that Load accepts.
func (c *Config) WriteHCL(w io.Writer) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	body.SetAttributeValue("listen", cty.StringVal(c.Listen))
	body.SetAttributeValue("db_path", cty.StringVal(c.DBPath))
	body.SetAttributeValue("log_level", cty.StringVal(c.LogLevel))
	body.SetAttributeValue("log_format", cty.StringVal(c.LogFormat))
	body.SetAttributeValue("max_schema_depth", cty.NumberIntVal(int64(c.MaxSchemaDepth)))
	body.SetAttributeValue("version_history_limit", cty.NumberIntVal(int64(c.VersionHistoryLimit)))
	body.SetAttributeValue("collision_policy", cty.StringVal(c.CollisionPolicy))
	body.SetAttributeValue("serialize_per_graph", cty.BoolVal(c.SerializePerGraph))
	origins := make([]cty.Value, 0, len(c.CORSOrigins))
	for _, o := range c.CORSOrigins {
		origins = append(origins, cty.StringVal(o))
	}
	if len(origins) == 0 {
		body.SetAttributeValue("cors_origins", cty.ListValEmpty(cty.String))
	} else {
		body.SetAttributeValue("cors_origins", cty.ListVal(origins))
	}

	body.AppendNewline()
	llm := body.AppendNewBlock("llm", nil).Body()
	llm.SetAttributeValue("base_url", cty.StringVal(c.LLM.BaseURL))
	llm.SetAttributeValue("model", cty.StringVal(c.LLM.Model))
	llm.SetAttributeValue("api_key_env", cty.StringVal(c.LLM.APIKeyEnv))
	llm.SetAttributeValue("timeout", cty.StringVal(c.LLM.Timeout.String()))

	_, err := f.WriteTo(w)
	return err
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

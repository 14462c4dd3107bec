// Package llm is a streaming structured-output client for OpenAI-compatible
// chat completion endpoints.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/attrgraph/internal/generate"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-5"
	DefaultAPIKeyEnv = "OPENAI_API_KEY"
	DefaultTimeout   = 5 * time.Minute
)

var (
	deltaPath    = jp.MustParseString("$.choices[0].delta.content")
	errorMsgPath = jp.MustParseString("$.error.message")
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
}

// Client implements generate.Generator.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns a client. Zero config fields take their defaults.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "llm"),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	Stream         bool           `json:"stream"`
	ResponseFormat responseFormat `json:"response_format"`
}

func (c *Client) newRequest(ctx context.Context, req generate.Request) (*http.Request, error) {
	// The key is looked up per call so rotating it needs no restart.
	key := os.Getenv(c.cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: %s is empty", generate.ErrMissingCredential, c.cfg.APIKeyEnv)
	}

	msgs := []message{{Role: "user", Content: req.Prompt}}
	if req.SystemPrompt != "" {
		msgs = append([]message{{Role: "system", Content: req.SystemPrompt}}, msgs...)
	}
	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: msgs,
		Stream:   true,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   req.Schema.Name,
				Schema: req.Schema.StrictJSONSchema(),
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+key)
	return httpReq, nil
}

// Generate streams a completion constrained to req.Schema and yields every
// distinct partial instance decoded from the accumulated content.
func (c *Client) Generate(ctx context.Context, req generate.Request) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		httpReq, err := c.newRequest(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("sending request: %w", err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			yield(nil, statusError(resp))
			return
		}

		var (
			content strings.Builder
			last    string
		)
		for data, err := range events(resp.Body) {
			if err != nil {
				yield(nil, fmt.Errorf("reading stream: %w", err))
				return
			}
			if data == "[DONE]" {
				break
			}

			chunk, err := oj.ParseString(data)
			if err != nil {
				yield(nil, fmt.Errorf("decoding chunk: %w", err))
				return
			}
			if msg, ok := errorMsgPath.First(chunk).(string); ok {
				yield(nil, fmt.Errorf("backend error: %s", msg))
				return
			}
			delta, _ := deltaPath.First(chunk).(string)
			if delta == "" {
				continue
			}
			content.WriteString(delta)

			text, partial, ok := Partial(content.String())
			if !ok || text == last {
				continue
			}
			last = text
			if !yield(partial, nil) {
				return
			}
		}
		c.logger.Debug("completion stream finished", "model", c.cfg.Model, "bytes", content.Len())
	}
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if v, err := oj.Parse(body); err == nil {
		if msg, ok := errorMsgPath.First(v).(string); ok {
			return fmt.Errorf("backend returned %d: %s", resp.StatusCode, msg)
		}
	}
	return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// events yields the data payload of every server-sent event in r.
// Multi-line data fields are joined with newlines.
func events(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64<<10), 4<<20)

		var data []string
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				if len(data) > 0 {
					if !yield(strings.Join(data, "\n"), nil) {
						return
					}
					data = data[:0]
				}
				continue
			}
			field, value, _ := strings.Cut(line, ":")
			if field != "data" {
				continue // comments, event names and ids
			}
			data = append(data, strings.TrimPrefix(value, " "))
		}
		if err := sc.Err(); err != nil {
			yield("", err)
			return
		}
		if len(data) > 0 {
			yield(strings.Join(data, "\n"), nil)
		}
	}
}

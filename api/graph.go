package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by document lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Graph editor node types and markers.
const (
	NodeTypeClassDefinition = "classDefinition"
	NodeTypeAttribute       = "attribute"
	NodeTypeNetwork         = "networkNode"

	// RootEdgeSource is the source id of every edge leaving the class definition node.
	RootEdgeSource = "class-definition"

	DefaultGraphName     = "Untitled Graph"
	DefaultNodeGraphName = "Untitled PCD"
)

// Node is one vertex of an editor graph. Only ID, Type and Data are
// interpreted; Position and any other editor state round-trip untouched.
type Node struct {
	ID       string                     `json:"id"`
	Type     string                     `json:"type,omitempty"`
	Position json.RawMessage            `json:"position,omitempty"`
	Data     map[string]any             `json:"data,omitempty"`
	Extra    map[string]json.RawMessage `json:"-"`
}

var nodeKeys = []string{"id", "type", "position", "data"}

func (n Node) MarshalJSON() ([]byte, error) {
	type plain Node
	return marshalWithExtra(plain(n), n.Extra)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var p plain
	extra, err := unmarshalWithExtra(data, &p, nodeKeys)
	if err != nil {
		return fmt.Errorf("decode node: %w", err)
	}
	*n = Node(p)
	n.Extra = extra
	return nil
}

// Edge connects Source to Target. Handles, markers and styling are kept in Extra.
type Edge struct {
	ID     string                     `json:"id"`
	Source string                     `json:"source"`
	Target string                     `json:"target"`
	Extra  map[string]json.RawMessage `json:"-"`
}

var edgeKeys = []string{"id", "source", "target"}

func (e Edge) MarshalJSON() ([]byte, error) {
	type plain Edge
	return marshalWithExtra(plain(e), e.Extra)
}

func (e *Edge) UnmarshalJSON(data []byte) error {
	type plain Edge
	var p plain
	extra, err := unmarshalWithExtra(data, &p, edgeKeys)
	if err != nil {
		return fmt.Errorf("decode edge: %w", err)
	}
	*e = Edge(p)
	e.Extra = extra
	return nil
}

// Graph is the stored composition graph. Each of its nodes references a NodeGraph.
type Graph struct {
	GraphID      string         `json:"graph_id"`
	Name         string         `json:"name"`
	Nodes        []Node         `json:"nodes"`
	Edges        []Edge         `json:"edges"`
	Viewport     map[string]any `json:"viewport"`
	SystemPrompt string         `json:"system_prompt"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewPlaceholderGraph returns the empty graph served for ids that were never saved.
func NewPlaceholderGraph(graphID string, now time.Time) *Graph {
	return &Graph{
		GraphID:   graphID,
		Name:      DefaultGraphName,
		Nodes:     []Node{},
		Edges:     []Edge{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GraphUpdate is a save request. Nil pointers leave the stored value unchanged.
type GraphUpdate struct {
	Name         *string        `json:"name"`
	Nodes        []Node         `json:"nodes"`
	Edges        []Edge         `json:"edges"`
	Viewport     map[string]any `json:"viewport"`
	SystemPrompt *string        `json:"system_prompt"`
}

// NodeGraph is one attribute graph: a class definition root plus attribute
// nodes. It belongs to the composition graph GraphID.
type NodeGraph struct {
	NodeID    string    `json:"node_id"`
	GraphID   string    `json:"graph_id"`
	Name      string    `json:"name"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeGraphUpdate is a node graph save request.
type NodeGraphUpdate struct {
	GraphID string  `json:"graph_id"`
	Name    *string `json:"name"`
	Nodes   []Node  `json:"nodes"`
	Edges   []Edge  `json:"edges"`
}

// PublishedSnapshot is an immutable published version of a graph together
// with every node graph it owned at publish time. Only IsActive ever changes.
type PublishedSnapshot struct {
	GraphID         string         `json:"graph_id"`
	Version         int            `json:"version"`
	Name            string         `json:"name"`
	Nodes           []Node         `json:"nodes"`
	Edges           []Edge         `json:"edges"`
	Viewport        map[string]any `json:"viewport"`
	SystemPrompt    string         `json:"system_prompt"`
	NodeDefinitions []NodeGraph    `json:"node_definitions"`
	Digest          string         `json:"digest"`
	PublishedAt     time.Time      `json:"published_at"`
	IsActive        bool           `json:"is_active"`
}

// Info returns the history entry for this snapshot.
func (s *PublishedSnapshot) Info() VersionInfo {
	return VersionInfo{
		Version:     s.Version,
		Name:        s.Name,
		PublishedAt: s.PublishedAt,
		IsActive:    s.IsActive,
	}
}

// VersionInfo is one row of a graph's version history.
type VersionInfo struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
	IsActive    bool      `json:"is_active"`
}

// LatestVersion reports the newest published version; both fields are null
// when the graph was never published.
type LatestVersion struct {
	Version     *int       `json:"version"`
	PublishedAt *time.Time `json:"published_at"`
}

// GenerationRecord is the append-only audit entry written for every
// generation attempt against a stored graph.
type GenerationRecord struct {
	ID               string          `json:"id"`
	GraphID          string          `json:"graph_id"`
	Name             string          `json:"name"`
	Nodes            []Node          `json:"nodes"`
	Edges            []Edge          `json:"edges"`
	Viewport         map[string]any  `json:"viewport"`
	SystemPrompt     string          `json:"system_prompt"`
	UserPrompt       string          `json:"user_prompt"`
	CompiledSchema   json.RawMessage `json:"compiled_schema"`
	GenerationResult map[string]any  `json:"generation_result"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	Success          bool            `json:"success"`
	CreatedAt        time.Time       `json:"created_at"`
}

func marshalWithExtra(known any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func unmarshalWithExtra(data []byte, known any, keys []string) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range keys {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

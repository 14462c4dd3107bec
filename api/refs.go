package api

import (
	"github.com/ohler55/ojg/jp"
)

// Composition nodes reference a NodeGraph by id. The editor stores the id at
// data.node.id; older graphs stored it at data.node_id.
var (
	nodeRefPath       = jp.MustParseString("$.node.id")
	legacyNodeRefPath = jp.MustParseString("$.node_id")
)

// NodeRef returns the NodeGraph id a composition node points at.
func NodeRef(n Node) (string, bool) {
	if n.Data == nil {
		return "", false
	}
	id, ok := nodeRefPath.First(n.Data).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// MigrateNodeRefs rewrites legacy data.node_id references into the
// data.node.id shape in place and returns how many nodes changed.
func MigrateNodeRefs(nodes []Node) int {
	migrated := 0
	for i := range nodes {
		data := nodes[i].Data
		if data == nil {
			continue
		}
		legacy, ok := legacyNodeRefPath.First(data).(string)
		if !ok {
			continue
		}
		delete(data, "node_id")
		if legacy == "" {
			continue
		}
		if _, has := NodeRef(nodes[i]); has {
			continue
		}
		ref, _ := data["node"].(map[string]any)
		if ref == nil {
			ref = map[string]any{}
			data["node"] = ref
		}
		ref["id"] = legacy
		migrated++
	}
	return migrated
}

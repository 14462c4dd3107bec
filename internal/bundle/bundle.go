// Package bundle moves published snapshots between stores as plain JSON
// files on a billy filesystem.
//
// Layout:
//
//	<graph_id>/manifest.json
//	<graph_id>/v<version>.json
package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/attrgraph/api"
)

const manifestName = "manifest.json"

// ErrNoBundle is returned by Import when fs holds no manifest for the graph.
var ErrNoBundle = errors.New("no bundle for graph")

// ErrInvalidEntry is returned by Import when a manifest entry does not name
// its own version file.
var ErrInvalidEntry = errors.New("invalid manifest entry")

// Snapshots is the part of the publish manager a bundle needs.
type Snapshots interface {
	Snapshots(ctx context.Context, graphID string) ([]api.PublishedSnapshot, error)
	Import(ctx context.Context, snap *api.PublishedSnapshot) (bool, error)
}

// Manifest lists the versions in a bundle.
type Manifest struct {
	GraphID    string          `json:"graph_id"`
	ExportedAt time.Time       `json:"exported_at"`
	Versions   []ManifestEntry `json:"versions"`
}

// ManifestEntry is one exported version.
type ManifestEntry struct {
	Version int    `json:"version"`
	File    string `json:"file"`
	Digest  string `json:"digest"`
}

// ImportResult counts what Import did.
type ImportResult struct {
	Imported []int `json:"imported"`
	Skipped  []int `json:"skipped"`
}

func fileName(version int) string { return fmt.Sprintf("v%d.json", version) }

// Export writes every published version of graphID to fs and returns the
// manifest.
func Export(ctx context.Context, fs billy.Filesystem, src Snapshots, graphID string) (*Manifest, error) {
	snaps, err := src.Snapshots(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("graph %s: %w", graphID, api.ErrNotFound)
	}

	if err := fs.MkdirAll(graphID, 0o755); err != nil {
		return nil, fmt.Errorf("create bundle dir: %w", err)
	}

	m := &Manifest{GraphID: graphID, ExportedAt: time.Now().UTC()}
	for i := range snaps {
		snap := &snaps[i]
		name := fileName(snap.Version)
		if err := writeJSON(fs, path.Join(graphID, name), snap); err != nil {
			return nil, err
		}
		m.Versions = append(m.Versions, ManifestEntry{Version: snap.Version, File: name, Digest: snap.Digest})
	}
	if err := writeJSON(fs, path.Join(graphID, manifestName), m); err != nil {
		return nil, err
	}
	return m, nil
}

// Import reads the bundle for graphID from fs and inserts every version dst
// does not have yet. Existing versions are left untouched. Imported versions
// are inactive.
func Import(ctx context.Context, fs billy.Filesystem, dst Snapshots, graphID string) (*ImportResult, error) {
	var m Manifest
	if err := readJSON(fs, path.Join(graphID, manifestName), &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", graphID, ErrNoBundle)
		}
		return nil, err
	}

	res := &ImportResult{Imported: []int{}, Skipped: []int{}}
	for _, e := range m.Versions {
		if e.File != fileName(e.Version) {
			return res, fmt.Errorf("%w: version %d file %q", ErrInvalidEntry, e.Version, e.File)
		}
		var snap api.PublishedSnapshot
		if err := readJSON(fs, path.Join(graphID, e.File), &snap); err != nil {
			return res, err
		}
		if snap.GraphID != graphID || snap.Version != e.Version || snap.Digest != e.Digest {
			return res, fmt.Errorf("bundle entry %s does not match manifest", e.File)
		}

		ok, err := dst.Import(ctx, &snap)
		if err != nil {
			return res, fmt.Errorf("import version %d: %w", e.Version, err)
		}
		if ok {
			res.Imported = append(res.Imported, e.Version)
		} else {
			res.Skipped = append(res.Skipped, e.Version)
		}
	}
	return res, nil
}

func writeJSON(fs billy.Filesystem, name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := util.WriteFile(fs, name, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func readJSON(fs billy.Filesystem, name string, v any) error {
	b, err := util.ReadFile(fs, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

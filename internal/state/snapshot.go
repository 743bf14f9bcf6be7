package state

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo is what a snapshot remembers about one file. SHA256 is empty
// when the run did not hash content; the diff then falls back to size and
// mtime comparison.
type FileInfo struct {
	Size      int64
	ModTimeNS int64
	SHA256    string
}

// Snapshot is the state of the output tree at the end of one run, keyed by
// slash-separated relative path.
type Snapshot struct {
	RunID   string
	TakenAt time.Time
	Files   map[string]FileInfo
}

// internalDirs are bookkeeping subtrees excluded from snapshots so state
// churn never shows up as content changes.
var internalDirs = map[string]struct{}{
	"_state": {},
}

// Build walks root and records size and mtime for every content file.
// hashes, when non-nil, supplies precomputed digests by relative path;
// paths absent from the map are recorded without a hash.
func Build(root, runID string, hashes map[string]string) (*Snapshot, error) {
	snap := &Snapshot{
		RunID:   runID,
		TakenAt: time.Now(),
		Files:   make(map[string]FileInfo),
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if _, skip := internalDirs[rel]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "clone_manifest.json" || strings.HasSuffix(rel, ".ndjson") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		snap.Files[rel] = FileInfo{
			Size:      info.Size(),
			ModTimeNS: info.ModTime().UnixNano(),
			SHA256:    hashes[rel],
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	return snap, nil
}

// Package checksum computes and verifies SHA-256 digests for the mirrored
// tree. Digests are independent per file, so computation fans out across a
// small worker pool; results land in an append-only map guarded by a mutex.
package checksum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/manifest"
)

const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// apiDir is the capture subtree whose JSON payloads are always in scope.
const apiDir = "_api"

// coreExtensions are always hashed regardless of configuration.
var coreExtensions = map[string]struct{}{
	".html": {},
	".htm":  {},
}

// Scope decides which files participate in checksum and verification.
type Scope struct {
	extra map[string]struct{}
}

// NewScope builds a scope from the configured extra extension list. Each
// entry is normalized to a leading-dot lowercase form.
func NewScope(extraExtensions []string) Scope {
	s := Scope{extra: make(map[string]struct{}, len(extraExtensions))}
	for _, ext := range extraExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.extra[ext] = struct{}{}
	}
	return s
}

// Contains reports whether the relative path is hashed: core HTML
// extensions, JSON under the API capture tree, or a configured extra
// extension.
func (s Scope) Contains(relPath string) bool {
	ext := strings.ToLower(filepath.Ext(relPath))
	if _, ok := coreExtensions[ext]; ok {
		return true
	}
	if ext == ".json" && underAPIDir(relPath) {
		return true
	}
	_, ok := s.extra[ext]
	return ok
}

func underAPIDir(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	return strings.HasPrefix(rel, apiDir+"/") || strings.Contains(rel, "/"+apiDir+"/")
}

// Compute walks root and returns a map of slash-separated relative path to
// hex digest for every in-scope file. workers <= 0 selects GOMAXPROCS.
func Compute(ctx context.Context, root string, scope Scope, workers int) (map[string]string, error) {
	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if scope.Contains(rel) {
			candidates = append(candidates, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk output tree: %w", err)
	}
	sort.Strings(candidates)

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu      sync.Mutex
		sums    = make(map[string]string, len(candidates))
		wg      sync.WaitGroup
		paths   = make(chan string)
		errOnce sync.Once
		walkErr error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range paths {
				sum, err := hashFile(filepath.Join(root, filepath.FromSlash(rel)))
				if err != nil {
					errOnce.Do(func() { walkErr = fmt.Errorf("hash %s: %w", rel, err) })
					continue
				}
				mu.Lock()
				sums[rel] = sum
				mu.Unlock()
			}
		}()
	}
	for _, rel := range candidates {
		select {
		case <-ctx.Done():
			close(paths)
			wg.Wait()
			return nil, ctx.Err()
		case paths <- rel:
		}
	}
	close(paths)
	wg.Wait()
	if walkErr != nil {
		return nil, walkErr
	}
	return sums, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify re-reads every recorded path and recomputes its digest. In fast
// mode a path missing from disk is skipped without failing; deep mode
// treats missing or mismatched paths as verification failures. Verification
// never writes to the tree.
func Verify(ctx context.Context, root string, recorded map[string]string, deep bool) (*manifest.Verification, time.Duration, error) {
	start := time.Now()
	// FastMissing echoes the verification mode so manifest consumers know
	// missing files could not have failed this run.
	v := &manifest.Verification{Total: len(recorded), FastMissing: !deep}

	paths := make([]string, 0, len(recorded))
	for rel := range recorded {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, time.Since(start), err
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))
		sum, err := hashFile(abs)
		switch {
		case os.IsNotExist(err):
			v.Missing++
		case err != nil:
			return nil, time.Since(start), fmt.Errorf("verify %s: %w", rel, err)
		case sum != recorded[rel]:
			v.Mismatched++
		default:
			v.OK++
		}
	}

	failed := v.Mismatched > 0 || (deep && v.Missing > 0)
	if failed {
		v.Status = StatusFailed
	} else {
		v.Status = StatusPassed
	}
	return v, time.Since(start), nil
}

package plugin

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/manifest"
)

// transformExtensions are the output files offered to the asset hook.
var transformExtensions = map[string]struct{}{
	".html": {},
	".htm":  {},
	".css":  {},
	".js":   {},
}

// Dispatcher fans each hook out across the loaded plugins. Hook failures
// and panics are converted to plugin_error events at the call site; one
// plugin can never affect another or abort the run.
type Dispatcher struct {
	logger  *zap.Logger
	emitter events.Emitter
	plugins []Handle
	mods    map[string]int
}

func NewDispatcher(logger *zap.Logger, emitter events.Emitter, handles []Handle) *Dispatcher {
	return &Dispatcher{
		logger:  logger,
		emitter: emitter,
		plugins: handles,
		mods:    make(map[string]int),
	}
}

// Len reports the number of loaded plugins.
func (d *Dispatcher) Len() int { return len(d.plugins) }

// Modifications returns per-plugin asset modification counts for the
// manifest and summary event.
func (d *Dispatcher) Modifications() map[string]int {
	out := make(map[string]int, len(d.mods))
	for name, n := range d.mods {
		out[name] = n
	}
	return out
}

// PreDownload runs every plugin's pre-phase hook.
func (d *Dispatcher) PreDownload(pc Context) {
	for _, h := range d.plugins {
		pre, ok := h.Impl.(PreDownloader)
		if !ok {
			continue
		}
		if err := d.safeCall(h.Name, "pre_download", func() error {
			return pre.PreDownload(pc)
		}); err != nil {
			d.report(h.Name, "pre_download", "", err)
		}
	}
}

// TransformTree offers every eligible file under root to each plugin's
// asset hook in turn, chaining replacements. A replacement is written with
// a temp-file rename so a partial write never leaves the asset mixed.
func (d *Dispatcher) TransformTree(pc Context, root string) error {
	transformers := make([]Handle, 0, len(d.plugins))
	for _, h := range d.plugins {
		if _, ok := h.Impl.(AssetTransformer); ok {
			transformers = append(transformers, h)
		}
	}
	if len(transformers) == 0 {
		return nil
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			name := entry.Name()
			if strings.HasPrefix(name, "_") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := transformExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk assets: %w", err)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		content, err := os.ReadFile(abs)
		if err != nil {
			d.report("", "post_asset", rel, err)
			continue
		}
		modified := false
		for _, h := range transformers {
			tr := h.Impl.(AssetTransformer)
			var (
				replacement []byte
				changed     bool
			)
			callErr := d.safeCall(h.Name, "post_asset", func() error {
				var err error
				replacement, changed, err = tr.TransformAsset(pc, rel, content)
				return err
			})
			if callErr != nil {
				d.report(h.Name, "post_asset", rel, callErr)
				continue
			}
			if changed {
				content = replacement
				modified = true
				d.mods[h.Name]++
			}
		}
		if modified {
			if err := replaceAtomic(abs, content); err != nil {
				d.report("", "post_asset", rel, err)
			}
		}
	}
	return nil
}

// Finalize runs every plugin's finalize hook against the completed
// manifest.
func (d *Dispatcher) Finalize(pc Context, m *manifest.Manifest) {
	for _, h := range d.plugins {
		fin, ok := h.Impl.(Finalizer)
		if !ok {
			continue
		}
		if err := d.safeCall(h.Name, "finalize", func() error {
			return fin.Finalize(pc, m)
		}); err != nil {
			d.report(h.Name, "finalize", "", err)
		}
	}
}

// safeCall converts a hook panic into an error so a misbehaving plugin
// stays inside its fault boundary.
func (d *Dispatcher) safeCall(name, hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s hook panicked: %v", hook, r)
		}
	}()
	return fn()
}

func (d *Dispatcher) report(name, hook, asset string, err error) {
	fields := events.Fields{"hook": hook, "error": err.Error()}
	if name != "" {
		fields["plugin"] = name
	}
	if asset != "" {
		fields["asset"] = asset
	}
	d.emitter.Emit(events.NamePluginError, fields)
	d.logger.Warn("plugin hook failed",
		zap.String("plugin", name),
		zap.String("hook", hook),
		zap.String("asset", asset),
		zap.Error(err))
}

func replaceAtomic(abs string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".plugin-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), abs)
}

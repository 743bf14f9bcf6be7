// Package plugin runs optional external hooks around a clone run. Every
// hook invocation sits behind a fault boundary: a failing or panicking
// plugin is logged and counted, never propagated.
package plugin

import (
	"time"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/manifest"
)

// Context is the view of the run handed to every hook. During the asset
// pass the manifest is only partially populated.
type Context struct {
	OutputRoot string
	RunID      string
	Timestamp  time.Time
	Manifest   *manifest.Manifest
}

// PreDownloader runs once before the static mirror starts.
type PreDownloader interface {
	PreDownload(pc Context) error
}

// AssetTransformer may rewrite one output file. It returns the replacement
// content and true, or false to leave the asset untouched.
type AssetTransformer interface {
	TransformAsset(pc Context, relPath string, content []byte) ([]byte, bool, error)
}

// Finalizer runs after all phases with the completed manifest, which it
// may mutate in place.
type Finalizer interface {
	Finalize(pc Context, m *manifest.Manifest) error
}

// Handle is one discovered plugin. Capabilities are optional; the
// dispatcher probes with type assertions.
type Handle struct {
	Name string
	Impl any
}

// Package manifest defines the aggregate record of one clone run and its
// JSON persistence. The manifest is exclusively owned by the run: every phase
// mutates it in turn and it is written once at the end.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the manifest document written into the output folder.
const FileName = "clone_manifest.json"

// PrerenderStats aggregates the dynamic crawl counters.
type PrerenderStats struct {
	PagesProcessed       int   `json:"pages_processed"`
	PagesFailed          int   `json:"pages_failed"`
	RoutesDiscovered     int   `json:"routes_discovered"`
	APICaptured          int   `json:"api_captured"`
	GraphQLCaptured      int   `json:"graphql_captured"`
	StorageCaptured      int   `json:"storage_captured"`
	ScrollPasses         int   `json:"scroll_passes"`
	DomStablePages       int   `json:"dom_stable_pages"`
	DomStableTimeouts    int   `json:"dom_stable_timeouts"`
	DomStableTotalWaitMs int64 `json:"dom_stable_total_wait_ms"`
}

// ModifiedFile is one drift entry in the diff report.
type ModifiedFile struct {
	Path       string `json:"path"`
	OldHash    string `json:"old_hash,omitempty"`
	NewHash    string `json:"new_hash,omitempty"`
	OldSize    int64  `json:"old_size"`
	NewSize    int64  `json:"new_size"`
	DeltaBytes int64  `json:"delta_bytes"`
}

// DiffReport classifies every path of the current tree against the previous
// snapshot. Added, Removed and the Modified paths are pairwise disjoint.
type DiffReport struct {
	Added          []string       `json:"added"`
	Removed        []string       `json:"removed"`
	Modified       []ModifiedFile `json:"modified"`
	Changed        []string       `json:"changed"`
	UnchangedCount int            `json:"unchanged_count"`
	TotalCurrent   int            `json:"total_current"`
}

// Verification is the checksum re-check summary. FastMissing echoes the
// mode: true whenever fast verification ran, where missing files are
// skipped rather than failed.
type Verification struct {
	Status      string `json:"status"`
	OK          int    `json:"ok"`
	Missing     int    `json:"missing"`
	Mismatched  int    `json:"mismatched"`
	Total       int    `json:"total"`
	FastMissing bool   `json:"fast_missing"`
}

// VerificationMeta records how long verification took.
type VerificationMeta struct {
	ElapsedMs int64 `json:"elapsed_ms"`
}

// Manifest is the single JSON document produced per run. Field names follow
// the established clone_manifest.json layout so existing consumers keep
// working; new fields are additive.
type Manifest struct {
	RunID        string `json:"run_id"`
	URL          string `json:"url"`
	OutputFolder string `json:"output_folder"`
	SiteRoot     string `json:"site_root,omitempty"`
	StartedUTC   string `json:"started_utc"`
	CompletedUTC string `json:"completed_utc,omitempty"`
	CloneSuccess bool   `json:"clone_success"`
	Canceled     bool   `json:"canceled,omitempty"`

	ParallelJobs        int   `json:"parallel_jobs"`
	SizeCapBytes        int64 `json:"size_cap_bytes,omitempty"`
	ThrottleBytesPerSec int64 `json:"throttle_bytes_per_sec,omitempty"`

	Prerender          bool  `json:"prerender"`
	PrerenderMaxPages  int   `json:"prerender_max_pages,omitempty"`
	PrerenderScroll    int   `json:"prerender_scroll_passes,omitempty"`
	DomStableMs        int64 `json:"dom_stable_ms,omitempty"`
	DomStableTimeoutMs int64 `json:"dom_stable_timeout_ms,omitempty"`
	RouterIntercept    bool  `json:"router_intercept"`

	CaptureAPI       bool `json:"capture_api"`
	CaptureAPIBinary bool `json:"capture_api_binary,omitempty"`
	CaptureGraphQL   bool `json:"capture_graphql,omitempty"`
	CaptureStorage   bool `json:"capture_storage,omitempty"`

	APICapturedCount     int             `json:"api_captured_count"`
	GraphQLCapturedCount int             `json:"graphql_captured_count,omitempty"`
	StorageCapturedCount int             `json:"storage_captured_count,omitempty"`
	PrerenderStats       *PrerenderStats `json:"prerender_stats,omitempty"`

	ChecksumsIncluded       bool              `json:"checksums_included"`
	ChecksumExtraExtensions []string          `json:"checksum_extra_extensions,omitempty"`
	ChecksumsSHA256         map[string]string `json:"checksums_sha256,omitempty"`

	Incremental bool        `json:"incremental"`
	Diff        *DiffReport `json:"diff,omitempty"`

	Verification     *Verification     `json:"verification,omitempty"`
	VerificationMeta *VerificationMeta `json:"verification_meta,omitempty"`

	PluginModifications map[string]int `json:"plugin_modifications,omitempty"`

	Warnings []string `json:"warnings,omitempty"`

	Timings               map[string]float64 `json:"timings"`
	PhaseDurationsSeconds map[string]float64 `json:"phase_durations_seconds"`

	ReproduceCommand []string `json:"reproduce_command,omitempty"`
	EventsFile       string   `json:"events_file,omitempty"`

	// Extra holds plugin finalize additions without schema changes.
	Extra map[string]any `json:"extra,omitempty"`
}

// New seeds a manifest at run start.
func New(runID, url, outputFolder string, started time.Time) *Manifest {
	return &Manifest{
		RunID:                 runID,
		URL:                   url,
		OutputFolder:          outputFolder,
		StartedUTC:            started.UTC().Format(time.RFC3339),
		Timings:               make(map[string]float64),
		PhaseDurationsSeconds: make(map[string]float64),
	}
}

// AddTiming records one phase duration under both the legacy timings key
// ("<phase>_seconds") and the phase_durations_seconds map.
func (m *Manifest) AddTiming(phase string, d time.Duration) {
	secs := d.Seconds()
	m.Timings[phase+"_seconds"] = secs
	m.PhaseDurationsSeconds[phase] = secs
}

// AddWarning appends a non-fatal condition for the manifest reader.
func (m *Manifest) AddWarning(text string) {
	m.Warnings = append(m.Warnings, text)
}

// SetExtra stores an arbitrary key for plugin finalize hooks.
func (m *Manifest) SetExtra(key string, value any) {
	if m.Extra == nil {
		m.Extra = make(map[string]any)
	}
	m.Extra[key] = value
}

// Path returns the manifest location under the given output folder.
func Path(outputFolder string) string {
	return filepath.Join(outputFolder, FileName)
}

// Write persists the manifest atomically (temp file + rename) so a crash
// mid-write never leaves a truncated document.
func (m *Manifest) Write(outputFolder string) error {
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	target := Path(outputFolder)
	tmp, err := os.CreateTemp(outputFolder, ".manifest-*")
	if err != nil {
		return fmt.Errorf("create manifest temp: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close manifest temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Read loads a manifest document.
func Read(path string) (*Manifest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

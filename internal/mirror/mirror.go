// Package mirror drives the static site transfer. The preferred collaborator
// is an external wget2 process observed through its progress stream; a
// colly-based fallback covers hosts without wget2 installed.
package mirror

import (
	"context"
	"errors"
)

// ErrWgetMissing indicates the wget2 binary is not installed.
var ErrWgetMissing = errors.New("wget2 binary not found")

// ErrTransferFailed indicates the transfer terminated without completing.
var ErrTransferFailed = errors.New("mirror transfer failed")

// Options describes one transfer.
type Options struct {
	URL             string
	OutputDir       string
	Jobs            int
	UserAgent       string
	QuotaBytes      int64
	LimitRateBPS    int64
	ExtraArgs       []string
	ErrorRatioLimit float64
	MinSamples      int
}

// Result summarizes a finished transfer.
type Result struct {
	FinalJobs   int
	Adjustments int
	LastPercent int
}

// Runner performs the static mirror transfer. Implementations are
// resumable: re-invoking against the same output path continues where the
// previous attempt stopped.
type Runner interface {
	Mirror(ctx context.Context, opts Options) (*Result, error)
}

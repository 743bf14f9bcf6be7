// Package render drives a headless browser over the route frontier,
// waiting for DOM quiescence and handing intercepted responses to the
// capture sinks.
package render

import (
	"context"
	"errors"
)

// ErrRendererUnavailable marks a systemic rendering failure. The dynamic
// phase degrades to skipped; the static mirror is unaffected.
var ErrRendererUnavailable = errors.New("renderer unavailable")

// CapturedResponse is one network exchange intercepted during a page load.
type CapturedResponse struct {
	Method      string
	URL         string
	ContentType string
	RequestBody []byte
	Body        []byte
}

// StorageSnapshot is the page's web storage at capture time.
type StorageSnapshot struct {
	Local   map[string]string
	Session map[string]string
}

// Session is one open page. The crawl controller drives sessions strictly
// one at a time.
type Session interface {
	Navigate(ctx context.Context, rawURL string) error
	WaitSelector(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, script string, out any) error
	Content(ctx context.Context) (string, error)
	CapturedResponses() []CapturedResponse
	Close() error
}

// Browser opens page sessions. Implementations own the underlying engine
// lifecycle; a Browser that cannot start reports ErrRendererUnavailable.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close(ctx context.Context) error
}

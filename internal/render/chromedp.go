package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures the headless browser.
type Options struct {
	UserAgent      string
	Timeout        time.Duration
	QPS            float64
	CaptureNetwork bool
}

// ChromedpBrowser renders pages with headless Chrome. One browser process
// is shared; every page gets its own tab context.
type ChromedpBrowser struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	limiter         *rate.Limiter
	opts            Options
}

// NewChromedpBrowser starts the browser process. A startup failure is
// reported as ErrRendererUnavailable so callers can degrade the dynamic
// phase instead of aborting the run.
func NewChromedpBrowser(opts Options, logger *zap.Logger) (*ChromedpBrowser, error) {
	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("%w: chromedp warmup: %v", ErrRendererUnavailable, err)
	}

	var limiter *rate.Limiter
	if opts.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.QPS), 1)
	}
	return &ChromedpBrowser{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		limiter:         limiter,
		opts:            opts,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (b *ChromedpBrowser) Close(context.Context) error {
	if b == nil {
		return nil
	}
	b.browserCancel()
	b.allocatorCancel()
	return nil
}

// NewSession opens a tab, honoring the render rate limit.
func (b *ChromedpBrowser) NewSession(ctx context.Context) (Session, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("render rate limit: %w", err)
		}
	}
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	sess := &chromedpSession{
		tabCtx:    tabCtx,
		cancel:    cancel,
		timeout:   b.opts.Timeout,
		userAgent: b.opts.UserAgent,
		logger:    b.logger,
		pending:   make(map[network.RequestID]*pendingExchange),
	}
	if b.opts.CaptureNetwork {
		sess.listen()
	}
	return sess, nil
}

type pendingExchange struct {
	method      string
	url         string
	contentType string
	requestBody string
	hasPostData bool
}

type chromedpSession struct {
	tabCtx    context.Context
	cancel    context.CancelFunc
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger

	mu       sync.Mutex
	pending  map[network.RequestID]*pendingExchange
	captured []CapturedResponse
	bodies   sync.WaitGroup
}

// listen wires the CDP network events. Bodies arrive after loading
// finishes, so each fetch runs on its own goroutine against the tab's
// executor and parks the result under the mutex.
func (s *chromedpSession) listen() {
	chromedp.ListenTarget(s.tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			s.mu.Lock()
			s.pending[e.RequestID] = &pendingExchange{
				method:      e.Request.Method,
				url:         e.Request.URL,
				requestBody: decodePostData(e.Request.PostDataEntries),
				hasPostData: e.Request.HasPostData,
			}
			s.mu.Unlock()
		case *network.EventResponseReceived:
			s.mu.Lock()
			if p, ok := s.pending[e.RequestID]; ok {
				p.contentType = e.Response.MimeType
				if p.url == "" {
					p.url = e.Response.URL
				}
			}
			s.mu.Unlock()
		case *network.EventLoadingFinished:
			s.mu.Lock()
			p, ok := s.pending[e.RequestID]
			delete(s.pending, e.RequestID)
			s.mu.Unlock()
			if !ok {
				return
			}
			s.bodies.Add(1)
			go s.fetchBody(e.RequestID, p)
		}
	})
}

// decodePostData reassembles the request body from the event's inline
// entries. Large bodies arrive without entries (HasPostData only) and are
// fetched separately.
func decodePostData(entries []*network.PostDataEntry) string {
	var b strings.Builder
	for _, entry := range entries {
		if entry == nil || entry.Bytes == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			continue
		}
		b.Write(raw)
	}
	return b.String()
}

func (s *chromedpSession) fetchBody(id network.RequestID, p *pendingExchange) {
	defer s.bodies.Done()
	c := chromedp.FromContext(s.tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	executor := cdp.WithExecutor(s.tabCtx, c.Target)
	if p.hasPostData && p.requestBody == "" {
		if postData, err := network.GetRequestPostData(id).Do(executor); err == nil {
			p.requestBody = postData
		}
	}
	body, err := network.GetResponseBody(id).Do(executor)
	if err != nil {
		// Bodies for redirects and cached entries are routinely gone.
		s.logger.Debug("response body unavailable",
			zap.String("url", p.url), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.captured = append(s.captured, CapturedResponse{
		Method:      p.method,
		URL:         p.url,
		ContentType: p.contentType,
		RequestBody: []byte(p.requestBody),
		Body:        body,
	})
	s.mu.Unlock()
}

func (s *chromedpSession) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	merged, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := forwardCancel(ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// forwardCancel propagates the caller's cancellation into a tab-scoped
// context without tying the tab's lifetime to it.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *chromedpSession) Navigate(ctx context.Context, rawURL string) error {
	runCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := chromedp.Run(runCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(s.userAgent),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(routerPatchScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return nil
}

func (s *chromedpSession) WaitSelector(ctx context.Context, selector string) error {
	runCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait selector %q: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) Evaluate(ctx context.Context, script string, out any) error {
	runCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

func (s *chromedpSession) Content(ctx context.Context) (string, error) {
	runCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}

// CapturedResponses drains everything intercepted so far, waiting briefly
// for in-flight body fetches.
func (s *chromedpSession) CapturedResponses() []CapturedResponse {
	waitDone := make(chan struct{})
	go func() {
		s.bodies.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.captured
	s.captured = nil
	return out
}

func (s *chromedpSession) Close() error {
	s.cancel()
	return nil
}

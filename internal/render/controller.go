package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/capture"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/classify"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/frontier"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/manifest"
)

// State is the controller's lifecycle phase.
type State string

const (
	StateIdle     State = "idle"
	StateSeeding  State = "seeding"
	StateDraining State = "draining"
	StateDone     State = "done"
)

// ControllerConfig bounds one dynamic crawl.
type ControllerConfig struct {
	StartURL        string
	MaxPages        int
	ScrollPasses    int
	StableWindow    time.Duration
	StableTimeout   time.Duration
	WaitSelector    string
	SettleDelay     time.Duration
	RouterIntercept bool
	IncludeHash     bool
	MaxRoutes       int
	Allow           []string
	Deny            []string
	CaptureStorage  bool
	RewriteURLs     bool
}

// Controller walks the route frontier one page at a time: render, wait for
// quiescence, capture, discover. Single page failures are counted and
// skipped; only loss of the rendering capability itself stops the crawl.
type Controller struct {
	cfg        ControllerConfig
	browser    Browser
	classifier *classify.Classifier
	store      *capture.Store
	emitter    events.Emitter
	logger     *zap.Logger

	origin *url.URL
	gate   StabilityGate
	state  State
	stats  manifest.PrerenderStats
}

func NewController(cfg ControllerConfig, browser Browser, classifier *classify.Classifier,
	store *capture.Store, emitter events.Emitter, logger *zap.Logger) (*Controller, error) {

	origin, err := url.Parse(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, fmt.Errorf("start url %q: unsupported scheme", cfg.StartURL)
	}
	return &Controller{
		cfg:        cfg,
		browser:    browser,
		classifier: classifier,
		store:      store,
		emitter:    emitter,
		logger:     logger,
		origin:     origin,
		gate:       StabilityGate{Window: cfg.StableWindow, Timeout: cfg.StableTimeout},
		state:      StateIdle,
	}, nil
}

// State reports the current lifecycle phase.
func (c *Controller) State() State { return c.state }

// Run drains the frontier until it is empty or the page cap is reached and
// returns the crawl counters. The returned error is non-nil only for
// systemic failures (renderer lost, context canceled).
func (c *Controller) Run(ctx context.Context) (*manifest.PrerenderStats, error) {
	c.state = StateSeeding
	f := frontier.New(c.cfg.MaxRoutes, c.cfg.Allow, c.cfg.Deny)
	for _, w := range f.Warnings() {
		c.emitter.Emit(events.NameRegexWarning, events.Fields{"warning": w})
		c.logger.Warn("route filter warning", zap.String("detail", w))
	}

	seed := c.origin.Path
	if seed == "" {
		seed = "/"
	}
	if c.origin.RawQuery != "" {
		seed += "?" + c.origin.RawQuery
	}
	f.Enqueue(seed, frontier.OriginAnchor)

	c.state = StateDraining
	attempts := 0
	for attempts < c.cfg.MaxPages {
		route, ok := f.Dequeue()
		if !ok {
			break
		}
		attempts++
		if err := c.renderRoute(ctx, route, f); err != nil {
			if errors.Is(err, ErrRendererUnavailable) || ctx.Err() != nil {
				c.state = StateDone
				return &c.stats, err
			}
			c.stats.PagesFailed++
			c.logger.Warn("page render failed",
				zap.String("route", route.Path), zap.Error(err))
			continue
		}
		c.stats.PagesProcessed++
	}

	c.state = StateDone
	caps := c.store.Stats()
	c.stats.APICaptured = caps.API
	c.stats.GraphQLCaptured = caps.GraphQL
	c.stats.StorageCaptured = caps.Storage
	return &c.stats, nil
}

func (c *Controller) renderRoute(ctx context.Context, route frontier.Route, f *frontier.Frontier) error {
	pageURL, err := url.Parse(route.Path)
	if err != nil {
		return fmt.Errorf("parse route %q: %w", route.Path, err)
	}
	full := c.origin.ResolveReference(pageURL)

	sess, err := c.browser.NewSession(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: open session: %v", ErrRendererUnavailable, err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, full.String()); err != nil {
		return err
	}
	if c.cfg.WaitSelector != "" {
		// Best effort: a missing selector should not fail the page.
		if err := sess.WaitSelector(ctx, c.cfg.WaitSelector); err != nil {
			c.logger.Debug("wait selector", zap.String("route", route.Path), zap.Error(err))
		}
	}
	if c.cfg.SettleDelay > 0 {
		select {
		case <-time.After(c.cfg.SettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i := 0; i < c.cfg.ScrollPasses; i++ {
		var atEnd bool
		if err := sess.Evaluate(ctx, scrollPassScript, &atEnd); err != nil {
			break
		}
		c.stats.ScrollPasses++
		if _, err := c.gate.Wait(ctx, sess); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if atEnd {
			break
		}
	}

	res, err := c.gate.Wait(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Debug("stability wait", zap.String("route", route.Path), zap.Error(err))
	}
	c.stats.DomStableTotalWaitMs += res.Waited.Milliseconds()
	if res.TimedOut {
		c.stats.DomStableTimeouts++
	} else if c.gate.Window > 0 {
		c.stats.DomStablePages++
	}

	html, err := sess.Content(ctx)
	if err != nil {
		return err
	}
	if c.cfg.RewriteURLs {
		html = rewriteOriginLinks(html, c.origin)
	}
	rel, err := c.store.SaveHTML(full, []byte(html))
	if err != nil {
		return err
	}
	c.emitter.Emit(events.NamePageRendered, events.Fields{
		"url":       full.String(),
		"path":      rel,
		"timed_out": res.TimedOut,
	})

	c.captureResponses(sess)
	c.captureStorage(ctx, sess, full)
	c.discoverRoutes(ctx, sess, full, html, f)
	return nil
}

func (c *Controller) captureResponses(sess Session) {
	for _, resp := range sess.CapturedResponses() {
		u, err := url.Parse(resp.URL)
		if err != nil {
			continue
		}
		category := c.classifier.Classify(classify.Response{
			Method:      resp.Method,
			URL:         resp.URL,
			ContentType: resp.ContentType,
			RequestBody: resp.RequestBody,
			Body:        resp.Body,
		})

		var (
			rel     string
			saveErr error
		)
		switch category {
		case classify.CategoryGraphQL:
			rel, saveErr = c.store.SaveGraphQL(u, resp.RequestBody, resp.Body)
		case classify.CategoryAPIText:
			rel, saveErr = c.store.SaveAPIText(u, classify.TextExtension(resp.ContentType), resp.Body)
		case classify.CategoryAPIBinary:
			rel, saveErr = c.store.SaveAPIBinary(u, classify.BinaryExtension(resp.ContentType), resp.Body)
		default:
			continue
		}
		if saveErr != nil {
			c.logger.Warn("capture failed", zap.String("url", resp.URL), zap.Error(saveErr))
			continue
		}
		c.emitter.Emit(events.NameCapture, events.Fields{
			"category": string(category),
			"url":      resp.URL,
			"path":     rel,
		})
	}
}

func (c *Controller) captureStorage(ctx context.Context, sess Session, pageURL *url.URL) {
	if !c.cfg.CaptureStorage {
		return
	}
	var dump struct {
		Local   map[string]string `json:"local"`
		Session map[string]string `json:"session"`
	}
	if err := sess.Evaluate(ctx, storageDumpScript, &dump); err != nil {
		c.logger.Debug("storage dump", zap.String("url", pageURL.String()), zap.Error(err))
		return
	}
	rel, wrote, err := c.store.SaveStorage(pageURL, dump.Local, dump.Session)
	if err != nil {
		c.logger.Warn("storage capture failed", zap.String("url", pageURL.String()), zap.Error(err))
		return
	}
	if wrote {
		c.emitter.Emit(events.NameCapture, events.Fields{
			"category": "storage",
			"url":      pageURL.String(),
			"path":     rel,
		})
	}
}

func (c *Controller) discoverRoutes(ctx context.Context, sess Session, pageURL *url.URL, html string, f *frontier.Frontier) {
	if c.cfg.RouterIntercept {
		var clientRoutes []string
		if err := sess.Evaluate(ctx, drainRoutesScript, &clientRoutes); err == nil {
			for _, raw := range clientRoutes {
				if path, ok := c.normalizeRoute(pageURL, raw); ok && f.Enqueue(path, frontier.OriginRouter) {
					c.stats.RoutesDiscovered++
				}
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if path, ok := c.normalizeRoute(pageURL, href); ok && f.Enqueue(path, frontier.OriginAnchor) {
			c.stats.RoutesDiscovered++
		}
	})
}

// normalizeRoute resolves a discovered link against the current page and
// keeps it only when it stays on the start origin.
func (c *Controller) normalizeRoute(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "mailto:") || strings.HasPrefix(raw, "javascript:") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme != c.origin.Scheme || !strings.EqualFold(resolved.Host, c.origin.Host) {
		return "", false
	}
	path := resolved.Path
	if path == "" {
		path = "/"
	}
	if resolved.RawQuery != "" {
		path += "?" + resolved.RawQuery
	}
	if c.cfg.IncludeHash && resolved.Fragment != "" {
		path += "#" + resolved.Fragment
	}
	return path, true
}

// rewriteOriginLinks turns absolute links back to the origin into
// root-relative ones so the mirrored tree browses offline.
func rewriteOriginLinks(html string, origin *url.URL) string {
	abs := origin.Scheme + "://" + origin.Host
	html = strings.ReplaceAll(html, abs+"/", "/")
	return strings.ReplaceAll(html, abs, "/")
}

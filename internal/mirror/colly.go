package mirror

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyRunner is the built-in fallback transfer for hosts without wget2.
// It walks same-origin links and page requisites with a bounded worker
// pool. Byte-rate throttling is not supported here; the quota still is.
type CollyRunner struct {
	logger *zap.Logger
}

func NewCollyRunner(logger *zap.Logger) *CollyRunner {
	return &CollyRunner{logger: logger}
}

func (r *CollyRunner) Mirror(ctx context.Context, opts Options) (*Result, error) {
	target, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse mirror url: %w", err)
	}
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(opts.UserAgent),
		colly.AllowedDomains(target.Hostname()),
	)
	collector.AllowURLRevisit = false
	collector.SetRequestTimeout(30 * time.Second)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: jobs,
	}); err != nil {
		return nil, fmt.Errorf("configure mirror limits: %w", err)
	}

	var written int64
	overQuota := func() bool {
		return opts.QuotaBytes > 0 && atomic.LoadInt64(&written) >= opts.QuotaBytes
	}

	collector.OnRequest(func(req *colly.Request) {
		if ctx.Err() != nil || overQuota() {
			req.Abort()
		}
	})

	collector.OnResponse(func(resp *colly.Response) {
		rel := mirrorRelPath(resp.Request.URL, resp.Headers.Get("Content-Type"))
		abs := filepath.Join(opts.OutputDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			r.logger.Warn("mirror write failed", zap.String("path", rel), zap.Error(err))
			return
		}
		if err := os.WriteFile(abs, resp.Body, 0o644); err != nil {
			r.logger.Warn("mirror write failed", zap.String("path", rel), zap.Error(err))
			return
		}
		atomic.AddInt64(&written, int64(len(resp.Body)))
	})

	visit := func(e *colly.HTMLElement, attr string) {
		link := e.Request.AbsoluteURL(e.Attr(attr))
		if link == "" {
			return
		}
		// Visit errors are expected noise: off-domain, revisits, quota.
		_ = e.Request.Visit(link)
	}
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) { visit(e, "href") })
	collector.OnHTML("link[href]", func(e *colly.HTMLElement) { visit(e, "href") })
	collector.OnHTML("script[src]", func(e *colly.HTMLElement) { visit(e, "src") })
	collector.OnHTML("img[src]", func(e *colly.HTMLElement) { visit(e, "src") })

	collector.OnError(func(resp *colly.Response, err error) {
		r.logger.Debug("mirror fetch error",
			zap.String("url", resp.Request.URL.String()), zap.Error(err))
	})

	if err := collector.Visit(opts.URL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{FinalJobs: jobs, LastPercent: 100}, nil
}

// mirrorRelPath lays files out the way wget2's adjust-extension mode does:
// directory URLs get index.html, extensionless HTML documents gain .html.
func mirrorRelPath(u *url.URL, contentType string) string {
	p := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	isHTML := strings.Contains(contentType, "text/html")
	switch {
	case p == "" || strings.HasSuffix(u.Path, "/"):
		p = path.Join(p, "index.html")
	case path.Ext(p) == "" && isHTML:
		p += ".html"
	}
	if u.RawQuery != "" && isHTML {
		// Keep distinct query variants apart, mirroring wget2's
		// file naming for dynamic pages.
		p += "@" + url.PathEscape(u.RawQuery)
	}
	return p
}

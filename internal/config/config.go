// Package config loads and validates the clone run configuration.
// All values originate from Viper so the tool can be configured via a config
// file, environment variables, or CLI flags.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob that influences a clone run.
type Config struct {
	URL  string
	Dest string
	// Name is the site folder created under Dest. Defaults to the target host.
	Name string

	// Static mirror transfer.
	Jobs             int
	UserAgent        string
	SizeCapBytes     int64
	ThrottleBPS      int64
	ExtraMirrorArgs  []string
	AllowHTTPMirror  bool
	ErrorRatioLimit  float64
	MirrorMinSamples int

	// Dynamic rendering.
	Prerender          bool
	PrerenderMaxPages  int
	PrerenderScroll    int
	DomStableWindow    time.Duration
	DomStableTimeout   time.Duration
	RenderTimeout      time.Duration
	RenderQPS          float64
	RouterIntercept    bool
	RouterIncludeHash  bool
	RouterMaxRoutes    int
	RouterSettle       time.Duration
	RouterWaitSelector string
	RouterAllow        []string
	RouterDeny         []string
	RewriteURLs        bool

	// Response capture.
	CaptureAPI       bool
	CaptureAPIBinary bool
	CaptureGraphQL   bool
	CaptureStorage   bool
	APIContentTypes  []string

	// Integrity.
	Checksums       bool
	ChecksumExt     []string
	ChecksumWorkers int
	VerifyAfter     bool
	VerifyDeep      bool

	// Drift tracking.
	Incremental bool
	DiffLatest  bool

	// Pipeline extensions.
	PluginsDir string
	EventsFile string

	// Preview server.
	BindIP string
	Port   int
}

// SetDefaults registers every default on the provided Viper instance. Called
// once at startup before flags are bound.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("clone.jobs", 4)
	v.SetDefault("clone.user_agent", "cw2dt/2.0 (+https://github.com/RandyNorthrup/Clone-Website-to-Docker-Tool)")
	v.SetDefault("clone.allow_http_mirror", false)
	v.SetDefault("clone.error_ratio_limit", 0.3)
	v.SetDefault("clone.mirror_min_samples", 40)

	v.SetDefault("prerender.enabled", false)
	v.SetDefault("prerender.max_pages", 40)
	v.SetDefault("prerender.scroll_passes", 0)
	v.SetDefault("prerender.dom_stable_ms", 0)
	v.SetDefault("prerender.dom_stable_timeout_ms", 0)
	v.SetDefault("prerender.render_timeout", "25s")
	v.SetDefault("prerender.render_qps", 0.0)
	v.SetDefault("prerender.rewrite_urls", true)

	v.SetDefault("router.intercept", false)
	v.SetDefault("router.include_hash", false)
	v.SetDefault("router.max_routes", 200)
	v.SetDefault("router.settle_ms", 350)

	v.SetDefault("capture.api", false)
	v.SetDefault("capture.api_binary", false)
	v.SetDefault("capture.graphql", false)
	v.SetDefault("capture.storage", false)
	v.SetDefault("capture.api_content_types", []string{"application/json"})

	v.SetDefault("checksums.enabled", false)
	v.SetDefault("checksums.workers", 4)
	v.SetDefault("verify.after", false)
	v.SetDefault("verify.deep", false)

	v.SetDefault("incremental.enabled", false)
	v.SetDefault("incremental.diff_latest", false)

	v.SetDefault("serve.bind_ip", "127.0.0.1")
	v.SetDefault("serve.port", 8080)
}

// Load constructs a Config by reading from Viper.
func Load(v *viper.Viper) (Config, error) {
	sizeCap, err := parseOptionalSize(v.GetString("clone.size_cap"))
	if err != nil {
		return Config{}, fmt.Errorf("clone.size_cap: %w", err)
	}
	throttle, err := parseOptionalSize(v.GetString("clone.throttle"))
	if err != nil {
		return Config{}, fmt.Errorf("clone.throttle: %w", err)
	}

	cfg := Config{
		URL:              v.GetString("clone.url"),
		Dest:             v.GetString("clone.dest"),
		Name:             v.GetString("clone.name"),
		Jobs:             v.GetInt("clone.jobs"),
		UserAgent:        v.GetString("clone.user_agent"),
		SizeCapBytes:     sizeCap,
		ThrottleBPS:      throttle,
		ExtraMirrorArgs:  v.GetStringSlice("clone.extra_mirror_args"),
		AllowHTTPMirror:  v.GetBool("clone.allow_http_mirror"),
		ErrorRatioLimit:  v.GetFloat64("clone.error_ratio_limit"),
		MirrorMinSamples: v.GetInt("clone.mirror_min_samples"),

		Prerender:          v.GetBool("prerender.enabled"),
		PrerenderMaxPages:  v.GetInt("prerender.max_pages"),
		PrerenderScroll:    v.GetInt("prerender.scroll_passes"),
		DomStableWindow:    time.Duration(v.GetInt("prerender.dom_stable_ms")) * time.Millisecond,
		DomStableTimeout:   time.Duration(v.GetInt("prerender.dom_stable_timeout_ms")) * time.Millisecond,
		RenderTimeout:      v.GetDuration("prerender.render_timeout"),
		RenderQPS:          v.GetFloat64("prerender.render_qps"),
		RouterIntercept:    v.GetBool("router.intercept"),
		RouterIncludeHash:  v.GetBool("router.include_hash"),
		RouterMaxRoutes:    v.GetInt("router.max_routes"),
		RouterSettle:       time.Duration(v.GetInt("router.settle_ms")) * time.Millisecond,
		RouterWaitSelector: v.GetString("router.wait_selector"),
		RouterAllow:        splitPatterns(v.GetString("router.allow")),
		RouterDeny:         splitPatterns(v.GetString("router.deny")),
		RewriteURLs:        v.GetBool("prerender.rewrite_urls"),

		CaptureAPI:       v.GetBool("capture.api"),
		CaptureAPIBinary: v.GetBool("capture.api_binary"),
		CaptureGraphQL:   v.GetBool("capture.graphql"),
		CaptureStorage:   v.GetBool("capture.storage"),
		APIContentTypes:  v.GetStringSlice("capture.api_content_types"),

		Checksums:       v.GetBool("checksums.enabled"),
		ChecksumExt:     normalizeExtensions(splitPatterns(v.GetString("checksums.extra_extensions"))),
		ChecksumWorkers: v.GetInt("checksums.workers"),
		VerifyAfter:     v.GetBool("verify.after"),
		VerifyDeep:      v.GetBool("verify.deep"),

		Incremental: v.GetBool("incremental.enabled"),
		DiffLatest:  v.GetBool("incremental.diff_latest"),

		PluginsDir: v.GetString("plugins.dir"),
		EventsFile: v.GetString("events.file"),

		BindIP: v.GetString("serve.bind_ip"),
		Port:   v.GetInt("serve.port"),
	}

	if cfg.Name == "" {
		cfg.Name = deriveName(cfg.URL)
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("clone.url must be set")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("clone.url is not a valid URL: %w", err)
	}
	if c.Dest == "" {
		return fmt.Errorf("clone.dest must be set")
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("clone.jobs must be > 0")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("clone.user_agent must be set")
	}
	if c.PrerenderMaxPages <= 0 {
		return fmt.Errorf("prerender.max_pages must be > 0")
	}
	if c.RouterMaxRoutes <= 0 {
		return fmt.Errorf("router.max_routes must be > 0")
	}
	if c.ChecksumWorkers <= 0 {
		return fmt.Errorf("checksums.workers must be > 0")
	}
	if c.ErrorRatioLimit < 0 || c.ErrorRatioLimit > 1 {
		return fmt.Errorf("clone.error_ratio_limit must be within [0,1]")
	}
	if c.VerifyDeep && !c.Checksums {
		return fmt.Errorf("verify.deep requires checksums.enabled")
	}
	return nil
}

// OutputFolder is the per-site directory created under Dest.
func (c Config) OutputFolder() string {
	return strings.TrimRight(c.Dest, "/") + "/" + c.Name
}

// Origin returns scheme://host of the target URL, or "" when unparsable.
func (c Config) Origin() string {
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func deriveName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "site"
	}
	return strings.ReplaceAll(u.Hostname(), ".", "_")
}

func splitPatterns(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, ext := range in {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

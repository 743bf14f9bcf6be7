package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/clone"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/config"
)

// cloneFlagBindings maps flags on the clone command to their viper keys so
// CLI, config file, and environment all resolve through one path.
var cloneFlagBindings = map[string]string{
	"url":              "clone.url",
	"dest":             "clone.dest",
	"name":             "clone.name",
	"jobs":             "clone.jobs",
	"user-agent":       "clone.user_agent",
	"size-cap":         "clone.size_cap",
	"throttle":         "clone.throttle",
	"allow-http":       "clone.allow_http_mirror",
	"prerender":        "prerender.enabled",
	"max-pages":        "prerender.max_pages",
	"scroll-passes":    "prerender.scroll_passes",
	"dom-stable-ms":    "prerender.dom_stable_ms",
	"dom-timeout-ms":   "prerender.dom_stable_timeout_ms",
	"router-intercept": "router.intercept",
	"router-allow":     "router.allow",
	"router-deny":      "router.deny",
	"max-routes":       "router.max_routes",
	"capture-api":      "capture.api",
	"capture-binary":   "capture.api_binary",
	"capture-graphql":  "capture.graphql",
	"capture-storage":  "capture.storage",
	"checksums":        "checksums.enabled",
	"checksum-ext":     "checksums.extra_extensions",
	"verify":           "verify.after",
	"verify-deep":      "verify.deep",
	"incremental":      "incremental.enabled",
	"diff-latest":      "incremental.diff_latest",
	"plugins-dir":      "plugins.dir",
	"events-file":      "events.file",
}

func newCloneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Mirror a website into a local folder",
		Long: `Runs a full clone: static mirror via wget2 (resumable, adaptive
concurrency), optional dynamic prerender with API/GraphQL/storage capture,
plugin passes, checksums, incremental diff, and verification.`,
		RunE: runCloneCommand,
	}

	f := cmd.Flags()
	f.String("url", "", "target site URL (required)")
	f.String("dest", ".", "destination directory")
	f.String("name", "", "site folder name (default: derived from host)")
	f.IntP("jobs", "j", 4, "parallel mirror connections")
	f.String("user-agent", "", "user agent for mirror and render")
	f.String("size-cap", "", "total download quota, e.g. 2G")
	f.String("throttle", "", "bandwidth limit per second, e.g. 512K")
	f.Bool("allow-http", false, "fall back to the built-in fetcher when wget2 is missing")
	f.Bool("prerender", false, "render client-side routes with a headless browser")
	f.Int("max-pages", 40, "prerender page cap")
	f.Int("scroll-passes", 0, "scroll passes per rendered page")
	f.Int("dom-stable-ms", 0, "DOM quiet window before capture (ms)")
	f.Int("dom-timeout-ms", 0, "max wait for DOM quiescence (ms)")
	f.Bool("router-intercept", false, "capture client-side router navigations")
	f.String("router-allow", "", "comma-separated allow patterns for routes")
	f.String("router-deny", "", "comma-separated deny patterns for routes")
	f.Int("max-routes", 200, "route discovery cap")
	f.Bool("capture-api", false, "persist JSON API responses under _api/")
	f.Bool("capture-binary", false, "persist binary API responses too")
	f.Bool("capture-graphql", false, "persist GraphQL request/response bundles")
	f.Bool("capture-storage", false, "persist localStorage/sessionStorage per page")
	f.Bool("checksums", false, "record SHA-256 checksums in the manifest")
	f.String("checksum-ext", "", "comma-separated extra extensions to checksum")
	f.Bool("verify", false, "fast checksum verification after the run")
	f.Bool("verify-deep", false, "strict verification; missing files fail the run")
	f.Bool("incremental", false, "track snapshots and diff against the previous run")
	f.Bool("diff-latest", false, "report the diff against the latest snapshot")
	f.String("plugins-dir", "", "directory of executable plugins")
	f.String("events-file", "", "write the NDJSON event stream to this path")

	for flag, key := range cloneFlagBindings {
		if err := viper.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
	return cmd
}

func runCloneCommand(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runner, err := clone.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init clone run: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exit := runner.Run(ctx)
	if exit != clone.ExitOK {
		logger.Warn("run finished with errors", zap.Int("exit_code", exit))
		os.Exit(exit)
	}
	return nil
}

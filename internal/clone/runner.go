// Package clone orchestrates a full run: static mirror, dynamic prerender,
// plugin passes, checksums, incremental diff, verification, manifest.
// Phases execute strictly in sequence and the manifest is owned by the run.
package clone

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/capture"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/checksum"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/classify"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/config"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events/sinks"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/logging"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/manifest"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/mirror"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/plugin"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/render"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/state"
)

// Process exit codes, kept stable for scripting.
const (
	ExitOK           = 0
	ExitWgetMissing  = 12
	ExitCloneFailed  = 13
	ExitCanceled     = 15
	ExitVerifyFailed = 16
)

// Runner executes one clone run end to end.
type Runner struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string
	events *events.Dispatcher

	// collaborators, replaceable in tests
	wget            mirror.Runner
	fallback        mirror.Runner
	newBrowser      func(logger *zap.Logger) (render.Browser, error)
	discoverPlugins func(dir string) ([]plugin.Handle, error)
}

// New wires the event sinks and collaborators for one run.
func New(cfg config.Config, base *zap.Logger) (*Runner, error) {
	runID := uuid.NewString()
	logger := logging.ForRun(base, runID)

	sinkList := []events.Sink{sinks.NewLogSink(logger)}
	prom, err := sinks.NewPrometheusSink(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("wire metrics sink: %w", err)
	}
	sinkList = append(sinkList, prom)
	if cfg.EventsFile != "" {
		fileSink, err := sinks.NewFileSink(cfg.EventsFile)
		if err != nil {
			return nil, fmt.Errorf("open events file: %w", err)
		}
		sinkList = append(sinkList, fileSink)
	}
	dispatcher := events.NewDispatcher(runID, logger, sinkList...)

	r := &Runner{
		cfg:             cfg,
		logger:          logger,
		runID:           runID,
		events:          dispatcher,
		wget:            mirror.NewWget2Runner(logger, dispatcher),
		fallback:        mirror.NewCollyRunner(logger),
		discoverPlugins: plugin.Discover,
	}
	r.newBrowser = func(logger *zap.Logger) (render.Browser, error) {
		return render.NewChromedpBrowser(render.Options{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.RenderTimeout,
			QPS:       cfg.RenderQPS,
			CaptureNetwork: cfg.CaptureAPI || cfg.CaptureAPIBinary ||
				cfg.CaptureGraphQL,
		}, logger)
	}
	return r, nil
}

// RunID identifies this run in events and the manifest.
func (r *Runner) RunID() string { return r.runID }

// Run executes every phase and returns the process exit code. Failures are
// reported through events and the manifest; the error return is reserved
// for problems before the run could start.
func (r *Runner) Run(ctx context.Context) int {
	started := time.Now()
	out := r.cfg.OutputFolder()
	m := manifest.New(r.runID, r.cfg.URL, out, started)
	r.echoConfig(m)
	m.ReproduceCommand = reproduceCommand(r.cfg)
	defer r.events.Close(context.Background())

	if err := os.MkdirAll(out, 0o755); err != nil {
		r.logger.Error("output path unwritable", zap.String("path", out), zap.Error(err))
		r.events.Emit(events.NameSummaryFinal, events.Fields{"exit_code": ExitCloneFailed})
		return ExitCloneFailed
	}

	r.events.Emit(events.NameStart, events.Fields{
		"url":           r.cfg.URL,
		"output_folder": out,
		"prerender":     r.cfg.Prerender,
		"incremental":   r.cfg.Incremental,
	})

	target, err := url.Parse(r.cfg.URL)
	if err != nil || target.Hostname() == "" {
		r.logger.Error("invalid target url", zap.String("url", r.cfg.URL))
		return r.finish(m, ExitCloneFailed, false)
	}
	siteRoot := filepath.Join(out, target.Hostname())
	m.SiteRoot = target.Hostname()

	pdisp, pc := r.loadPlugins(m, out, started)

	if pdisp.Len() > 0 {
		r.phase(m, "pre_download", func() error {
			pdisp.PreDownload(pc)
			return nil
		})
	}

	if exit, done := r.runMirror(ctx, m, out, siteRoot); done {
		return exit
	}
	if ctx.Err() != nil {
		return r.finishCanceled(m)
	}

	if r.cfg.Prerender {
		r.runPrerender(ctx, m, siteRoot)
		if ctx.Err() != nil {
			return r.finishCanceled(m)
		}
	}

	if pdisp.Len() > 0 {
		if err := r.phase(m, "plugins_post_asset", func() error {
			return pdisp.TransformTree(pc, out)
		}); err != nil {
			m.AddWarning(fmt.Sprintf("asset pass incomplete: %v", err))
		}
	}

	var sums map[string]string
	if r.cfg.Checksums {
		if err := r.phase(m, "checksum", func() error {
			scope := checksum.NewScope(r.cfg.ChecksumExt)
			computed, err := checksum.Compute(ctx, out, scope, r.cfg.ChecksumWorkers)
			if err != nil {
				return err
			}
			sums = computed
			m.ChecksumsSHA256 = computed
			m.ChecksumsIncluded = true
			m.ChecksumExtraExtensions = r.cfg.ChecksumExt
			return nil
		}); err != nil {
			if ctx.Err() != nil {
				return r.finishCanceled(m)
			}
			m.AddWarning(fmt.Sprintf("checksum phase failed: %v", err))
		}
	}

	var (
		store *state.Store
		snap  *state.Snapshot
	)
	if r.cfg.Incremental || r.cfg.DiffLatest {
		if err := r.phase(m, "incremental", func() error {
			st, err := state.Open(state.DefaultPath(out))
			if err != nil {
				return err
			}
			store = st
			prev, err := st.Latest(ctx)
			if err != nil {
				return err
			}
			cur, err := state.Build(out, r.runID, sums)
			if err != nil {
				return err
			}
			// --diff-latest alone reports drift without advancing the
			// snapshot chain.
			if r.cfg.Incremental {
				snap = cur
			}
			m.Incremental = r.cfg.Incremental
			m.Diff = state.Diff(prev, cur)
			return nil
		}); err != nil {
			m.AddWarning(fmt.Sprintf("incremental phase failed: %v", err))
			snap = nil
		}
		if store != nil {
			defer store.Close()
		}
	}

	exit := ExitOK
	if (r.cfg.VerifyAfter || r.cfg.VerifyDeep) && len(m.ChecksumsSHA256) > 0 {
		if err := r.phase(m, "verify", func() error {
			v, elapsed, err := checksum.Verify(ctx, out, m.ChecksumsSHA256, r.cfg.VerifyDeep)
			if err != nil {
				return err
			}
			m.Verification = v
			m.VerificationMeta = &manifest.VerificationMeta{ElapsedMs: elapsed.Milliseconds()}
			return nil
		}); err != nil {
			if ctx.Err() != nil {
				return r.finishCanceled(m)
			}
			m.AddWarning(fmt.Sprintf("verification failed to run: %v", err))
		}
		if r.cfg.VerifyDeep && m.Verification != nil && m.Verification.Status == checksum.StatusFailed {
			exit = ExitVerifyFailed
		}
	}

	m.PluginModifications = pdisp.Modifications()
	if pdisp.Len() > 0 {
		r.phase(m, "plugins_finalize", func() error {
			pdisp.Finalize(pc, m)
			return nil
		})
	}

	if ctx.Err() != nil {
		return r.finishCanceled(m)
	}
	if snap != nil && store != nil {
		if err := store.Save(ctx, snap); err != nil {
			m.AddWarning(fmt.Sprintf("snapshot not saved: %v", err))
		}
	}
	return r.finish(m, exit, true)
}

func (r *Runner) loadPlugins(m *manifest.Manifest, out string, started time.Time) (*plugin.Dispatcher, plugin.Context) {
	var handles []plugin.Handle
	if r.cfg.PluginsDir != "" {
		discovered, err := r.discoverPlugins(r.cfg.PluginsDir)
		if err != nil {
			m.AddWarning(fmt.Sprintf("plugins unavailable: %v", err))
			r.events.Emit(events.NamePhaseSkipped, events.Fields{
				"phase":  "plugins",
				"reason": err.Error(),
			})
		} else {
			handles = discovered
		}
	}
	pdisp := plugin.NewDispatcher(r.logger, r.events, handles)
	pc := plugin.Context{OutputRoot: out, RunID: r.runID, Timestamp: started, Manifest: m}
	return pdisp, pc
}

// runMirror executes the static transfer. The bool return is true when the
// run must stop with the given exit code.
func (r *Runner) runMirror(ctx context.Context, m *manifest.Manifest, out, siteRoot string) (int, bool) {
	opts := mirror.Options{
		URL:             r.cfg.URL,
		OutputDir:       out,
		Jobs:            r.cfg.Jobs,
		UserAgent:       r.cfg.UserAgent,
		QuotaBytes:      r.cfg.SizeCapBytes,
		LimitRateBPS:    r.cfg.ThrottleBPS,
		ExtraArgs:       r.cfg.ExtraMirrorArgs,
		ErrorRatioLimit: r.cfg.ErrorRatioLimit,
		MinSamples:      r.cfg.MirrorMinSamples,
	}

	err := r.phase(m, "clone", func() error {
		res, err := r.wget.Mirror(ctx, opts)
		if errors.Is(err, mirror.ErrWgetMissing) && r.cfg.AllowHTTPMirror {
			m.AddWarning("wget2 not found; using built-in http fetcher")
			fallbackOpts := opts
			fallbackOpts.OutputDir = siteRoot
			res, err = r.fallback.Mirror(ctx, fallbackOpts)
		}
		if err != nil {
			return err
		}
		m.ParallelJobs = res.FinalJobs
		return nil
	})
	switch {
	case err == nil:
		return ExitOK, false
	case ctx.Err() != nil:
		return r.finishCanceled(m), true
	case errors.Is(err, mirror.ErrWgetMissing):
		r.logger.Error("wget2 is required but not installed")
		return r.finish(m, ExitWgetMissing, false), true
	default:
		r.logger.Error("static mirror failed", zap.Error(err))
		return r.finish(m, ExitCloneFailed, false), true
	}
}

// runPrerender renders the dynamic routes. Any failure here degrades to a
// warning: the static mirror stands on its own.
func (r *Runner) runPrerender(ctx context.Context, m *manifest.Manifest, siteRoot string) {
	err := r.phase(m, "prerender", func() error {
		browser, err := r.newBrowser(r.logger)
		if err != nil {
			return err
		}
		defer browser.Close(ctx)

		classifier := classify.New(r.cfg.APIContentTypes, r.cfg.CaptureAPI,
			r.cfg.CaptureAPIBinary, r.cfg.CaptureGraphQL)
		ctrl, err := render.NewController(render.ControllerConfig{
			StartURL:        r.cfg.URL,
			MaxPages:        r.cfg.PrerenderMaxPages,
			ScrollPasses:    r.cfg.PrerenderScroll,
			StableWindow:    r.cfg.DomStableWindow,
			StableTimeout:   r.cfg.DomStableTimeout,
			WaitSelector:    r.cfg.RouterWaitSelector,
			SettleDelay:     r.cfg.RouterSettle,
			RouterIntercept: r.cfg.RouterIntercept,
			IncludeHash:     r.cfg.RouterIncludeHash,
			MaxRoutes:       r.cfg.RouterMaxRoutes,
			Allow:           r.cfg.RouterAllow,
			Deny:            r.cfg.RouterDeny,
			CaptureStorage:  r.cfg.CaptureStorage,
			RewriteURLs:     r.cfg.RewriteURLs,
		}, browser, classifier, capture.NewStore(siteRoot), r.events, r.logger)
		if err != nil {
			return err
		}

		stats, err := ctrl.Run(ctx)
		if stats != nil {
			m.PrerenderStats = stats
			m.APICapturedCount = stats.APICaptured
			m.GraphQLCapturedCount = stats.GraphQLCaptured
			m.StorageCapturedCount = stats.StorageCaptured
		}
		return err
	})
	if err == nil || ctx.Err() != nil {
		return
	}
	if errors.Is(err, render.ErrRendererUnavailable) {
		m.AddWarning(fmt.Sprintf("dynamic rendering skipped: %v", err))
		r.events.Emit(events.NamePhaseSkipped, events.Fields{
			"phase":  "prerender",
			"reason": err.Error(),
		})
		return
	}
	m.AddWarning(fmt.Sprintf("prerender incomplete: %v", err))
}

func (r *Runner) phase(m *manifest.Manifest, name string, fn func() error) error {
	r.events.Emit(events.NamePhaseStart, events.Fields{"phase": name})
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	m.AddTiming(name, elapsed)
	fields := events.Fields{"phase": name, "seconds": elapsed.Seconds()}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.events.Emit(events.NamePhaseEnd, fields)
	return err
}

func (r *Runner) finish(m *manifest.Manifest, exit int, success bool) int {
	m.CompletedUTC = time.Now().UTC().Format(time.RFC3339)
	m.CloneSuccess = success
	if err := m.Write(m.OutputFolder); err != nil {
		r.logger.Error("manifest write failed", zap.Error(err))
		if exit == ExitOK {
			exit = ExitCloneFailed
		}
	}
	if success {
		fields := events.Fields{
			"success":       true,
			"output_folder": m.OutputFolder,
			"warnings":      len(m.Warnings),
		}
		if m.PrerenderStats != nil {
			fields["pages_processed"] = m.PrerenderStats.PagesProcessed
		}
		if m.Diff != nil {
			fields["files_changed"] = len(m.Diff.Changed)
		}
		r.events.Emit(events.NameSummary, fields)
	}
	r.events.Emit(events.NameSummaryFinal, events.Fields{"exit_code": exit})
	return exit
}

// finishCanceled closes out an interrupted run: the canceled event is
// emitted, the manifest records the partial state, and no snapshot is
// persisted so the next incremental diff stays correct.
func (r *Runner) finishCanceled(m *manifest.Manifest) int {
	m.Canceled = true
	r.events.Emit(events.NameCanceled, events.Fields{"output_folder": m.OutputFolder})
	return r.finish(m, ExitCanceled, false)
}

func (r *Runner) echoConfig(m *manifest.Manifest) {
	m.ParallelJobs = r.cfg.Jobs
	m.SizeCapBytes = r.cfg.SizeCapBytes
	m.ThrottleBytesPerSec = r.cfg.ThrottleBPS
	m.Prerender = r.cfg.Prerender
	m.PrerenderMaxPages = r.cfg.PrerenderMaxPages
	m.PrerenderScroll = r.cfg.PrerenderScroll
	m.DomStableMs = r.cfg.DomStableWindow.Milliseconds()
	m.DomStableTimeoutMs = r.cfg.DomStableTimeout.Milliseconds()
	m.RouterIntercept = r.cfg.RouterIntercept
	m.CaptureAPI = r.cfg.CaptureAPI
	m.CaptureAPIBinary = r.cfg.CaptureAPIBinary
	m.CaptureGraphQL = r.cfg.CaptureGraphQL
	m.CaptureStorage = r.cfg.CaptureStorage
	m.EventsFile = r.cfg.EventsFile
}

// reproduceCommand echoes a CLI invocation equivalent to this run's
// configuration.
func reproduceCommand(cfg config.Config) []string {
	cmd := []string{"cw2dt", "clone",
		"--url", cfg.URL,
		"--dest", cfg.Dest,
		"--jobs", fmt.Sprint(cfg.Jobs),
	}
	if cfg.SizeCapBytes > 0 {
		cmd = append(cmd, "--size-cap", config.FormatSize(cfg.SizeCapBytes))
	}
	if cfg.ThrottleBPS > 0 {
		cmd = append(cmd, "--throttle", config.FormatSize(cfg.ThrottleBPS))
	}
	if cfg.Prerender {
		cmd = append(cmd, "--prerender")
	}
	if cfg.CaptureAPI {
		cmd = append(cmd, "--capture-api")
	}
	if cfg.CaptureGraphQL {
		cmd = append(cmd, "--capture-graphql")
	}
	if cfg.CaptureStorage {
		cmd = append(cmd, "--capture-storage")
	}
	if cfg.Checksums {
		cmd = append(cmd, "--checksums")
	}
	if cfg.VerifyDeep {
		cmd = append(cmd, "--verify-deep")
	} else if cfg.VerifyAfter {
		cmd = append(cmd, "--verify")
	}
	if cfg.Incremental {
		cmd = append(cmd, "--incremental")
	}
	if cfg.DiffLatest {
		cmd = append(cmd, "--diff-latest")
	}
	if cfg.PluginsDir != "" {
		cmd = append(cmd, "--plugins-dir", cfg.PluginsDir)
	}
	return cmd
}

package mirror

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/config"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
)

var percentRe = regexp.MustCompile(`(\d{1,3})%`)

// errorLine matches wget2 transfer error lines in the progress stream.
var errorLine = regexp.MustCompile(`(?i)\b(error|failed|timed? ?out)\b`)

// Wget2Runner shells out to wget2 and watches its progress stream. When
// the rolling error-line ratio crosses the configured limit, the process
// is restarted with halved parallelism until it reaches one connection.
type Wget2Runner struct {
	logger  *zap.Logger
	emitter events.Emitter

	// test seams
	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewWget2Runner(logger *zap.Logger, emitter events.Emitter) *Wget2Runner {
	return &Wget2Runner{
		logger:   logger,
		emitter:  emitter,
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
	}
}

// buildArgs assembles the wget2 invocation for one attempt.
func buildArgs(opts Options, jobs int) []string {
	args := []string{
		"-e", "robots=off",
		"--mirror",
		"--convert-links",
		"--adjust-extension",
		"--page-requisites",
		"--no-parent",
		"--continue",
		"--progress=dot:mega",
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	args = append(args, opts.URL, "-P", opts.OutputDir)
	if jobs > 1 {
		args = append(args, "-j", fmt.Sprint(jobs))
	}
	if opts.QuotaBytes > 0 {
		args = append(args, "--quota", config.FormatSize(opts.QuotaBytes))
	}
	if opts.LimitRateBPS > 0 {
		args = append(args, "--limit-rate", config.FormatSize(opts.LimitRateBPS))
	}
	args = append(args, opts.ExtraArgs...)
	return args
}

// Mirror runs wget2 to completion, restarting with reduced concurrency
// when the error ratio climbs. Each restart resumes the same output path.
func (r *Wget2Runner) Mirror(ctx context.Context, opts Options) (*Result, error) {
	bin, err := r.lookPath("wget2")
	if err != nil {
		return nil, ErrWgetMissing
	}

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	result := &Result{FinalJobs: jobs}

	for {
		degraded, err := r.attempt(ctx, bin, opts, jobs, result)
		if err != nil {
			return nil, err
		}
		if !degraded {
			result.FinalJobs = jobs
			return result, nil
		}
		newJobs := jobs / 2
		if newJobs < 1 {
			newJobs = 1
		}
		result.Adjustments++
		r.emitter.Emit(events.NameMirrorAdjustment, events.Fields{
			"old_jobs": jobs,
			"new_jobs": newJobs,
			"reason":   "elevated error ratio",
		})
		r.logger.Warn("reducing mirror concurrency",
			zap.Int("old_jobs", jobs), zap.Int("new_jobs", newJobs))
		jobs = newJobs
	}
}

// attempt runs one wget2 process. It returns degraded=true when the
// process was killed for an elevated error ratio and a retry should
// follow; a clean or failed completion returns degraded=false.
func (r *Wget2Runner) attempt(ctx context.Context, bin string, opts Options, jobs int, result *Result) (bool, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := r.command(attemptCtx, bin, buildArgs(opts, jobs)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, fmt.Errorf("attach progress stream: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("%w: start wget2: %v", ErrTransferFailed, err)
	}

	var (
		mu         sync.Mutex
		totalLines int
		errLines   int
		degraded   bool
	)
	canDegrade := jobs > 1 && opts.ErrorRatioLimit > 0

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := percentRe.FindStringSubmatch(line); m != nil {
			var pct int
			fmt.Sscanf(m[1], "%d", &pct)
			if pct <= 100 {
				result.LastPercent = pct
			}
		}

		mu.Lock()
		totalLines++
		if errorLine.MatchString(line) {
			errLines++
		}
		minSamples := opts.MinSamples
		if minSamples <= 0 {
			minSamples = 20
		}
		if canDegrade && !degraded && totalLines >= minSamples &&
			float64(errLines)/float64(totalLines) > opts.ErrorRatioLimit {
			degraded = true
			cancel()
		}
		mu.Unlock()
	}

	waitErr := cmd.Wait()
	if degraded {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if waitErr != nil {
		return false, fmt.Errorf("%w: %v (%s)", ErrTransferFailed, waitErr,
			strings.TrimSpace(summaryOf(errLines, totalLines)))
	}
	return false, nil
}

func summaryOf(errLines, totalLines int) string {
	return fmt.Sprintf("%d error lines over %d progress lines", errLines, totalLines)
}

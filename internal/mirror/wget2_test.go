package mirror

import (
	"context"
	"errors"
	"net/url"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
)

type captureEmitter struct {
	names  []string
	fields []events.Fields
}

func (c *captureEmitter) Emit(name string, fields events.Fields) {
	c.names = append(c.names, name)
	c.fields = append(c.fields, fields)
}

func TestBuildArgs(t *testing.T) {
	opts := Options{
		URL:          "https://site.test",
		OutputDir:    "/tmp/out",
		UserAgent:    "cw2dt/2.0",
		QuotaBytes:   2 * 1024 * 1024 * 1024,
		LimitRateBPS: 512 * 1024,
		ExtraArgs:    []string{"--no-check-certificate"},
	}

	args := buildArgs(opts, 4)
	assert.Equal(t, []string{
		"-e", "robots=off",
		"--mirror", "--convert-links", "--adjust-extension",
		"--page-requisites", "--no-parent", "--continue",
		"--progress=dot:mega",
		"--user-agent", "cw2dt/2.0",
		"https://site.test", "-P", "/tmp/out",
		"-j", "4",
		"--quota", "2G",
		"--limit-rate", "512K",
		"--no-check-certificate",
	}, args)
}

func TestBuildArgsSingleJobOmitsParallelism(t *testing.T) {
	args := buildArgs(Options{URL: "https://site.test", OutputDir: "out"}, 1)
	assert.NotContains(t, args, "-j")
}

func TestMirrorMissingBinary(t *testing.T) {
	r := NewWget2Runner(zap.NewNop(), &captureEmitter{})
	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := r.Mirror(context.Background(), Options{URL: "https://site.test"})
	assert.ErrorIs(t, err, ErrWgetMissing)
}

// fakeWget replaces the wget2 process with a shell script so the adaptive
// policy can be exercised hermetically.
func fakeWget(t *testing.T, script string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	t.Helper()
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", script)
	}
}

func TestMirrorSuccess(t *testing.T) {
	em := &captureEmitter{}
	r := NewWget2Runner(zap.NewNop(), em)
	r.lookPath = func(string) (string, error) { return "/usr/bin/wget2", nil }
	r.command = fakeWget(t, `for i in 1 2 3; do echo "saving... 50%" >&2; done; echo "done 100%" >&2`)

	res, err := r.Mirror(context.Background(), Options{URL: "https://site.test", Jobs: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, res.FinalJobs)
	assert.Equal(t, 0, res.Adjustments)
	assert.Equal(t, 100, res.LastPercent)
	assert.Empty(t, em.names)
}

func TestMirrorDegradesOnErrorRatio(t *testing.T) {
	em := &captureEmitter{}
	r := NewWget2Runner(zap.NewNop(), em)
	r.lookPath = func(string) (string, error) { return "/usr/bin/wget2", nil }

	attempt := 0
	r.command = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		attempt++
		if attempt == 1 {
			// Every line reports a failure; keeps printing so the
			// ratio check fires after the sample floor.
			return exec.CommandContext(ctx, "/bin/sh", "-c",
				`i=0; while [ $i -lt 50 ]; do echo "error: connection refused" >&2; i=$((i+1)); sleep 0.01; done`)
		}
		return exec.CommandContext(ctx, "/bin/sh", "-c", `echo "done 100%" >&2`)
	}

	res, err := r.Mirror(context.Background(), Options{
		URL: "https://site.test", Jobs: 4, ErrorRatioLimit: 0.5, MinSamples: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FinalJobs, "4 halves to 2 after one adjustment")
	assert.Equal(t, 1, res.Adjustments)
	require.Equal(t, []string{events.NameMirrorAdjustment}, em.names)
	assert.Equal(t, 4, em.fields[0]["old_jobs"])
	assert.Equal(t, 2, em.fields[0]["new_jobs"])
}

func TestMirrorFailureWraps(t *testing.T) {
	r := NewWget2Runner(zap.NewNop(), &captureEmitter{})
	r.lookPath = func(string) (string, error) { return "/usr/bin/wget2", nil }
	r.command = fakeWget(t, `echo "fatal" >&2; exit 3`)

	_, err := r.Mirror(context.Background(), Options{URL: "https://site.test"})
	assert.ErrorIs(t, err, ErrTransferFailed)
}

func TestMirrorRelPath(t *testing.T) {
	mk := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u
	}
	assert.Equal(t, "index.html", mirrorRelPath(mk("https://s.test/"), "text/html"))
	assert.Equal(t, "docs/index.html", mirrorRelPath(mk("https://s.test/docs/"), "text/html"))
	assert.Equal(t, "docs/page.html", mirrorRelPath(mk("https://s.test/docs/page"), "text/html; charset=utf-8"))
	assert.Equal(t, "assets/app.js", mirrorRelPath(mk("https://s.test/assets/app.js"), "application/javascript"))
}

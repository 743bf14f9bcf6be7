package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("clone.url", "https://docs.example.com/guide/")
	v.Set("clone.dest", t.TempDir())
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newTestViper(t)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Jobs)
	assert.Equal(t, "docs_example_com", cfg.Name, "name derived from hostname")
	assert.Equal(t, 40, cfg.PrerenderMaxPages)
	assert.Equal(t, 200, cfg.RouterMaxRoutes)
	assert.Equal(t, 350*time.Millisecond, cfg.RouterSettle)
	assert.Equal(t, 25*time.Second, cfg.RenderTimeout)
	assert.Equal(t, []string{"application/json"}, cfg.APIContentTypes)
	assert.Equal(t, 0.3, cfg.ErrorRatioLimit)
	assert.False(t, cfg.Prerender)
	assert.False(t, cfg.Checksums)
	assert.Equal(t, "127.0.0.1", cfg.BindIP)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadParsesSizes(t *testing.T) {
	v := newTestViper(t)
	v.Set("clone.size_cap", "2G")
	v.Set("clone.throttle", "512K")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, int64(2<<30), cfg.SizeCapBytes)
	assert.Equal(t, int64(512<<10), cfg.ThrottleBPS)
}

func TestLoadRejectsBadSize(t *testing.T) {
	v := newTestViper(t)
	v.Set("clone.size_cap", "lots")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clone.size_cap")
}

func TestLoadSplitsPatternLists(t *testing.T) {
	v := newTestViper(t)
	v.Set("router.allow", "^/docs/, ^/blog/ ,")
	v.Set("router.deny", "")
	v.Set("checksums.extra_extensions", ".XML, css, xml")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"^/docs/", "^/blog/"}, cfg.RouterAllow)
	assert.Nil(t, cfg.RouterDeny)
	assert.Equal(t, []string{"xml", "css"}, cfg.ChecksumExt, "extensions lowercased, dot-stripped, deduped")
}

func TestValidateRejections(t *testing.T) {
	base := func() Config {
		return Config{
			URL:               "https://site.test/",
			Dest:              "/tmp/out",
			Name:              "site",
			Jobs:              4,
			UserAgent:         "cw2dt/2.0",
			PrerenderMaxPages: 40,
			RouterMaxRoutes:   200,
			ChecksumWorkers:   4,
			ErrorRatioLimit:   0.3,
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.URL = "" }, "clone.url"},
		{"missing dest", func(c *Config) { c.Dest = "" }, "clone.dest"},
		{"zero jobs", func(c *Config) { c.Jobs = 0 }, "clone.jobs"},
		{"zero workers", func(c *Config) { c.ChecksumWorkers = 0 }, "checksums.workers"},
		{"ratio out of range", func(c *Config) { c.ErrorRatioLimit = 1.5 }, "error_ratio_limit"},
		{"deep verify without checksums", func(c *Config) { c.VerifyDeep = true }, "verify.deep"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	assert.NoError(t, base().Validate())
}

func TestOutputFolderAndOrigin(t *testing.T) {
	cfg := Config{URL: "https://site.test:8443/deep/path?q=1", Dest: "/srv/mirrors/", Name: "site"}
	assert.Equal(t, "/srv/mirrors/site", cfg.OutputFolder())
	assert.Equal(t, "https://site.test:8443", cfg.Origin())

	assert.Equal(t, "", Config{URL: "not a url ::"}.Origin())
}

func TestDeriveName(t *testing.T) {
	assert.Equal(t, "site_test", deriveName("https://site.test/path"))
	assert.Equal(t, "site", deriveName("garbage ::"))
	assert.Equal(t, "site", deriveName(""))
}

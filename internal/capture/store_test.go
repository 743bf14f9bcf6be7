package capture

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestHTMLPathMapping(t *testing.T) {
	cases := map[string]string{
		"https://site.test/":               "index.html",
		"https://site.test/docs/":          "docs/index.html",
		"https://site.test/docs/page":      "docs/page.html",
		"https://site.test/docs/page.html": "docs/page.html",
	}
	for raw, want := range cases {
		assert.Equal(t, want, htmlRelPath(mustURL(t, raw)), raw)
	}
}

func TestSaveAPITextDirectoryIndex(t *testing.T) {
	s := NewStore(t.TempDir())

	rel, err := s.SaveAPIText(mustURL(t, "https://site.test/api/v1/users/"), ".json", []byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "_api/api/v1/users/index.json", rel)
	assert.Equal(t, 1, s.Stats().API)
}

func TestSaveAPITextQueryDisambiguation(t *testing.T) {
	s := NewStore(t.TempDir())

	rel1, err := s.SaveAPIText(mustURL(t, "https://site.test/api/items?page=1"), ".json", []byte(`[1]`))
	require.NoError(t, err)
	rel2, err := s.SaveAPIText(mustURL(t, "https://site.test/api/items?page=2"), ".json", []byte(`[2]`))
	require.NoError(t, err)
	assert.NotEqual(t, rel1, rel2)
}

func TestSaveOverwritesNotAppends(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	u := mustURL(t, "https://site.test/api/data")

	_, err := s.SaveAPIText(u, ".json", []byte(`{"v":1}`))
	require.NoError(t, err)
	rel, err := s.SaveAPIText(u, ".json", []byte(`{"v":2}`))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))
}

func TestSaveGraphQLBundle(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	u := mustURL(t, "https://site.test/graphql")

	rel, err := s.SaveGraphQL(u, []byte(`{"query":"query { me }"}`), []byte(`{"data":{}}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "_graphql/"))

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"url": "https://site.test/graphql"`)
	assert.Equal(t, 1, s.Stats().GraphQL)
}

func TestSaveStorageSkipsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	u := mustURL(t, "https://site.test/app")

	_, wrote, err := s.SaveStorage(u, nil, nil)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, 0, s.Stats().Storage)

	rel, wrote, err := s.SaveStorage(u, map[string]string{"token": "x"}, nil)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, "app.storage.json", rel)
	assert.Equal(t, 1, s.Stats().Storage)
}

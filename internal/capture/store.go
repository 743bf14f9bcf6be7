// Package capture writes rendered pages and intercepted responses under
// the output tree. All writes are atomic and idempotent: re-capturing a
// path replaces the previous file, never appends to it.
package capture

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	apiSubtree     = "_api"
	graphqlSubtree = "_graphql"
	storageSuffix  = ".storage.json"
)

// Stats counts persisted captures by category.
type Stats struct {
	API     int
	GraphQL int
	Storage int
}

// Store owns the capture subtrees under one output root. It is driven by
// the single-threaded crawl controller and keeps plain counters.
type Store struct {
	root  string
	stats Stats
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Stats returns the capture counts so far.
func (s *Store) Stats() Stats { return s.stats }

// SaveHTML writes the rendered document at its mirror-style path and
// returns the relative path written.
func (s *Store) SaveHTML(pageURL *url.URL, html []byte) (string, error) {
	rel := htmlRelPath(pageURL)
	if err := s.writeAtomic(rel, html); err != nil {
		return "", fmt.Errorf("save html %s: %w", pageURL, err)
	}
	return rel, nil
}

// SaveAPIText writes a text API response UTF-8 under the API subtree.
func (s *Store) SaveAPIText(u *url.URL, ext string, body []byte) (string, error) {
	rel := apiRelPath(apiSubtree, u, ext)
	if err := s.writeAtomic(rel, body); err != nil {
		return "", fmt.Errorf("save api response %s: %w", u, err)
	}
	s.stats.API++
	return rel, nil
}

// SaveAPIBinary writes a binary API response byte-exact under the API
// subtree.
func (s *Store) SaveAPIBinary(u *url.URL, ext string, body []byte) (string, error) {
	rel := apiRelPath(apiSubtree, u, ext)
	if err := s.writeAtomic(rel, body); err != nil {
		return "", fmt.Errorf("save binary response %s: %w", u, err)
	}
	s.stats.API++
	return rel, nil
}

// graphqlBundle pairs an intercepted GraphQL request with its response.
type graphqlBundle struct {
	URL      string          `json:"url"`
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

// SaveGraphQL writes the request/response pair as one JSON bundle named by
// a digest of the endpoint and operation, so repeated operations against
// the same endpoint stay distinct while re-captures overwrite.
func (s *Store) SaveGraphQL(u *url.URL, requestBody, responseBody []byte) (string, error) {
	bundle := graphqlBundle{
		URL:      u.String(),
		Request:  rawOrString(requestBody),
		Response: rawOrString(responseBody),
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode graphql bundle %s: %w", u, err)
	}
	name := shortDigest(u.String()+string(requestBody)) + ".json"
	rel := filepath.ToSlash(filepath.Join(graphqlSubtree, name))
	if err := s.writeAtomic(rel, data); err != nil {
		return "", fmt.Errorf("save graphql bundle %s: %w", u, err)
	}
	s.stats.GraphQL++
	return rel, nil
}

// storageSnapshot is the per-page web storage dump.
type storageSnapshot struct {
	URL            string            `json:"url"`
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
}

// SaveStorage writes the page's localStorage and sessionStorage next to
// its HTML output. Pages with no storage produce no file; the bool return
// reports whether anything was written.
func (s *Store) SaveStorage(pageURL *url.URL, local, session map[string]string) (string, bool, error) {
	if len(local) == 0 && len(session) == 0 {
		return "", false, nil
	}
	snap := storageSnapshot{URL: pageURL.String(), LocalStorage: local, SessionStorage: session}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("encode storage snapshot %s: %w", pageURL, err)
	}
	rel := strings.TrimSuffix(htmlRelPath(pageURL), ".html") + storageSuffix
	if err := s.writeAtomic(rel, data); err != nil {
		return "", false, fmt.Errorf("save storage snapshot %s: %w", pageURL, err)
	}
	s.stats.Storage++
	return rel, true, nil
}

// rawOrString passes valid JSON through untouched and quotes anything
// else so the bundle always stays a valid document.
func rawOrString(b []byte) json.RawMessage {
	if json.Valid(b) && len(b) > 0 {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return json.RawMessage(quoted)
}

func (s *Store) writeAtomic(rel string, data []byte) error {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".capture-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), abs)
}

// Package classify maps intercepted network responses to capture categories.
package classify

import (
	"bytes"
	"net/http"
	"regexp"
	"strings"
)

// Category tells the capture sinks how a response is persisted.
type Category string

// Capture categories in classification order.
const (
	CategoryGraphQL   Category = "graphql"
	CategoryAPIText   Category = "api_text"
	CategoryAPIBinary Category = "api_binary"
	CategoryIgnored   Category = "ignored"
)

// Response is the classifier's view of one intercepted exchange.
type Response struct {
	Method      string
	URL         string
	ContentType string
	RequestBody []byte
	Body        []byte
}

// binaryPrefixes are accepted for byte-exact capture when enabled.
var binaryPrefixes = []string{
	"application/pdf",
	"image/",
	"audio/",
	"video/",
	"application/octet-stream",
}

// graphqlToken matches a leading query/mutation keyword inside a JSON
// request body, e.g. {"query":"mutation AddUser {...}"}.
var graphqlToken = regexp.MustCompile(`(?i)\b(query|mutation)\b`)

// Classifier applies the accept rules configured for a run. First match
// wins; responses matching nothing are not persisted.
type Classifier struct {
	textEnabled    bool
	textPrefixes   []string
	binaryEnabled  bool
	graphqlEnabled bool
}

// New builds a classifier. Text capture is gated on textEnabled; when it is
// on, textPrefixes defaults to application/json, matching the historical
// API capture behavior.
func New(textPrefixes []string, textEnabled, binaryEnabled, graphqlEnabled bool) *Classifier {
	if textEnabled && len(textPrefixes) == 0 {
		textPrefixes = []string{"application/json"}
	}
	normalized := make([]string, 0, len(textPrefixes))
	for _, p := range textPrefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	return &Classifier{
		textEnabled:    textEnabled,
		textPrefixes:   normalized,
		binaryEnabled:  binaryEnabled,
		graphqlEnabled: graphqlEnabled,
	}
}

// Classify returns the capture category for a response.
func (c *Classifier) Classify(resp Response) Category {
	ct := normalizeContentType(resp.ContentType)
	if c.graphqlEnabled && isGraphQL(resp.Method, ct, resp.RequestBody) {
		return CategoryGraphQL
	}
	if c.textEnabled {
		for _, prefix := range c.textPrefixes {
			if strings.HasPrefix(ct, prefix) {
				return CategoryAPIText
			}
		}
	}
	if c.binaryEnabled {
		for _, prefix := range binaryPrefixes {
			if strings.HasPrefix(ct, prefix) {
				return CategoryAPIBinary
			}
		}
	}
	return CategoryIgnored
}

func isGraphQL(method, contentType string, requestBody []byte) bool {
	if !strings.EqualFold(method, http.MethodPost) {
		return false
	}
	if !strings.HasPrefix(contentType, "application/json") {
		return false
	}
	if len(requestBody) == 0 {
		return false
	}
	return bytes.Contains(requestBody, []byte(`"query"`)) || graphqlToken.Match(requestBody)
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return ct
}

// textExtensions maps content-type subtypes to file extensions for the
// API-text sink.
var textExtensions = map[string]string{
	"json":  ".json",
	"csv":   ".csv",
	"xml":   ".xml",
	"plain": ".txt",
}

// TextExtension returns the capture extension for a text-like content type;
// unknown subtypes default to .txt.
func TextExtension(contentType string) string {
	ct := normalizeContentType(contentType)
	if idx := strings.LastIndexByte(ct, '/'); idx >= 0 {
		subtype := ct[idx+1:]
		// application/problem+json and friends capture as their suffix type.
		if plus := strings.LastIndexByte(subtype, '+'); plus >= 0 {
			subtype = subtype[plus+1:]
		}
		if ext, ok := textExtensions[subtype]; ok {
			return ext
		}
	}
	return ".txt"
}

// binaryExtensions covers the common binary subtypes; anything else falls
// back to .bin.
var binaryExtensions = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
}

// BinaryExtension returns the capture extension for a binary content type.
func BinaryExtension(contentType string) string {
	ct := normalizeContentType(contentType)
	if ext, ok := binaryExtensions[ct]; ok {
		return ext
	}
	return ".bin"
}

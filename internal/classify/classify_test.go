package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyGraphQLBeforeAPIText(t *testing.T) {
	c := New(nil, true, false, true)

	resp := Response{
		Method:      "POST",
		URL:         "https://site.test/graphql",
		ContentType: "application/json; charset=utf-8",
		RequestBody: []byte(`{"query":"query Products { items { id } }"}`),
		Body:        []byte(`{"data":{}}`),
	}
	assert.Equal(t, CategoryGraphQL, c.Classify(resp))

	// Same response with GraphQL detection off falls through to text capture.
	plain := New(nil, true, false, false)
	assert.Equal(t, CategoryAPIText, plain.Classify(resp))
}

func TestClassifyGraphQLRequiresPostJSONBody(t *testing.T) {
	c := New(nil, true, false, true)

	get := Response{Method: "GET", ContentType: "application/json", RequestBody: []byte(`{"query":"q"}`)}
	assert.Equal(t, CategoryAPIText, c.Classify(get), "GET is never GraphQL")

	noBody := Response{Method: "POST", ContentType: "application/json"}
	assert.Equal(t, CategoryAPIText, c.Classify(noBody))

	mutation := Response{Method: "post", ContentType: "application/json", RequestBody: []byte(`{"operationName":"Add","query":"mutation Add { ok }"}`)}
	assert.Equal(t, CategoryGraphQL, c.Classify(mutation), "method match is case-insensitive")
}

func TestClassifyTextPrefixes(t *testing.T) {
	c := New([]string{"application/json", "text/csv"}, true, false, false)

	assert.Equal(t, CategoryAPIText, c.Classify(Response{ContentType: "application/json"}))
	assert.Equal(t, CategoryAPIText, c.Classify(Response{ContentType: "TEXT/CSV; header=present"}))
	assert.Equal(t, CategoryIgnored, c.Classify(Response{ContentType: "text/html"}))
	assert.Equal(t, CategoryIgnored, c.Classify(Response{ContentType: "image/png"}), "binary ignored unless enabled")
}

func TestClassifyTextDisabled(t *testing.T) {
	c := New(nil, false, false, true)

	get := Response{Method: "GET", ContentType: "application/json", Body: []byte(`{"items":[]}`)}
	assert.Equal(t, CategoryIgnored, c.Classify(get), "json responses are not persisted when text capture is off")

	gql := Response{
		Method:      "POST",
		ContentType: "application/json",
		RequestBody: []byte(`{"query":"query Q { ok }"}`),
	}
	assert.Equal(t, CategoryGraphQL, c.Classify(gql), "graphql capture works without text capture")
}

func TestClassifyBinaryWhenEnabled(t *testing.T) {
	c := New(nil, false, true, false)

	assert.Equal(t, CategoryAPIBinary, c.Classify(Response{ContentType: "image/png"}))
	assert.Equal(t, CategoryAPIBinary, c.Classify(Response{ContentType: "application/pdf"}))
	assert.Equal(t, CategoryAPIBinary, c.Classify(Response{ContentType: "application/octet-stream"}))
	assert.Equal(t, CategoryIgnored, c.Classify(Response{ContentType: "text/html"}))
}

func TestTextExtension(t *testing.T) {
	cases := map[string]string{
		"application/json":                ".json",
		"application/json; charset=utf-8": ".json",
		"application/problem+json":        ".json",
		"text/csv":                        ".csv",
		"application/xml":                 ".xml",
		"text/plain":                      ".txt",
		"application/x-ndjson":            ".txt",
		"":                                ".txt",
	}
	for ct, want := range cases {
		assert.Equal(t, want, TextExtension(ct), ct)
	}
}

func TestBinaryExtension(t *testing.T) {
	assert.Equal(t, ".pdf", BinaryExtension("application/pdf"))
	assert.Equal(t, ".jpg", BinaryExtension("image/jpeg; quality=90"))
	assert.Equal(t, ".mp4", BinaryExtension("video/mp4"))
	assert.Equal(t, ".bin", BinaryExtension("application/octet-stream"))
}

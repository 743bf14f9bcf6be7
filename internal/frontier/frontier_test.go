package frontier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueIdempotent(t *testing.T) {
	f := New(0, nil, nil)

	require.True(t, f.Enqueue("/a", OriginAnchor))
	require.False(t, f.Enqueue("/a", OriginRouter))
	assert.Equal(t, 1, f.Len())
}

func TestRouteCap(t *testing.T) {
	f := New(2, nil, nil)

	assert.True(t, f.Enqueue("/r1", OriginAnchor))
	assert.True(t, f.Enqueue("/r2", OriginAnchor))
	assert.False(t, f.Enqueue("/r3", OriginAnchor))

	var got []string
	for {
		r, ok := f.Dequeue()
		if !ok {
			break
		}
		got = append(got, r.Path)
	}
	assert.Equal(t, []string{"/r1", "/r2"}, got)
}

func TestAllowBeforeDeny(t *testing.T) {
	f := New(0, []string{"/docs/"}, []string{"/docs/internal"})

	assert.False(t, f.Enqueue("/docs/internal/x", OriginAnchor), "deny rejects an allowed route")
	assert.True(t, f.Enqueue("/docs/public", OriginAnchor))
	assert.False(t, f.Enqueue("/blog/post", OriginAnchor), "allow list excludes unmatched routes")
}

func TestFIFOAcrossOrigins(t *testing.T) {
	f := New(0, nil, nil)

	f.Enqueue("/a", OriginAnchor)
	f.Enqueue("/b", OriginRouter)
	f.Enqueue("/c", OriginAnchor)

	r1, _ := f.Dequeue()
	r2, _ := f.Dequeue()
	r3, _ := f.Dequeue()
	assert.Equal(t, "/a", r1.Path)
	assert.Equal(t, "/b", r2.Path)
	assert.Equal(t, "/c", r3.Path)
}

func TestInvalidPatternDisablesSide(t *testing.T) {
	f := New(0, []string{"["}, nil)

	require.Len(t, f.Warnings(), 1)
	assert.Contains(t, f.Warnings()[0], "allow filtering disabled")
	// With the allow side disabled everything passes the filters.
	assert.True(t, f.Enqueue("/anything", OriginAnchor))
}

func TestRiskyPatternWarns(t *testing.T) {
	f := New(0, []string{"(.*.*foo)"}, []string{"(a+b+)+"})

	require.Len(t, f.Warnings(), 2)
	assert.Contains(t, f.Warnings()[0], "backtrack")
	assert.Contains(t, f.Warnings()[1], "backtrack")
}

// Package frontier maintains the bounded queue of same-origin routes
// awaiting a dynamic render pass.
package frontier

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Origin records how a route entered the frontier.
type Origin string

const (
	OriginAnchor Origin = "anchor"
	OriginRouter Origin = "router-event"
)

// Route is a normalized path queued for rendering. Routes are consumed
// exactly once and never mutated after creation.
type Route struct {
	Path       string
	Origin     Origin
	EnqueuedAt time.Time
}

// nestedQuantifier matches a quantified group that is itself quantified,
// the classic catastrophic-backtracking shape.
var nestedQuantifier = regexp.MustCompile(`\([^)]*[+*][^)]*\)[+*{]`)

// Frontier is a FIFO set of routes with allow/deny filtering and a hard
// admission cap. It is not safe for concurrent use; the crawl controller
// drives it from a single goroutine.
type Frontier struct {
	maxRoutes int
	allow     []*regexp.Regexp
	deny      []*regexp.Regexp
	seen      map[string]struct{}
	queue     []Route
	admitted  int
	warnings  []string
}

// New compiles the allow and deny patterns and returns an empty frontier.
// A pattern that fails to compile disables its whole side (allow or deny)
// and is reported through Warnings rather than aborting the crawl.
// maxRoutes <= 0 means unbounded.
func New(maxRoutes int, allowPatterns, denyPatterns []string) *Frontier {
	f := &Frontier{
		maxRoutes: maxRoutes,
		seen:      make(map[string]struct{}),
	}
	f.allow = f.compileSide("allow", allowPatterns)
	f.deny = f.compileSide("deny", denyPatterns)
	return f
}

func (f *Frontier) compileSide(side string, patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			f.warnings = append(f.warnings,
				fmt.Sprintf("invalid %s pattern %q: %v; %s filtering disabled", side, p, err, side))
			return nil
		}
		if risky(p) {
			f.warnings = append(f.warnings,
				fmt.Sprintf("%s pattern %q may backtrack heavily on long paths", side, p))
		}
		compiled = append(compiled, re)
	}
	return compiled
}

// risky flags patterns with stacked wildcards or nested quantifiers.
// These still compile under RE2 but are a smell carried over from
// user-supplied filter lists, so they are surfaced as warnings.
func risky(pattern string) bool {
	if strings.Contains(pattern, ".*.*") {
		return true
	}
	return nestedQuantifier.MatchString(pattern)
}

// Enqueue offers a route to the frontier. It returns false without side
// effects when the route was already seen, the admission cap is reached,
// or the route fails the allow/deny filters. Allow patterns, when any are
// configured, must match first; deny patterns can reject even allowed
// routes.
func (f *Frontier) Enqueue(path string, origin Origin) bool {
	if _, ok := f.seen[path]; ok {
		return false
	}
	if f.maxRoutes > 0 && f.admitted >= f.maxRoutes {
		return false
	}
	if len(f.allow) > 0 && !matchAny(f.allow, path) {
		return false
	}
	if matchAny(f.deny, path) {
		return false
	}
	f.seen[path] = struct{}{}
	f.admitted++
	f.queue = append(f.queue, Route{Path: path, Origin: origin, EnqueuedAt: time.Now()})
	return true
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Dequeue pops the next route in discovery order. The second return is
// false when the frontier is drained.
func (f *Frontier) Dequeue() (Route, bool) {
	if len(f.queue) == 0 {
		return Route{}, false
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	return r, true
}

// Len reports the number of routes still queued.
func (f *Frontier) Len() int { return len(f.queue) }

// Admitted reports how many routes have ever been accepted.
func (f *Frontier) Admitted() int { return f.admitted }

// Warnings returns non-fatal filter diagnostics collected at construction.
func (f *Frontier) Warnings() []string { return f.warnings }

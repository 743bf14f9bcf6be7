package capture

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

// htmlRelPath maps a page URL to the mirror-style HTML output path:
// directory requests become index.html and bare paths gain an .html
// extension, matching how the static mirror lays files out.
func htmlRelPath(u *url.URL) string {
	p := cleanPath(u)
	if p == "" || strings.HasSuffix(u.Path, "/") {
		return path.Join(p, "index.html")
	}
	if path.Ext(p) == "" {
		return p + ".html"
	}
	return p
}

// apiRelPath maps an API request URL to a file inside the category subtree.
// A request resolving to a directory index becomes index.<ext>; a query
// string is folded into the name with a short digest so distinct requests
// never collide.
func apiRelPath(subtree string, u *url.URL, ext string) string {
	p := cleanPath(u)
	if p == "" || strings.HasSuffix(u.Path, "/") {
		p = path.Join(p, "index")
	}
	if cur := path.Ext(p); cur != "" {
		p = strings.TrimSuffix(p, cur)
	}
	if u.RawQuery != "" {
		p += "_" + shortDigest(u.RawQuery)
	}
	return path.Join(subtree, p+ext)
}

func cleanPath(u *url.URL) string {
	p := path.Clean("/" + u.Path)
	return strings.TrimPrefix(p, "/")
}

func shortDigest(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:4])
}

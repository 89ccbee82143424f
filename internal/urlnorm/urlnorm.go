// Package urlnorm canonicalizes job listing URLs: lowercase scheme+host,
// force https, and strip tracking query parameters. Grounded on
// original_source's canonicalization rules and built on stdlib net/url plus
// github.com/gobwas/glob for the utm_* wildcard match, the pattern-matching
// library the pack uses for glob-shaped rules elsewhere.
package urlnorm

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

var trackingGlobs = []glob.Glob{
	glob.MustCompile("utm_*"),
}

var trackingExact = map[string]struct{}{
	"ref":       {},
	"fbclid":    {},
	"gclid":     {},
	"sessionid": {},
	"sid":       {},
}

// Canonicalize rewrites rawURL per spec: scheme forced to https, host
// lowercased, tracking query parameters stripped, and remaining query
// parameters sorted for stable comparisons.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host: %q", rawURL)
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isTrackingParam(key) {
				q.Del(key)
			}
		}
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		values := url.Values{}
		for _, key := range keys {
			for _, v := range q[key] {
				values.Add(key, v)
			}
		}
		u.RawQuery = values.Encode()
	}

	u.Fragment = ""
	return u.String(), nil
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := trackingExact[lower]; ok {
		return true
	}
	for _, g := range trackingGlobs {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

// Package dispatch routes discovered page URLs to extraction routines and
// keeps the run-scoped record of URLs already handed out.
package dispatch

import (
	"net/url"
	"strings"
	"sync"

	"newscrawler/internal/site"
)

// Match evaluates the site's rules against the URL path in declaration
// order and returns the first matching routine. Most sitemap entries are
// expected to miss; a miss is not an error.
func Match(rules []site.DispatchRule, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	for _, r := range rules {
		if r.Pattern.MatchString(u.Path) {
			return r.Routine, true
		}
	}
	return "", false
}

// Normalize canonicalizes a URL for seen-set comparison: the fragment is
// dropped and a trailing slash on a non-root path is removed.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// SeenSet tracks normalized URLs dispatched within one crawl run. It is
// deliberately not persisted: a later run re-fetching a URL picks up
// updates.
type SeenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// ShouldDispatch atomically checks and inserts the normalized URL. It
// returns true exactly once per normalized URL per run.
func (s *SeenSet) ShouldDispatch(rawURL string) bool {
	key := Normalize(rawURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Len reports how many distinct URLs have been dispatched.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

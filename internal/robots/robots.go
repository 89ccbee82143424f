// Package robots implements the Robots/Politeness Guard (A3): robots.txt
// enforcement with a per-host cache of parsed files. It keeps no
// visited/forbidden tracking and does not report to the Circuit Breaker.
// Grounded on the teacher's internal/crawler/robotspolicy.go
// per-host sync.Map cache pattern, built on temoto/robotstxt for parsing.
package robots

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// Guard fetches and caches robots.txt per host, answering whether a path
// may be crawled by a given user agent.
type Guard struct {
	userAgent string
	client    *http.Client

	mu       sync.Mutex
	cache    map[string]*robotstxt.RobotsData
	fetchErr map[string]error
}

// New creates a Guard using userAgent for both the robots.txt fetch and
// the Allow() checks.
func New(userAgent string) *Guard {
	return &Guard{
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
		cache:     make(map[string]*robotstxt.RobotsData),
		fetchErr:  make(map[string]error),
	}
}

// Allowed reports whether rawURL's path may be fetched, per that host's
// robots.txt. A robots.txt fetch failure fails open (allowed) since
// absence of the file means no restriction, matching robotstxt's own
// convention for 404s.
func (g *Guard) Allowed(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url for robots check: %w", err)
	}

	data, err := g.robotsFor(u)
	if err != nil {
		return true, nil
	}
	group := data.FindGroup(g.userAgent)
	return group.Test(u.Path), nil
}

func (g *Guard) robotsFor(u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Scheme + "://" + u.Host

	g.mu.Lock()
	if data, ok := g.cache[host]; ok {
		g.mu.Unlock()
		return data, nil
	}
	if err, ok := g.fetchErr[host]; ok {
		g.mu.Unlock()
		return nil, err
	}
	g.mu.Unlock()

	resp, err := g.client.Get(host + "/robots.txt")
	if err != nil {
		g.mu.Lock()
		g.fetchErr[host] = err
		g.mu.Unlock()
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		g.mu.Lock()
		g.fetchErr[host] = err
		g.mu.Unlock()
		return nil, err
	}

	g.mu.Lock()
	g.cache[host] = data
	g.mu.Unlock()
	return data, nil
}

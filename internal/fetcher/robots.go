package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsEntry caches robots.txt data. A nil robots means the host has none.
type robotsEntry struct {
	robots    *robotstxt.RobotsData
	fetchTime time.Time
}

type robotsCache struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu      sync.RWMutex
	entries map[string]*robotsEntry
}

func newRobotsCache(client *http.Client, userAgent string, ttl time.Duration) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		entries:   make(map[string]*robotsEntry),
	}
}

// allowed reports whether robots.txt of the URL's host permits fetching it.
// Hosts without a robots.txt allow everything.
func (rc *robotsCache) allowed(ctx context.Context, u *url.URL) (bool, error) {
	robots, err := rc.get(ctx, u)
	if err != nil {
		return false, err
	}
	if robots == nil {
		return true, nil
	}

	group := robots.FindGroup(rc.userAgent)
	if group == nil {
		return true, nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), nil
}

func (rc *robotsCache) get(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.Host

	rc.mu.RLock()
	entry, exists := rc.entries[key]
	rc.mu.RUnlock()

	if exists && time.Since(entry.fetchTime) < rc.ttl {
		return entry.robots, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	var robots *robotstxt.RobotsData
	if resp.StatusCode == http.StatusOK {
		robots, err = robotstxt.FromResponse(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
		}
	}

	// 404s are cached too
	rc.mu.Lock()
	rc.entries[key] = &robotsEntry{robots: robots, fetchTime: time.Now()}
	rc.mu.Unlock()

	return robots, nil
}

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsCacheTTL bounds how long parsed robots.txt data is reused.
const robotsCacheTTL = 24 * time.Hour

// maxRobotsBodyBytes limits the size of robots.txt responses read.
const maxRobotsBodyBytes = 512 * 1024

// RobotsChecker checks and caches robots.txt rules per host.
// A missing or failing robots.txt allows everything.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	mu        sync.RWMutex
	cache     map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool
}

// NewRobotsChecker creates a robots checker sharing the fetcher's
// HTTP client.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotsEntry),
	}
}

// IsAllowed reports whether the crawler may fetch rawURL.
func (rc *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}

	entry, err := rc.entryFor(ctx, u)
	if err != nil {
		return false, err
	}

	if entry.allowAll {
		return true, nil
	}

	return entry.data.TestAgent(u.Path, rc.userAgent), nil
}

func (rc *RobotsChecker) entryFor(ctx context.Context, u *url.URL) (*robotsEntry, error) {
	host := u.Scheme + "://" + u.Host

	rc.mu.RLock()
	entry, ok := rc.cache[host]
	rc.mu.RUnlock()

	if ok && time.Since(entry.fetchedAt) < robotsCacheTTL {
		return entry, nil
	}

	entry = rc.fetchRobots(ctx, host)

	rc.mu.Lock()
	rc.cache[host] = entry
	rc.mu.Unlock()

	return entry, nil
}

// fetchRobots retrieves and parses robots.txt for a host. Any failure
// yields an allow-all entry so a broken robots endpoint does not stall
// the source.
func (rc *RobotsChecker) fetchRobots(ctx context.Context, host string) *robotsEntry {
	entry := &robotsEntry{fetchedAt: time.Now(), allowAll: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", http.NoBody)
	if err != nil {
		return entry
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return entry
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entry
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return entry
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return entry
	}

	entry.data = data
	entry.allowAll = false
	return entry
}

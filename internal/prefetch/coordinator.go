// Package prefetch loads the images referenced by chat messages ahead of
// display and derives the single "still loading" signal the message view
// shows as an overlay. A Coordinator attempts each image URL once per chat
// session; an Aggregator combines image settlement with history loading and
// debounces the hide transition so the overlay does not flicker.
package prefetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// Fetcher performs a single image load attempt.
// Implementations must honour context cancellation.
type Fetcher interface {
	// Fetch loads the resource at url. The error is used for logging only:
	// a failed attempt settles the URL exactly like a successful one.
	Fetch(ctx context.Context, url string) error
}

// HTTPFetcher loads images over HTTP GET.
type HTTPFetcher struct {
	// Client is the HTTP client to use. If nil, a client with a 30 second
	// timeout is used.
	Client *http.Client
}

// Fetch issues a GET for the image and drains the body so connections can be
// reused. Non-2xx statuses count as failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) error {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain so the transport can reuse the connection. The bytes themselves
	// are discarded; settlement is all the caller observes.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Coordinator tracks which image URLs the current session references and
// which have settled. Each URL is attempted at most once per Coordinator,
// even if it appears in several messages. Loading is complete exactly when
// every observed URL has settled; success and failure are not distinguished
// so a broken image can never wedge the overlay.
//
// A Coordinator belongs to one chat session. Opening a new session means
// creating a new Coordinator; completions from an abandoned Coordinator
// update only that instance.
type Coordinator struct {
	fetcher Fetcher

	// notifyMu serializes settlement computation with its delivery:
	// without it, a completion could compute settled=true, lose the
	// race to a concurrent Observe that computed settled=false, and
	// deliver the stale true last. Always acquired before mu.
	notifyMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]bool // Every URL observed this session.
	attempted map[string]bool // URLs with a load attempt started.
	processed map[string]bool // URLs whose attempt settled. Grows monotonically.
	closed    bool

	cancel context.CancelFunc
	ctx    context.Context

	// onChange is invoked (outside the lock) after every state change with
	// the current settlement value. May be nil.
	onChange func(settled bool)
}

// NewCoordinator creates a coordinator for one chat session.
// onChange receives the settlement state after each observation and each
// completed attempt; it may be nil.
func NewCoordinator(fetcher Fetcher, onChange func(settled bool)) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		fetcher:   fetcher,
		pending:   make(map[string]bool),
		attempted: make(map[string]bool),
		processed: make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
		onChange:  onChange,
	}
}

// Observe records the image URLs referenced by newly loaded messages and
// starts a load attempt for any URL not attempted before. Observe may be
// called at any time, interleaved with completions of earlier attempts.
func (c *Coordinator) Observe(urls []string) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	var starts []string
	for _, u := range urls {
		c.pending[u] = true
		if !c.attempted[u] {
			c.attempted[u] = true
			starts = append(starts, u)
		}
	}
	settled := c.settledLocked()
	c.mu.Unlock()

	for _, u := range starts {
		go c.attempt(u)
	}

	c.notify(settled)
}

// Settled reports whether every observed URL has settled.
// A coordinator with no observed URLs is settled.
func (c *Coordinator) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settledLocked()
}

// Close cancels outstanding attempts and stops further notifications.
// Close is idempotent. It is called when the owning session closes; late
// completions after Close are discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
}

// attempt runs one load attempt and settles the URL regardless of outcome.
func (c *Coordinator) attempt(url string) {
	var err error
	if c.fetcher != nil {
		err = c.fetcher.Fetch(c.ctx, url)
	}
	if err != nil {
		log.Printf("prefetch: image load failed for %s: %v", url, err)
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.processed[url] = true
	settled := c.settledLocked()
	c.mu.Unlock()

	c.notify(settled)
}

func (c *Coordinator) settledLocked() bool {
	for u := range c.pending {
		if !c.processed[u] {
			return false
		}
	}
	return true
}

func (c *Coordinator) notify(settled bool) {
	if c.onChange != nil {
		c.onChange(settled)
	}
}

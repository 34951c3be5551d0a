package prefetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// gatedFetcher blocks each Fetch until released and records every URL it
// was asked to load.
type gatedFetcher struct {
	mu      sync.Mutex
	calls   []string
	gates   map[string]chan error
	started chan string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		gates:   make(map[string]chan error),
		started: make(chan string, 16),
	}
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	gate, ok := f.gates[url]
	if !ok {
		gate = make(chan error, 1)
		f.gates[url] = gate
	}
	f.mu.Unlock()

	f.started <- url

	select {
	case err := <-gate:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release unblocks the in-flight attempt for url with the given result.
func (f *gatedFetcher) release(url string, err error) {
	f.mu.Lock()
	gate, ok := f.gates[url]
	if !ok {
		gate = make(chan error, 1)
		f.gates[url] = gate
	}
	f.mu.Unlock()
	gate <- err
}

func (f *gatedFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (f *gatedFetcher) waitStarted(t *testing.T, want int) {
	t.Helper()
	for i := 0; i < want; i++ {
		select {
		case <-f.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for attempt %d of %d to start", i+1, want)
		}
	}
}

// waitSettled polls Settled until it reports the wanted value.
func waitSettled(t *testing.T, c *Coordinator, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Settled() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Settled() = %v, want %v", c.Settled(), want)
}

func TestCoordinatorEmptyIsSettled(t *testing.T) {
	c := NewCoordinator(newGatedFetcher(), nil)
	defer c.Close()

	if !c.Settled() {
		t.Error("Settled() = false for coordinator with no observed URLs, want true")
	}

	c.Observe(nil)
	if !c.Settled() {
		t.Error("Settled() = false after observing no URLs, want true")
	}
}

func TestCoordinatorSettlesAfterAllComplete(t *testing.T) {
	f := newGatedFetcher()
	c := NewCoordinator(f, nil)
	defer c.Close()

	c.Observe([]string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"})
	f.waitStarted(t, 2)

	if c.Settled() {
		t.Fatal("Settled() = true with both attempts in flight, want false")
	}

	f.release("https://cdn.example.com/a.png", nil)
	// One of two settled: still loading.
	time.Sleep(20 * time.Millisecond)
	if c.Settled() {
		t.Fatal("Settled() = true with one attempt in flight, want false")
	}

	f.release("https://cdn.example.com/b.png", nil)
	waitSettled(t, c, true)
}

func TestCoordinatorFailureSettlesLikeSuccess(t *testing.T) {
	f := newGatedFetcher()
	c := NewCoordinator(f, nil)
	defer c.Close()

	c.Observe([]string{"https://cdn.example.com/broken.png"})
	f.waitStarted(t, 1)

	f.release("https://cdn.example.com/broken.png", errors.New("boom"))
	waitSettled(t, c, true)
}

func TestCoordinatorAttemptsEachURLOnce(t *testing.T) {
	f := newGatedFetcher()
	c := NewCoordinator(f, nil)
	defer c.Close()

	url := "https://cdn.example.com/repeat.png"
	c.Observe([]string{url, url})
	f.waitStarted(t, 1)
	f.release(url, nil)
	waitSettled(t, c, true)

	// Repeats in later messages do not retry and do not unsettle.
	c.Observe([]string{url})
	if !c.Settled() {
		t.Error("Settled() = false after re-observing a settled URL, want true")
	}
	if got := f.callCount(url); got != 1 {
		t.Errorf("fetch count for %s = %d, want 1", url, got)
	}
}

func TestCoordinatorInterleavedObserve(t *testing.T) {
	f := newGatedFetcher()
	c := NewCoordinator(f, nil)
	defer c.Close()

	c.Observe([]string{"https://cdn.example.com/1.png"})
	f.waitStarted(t, 1)

	// A second message arrives while the first image is still loading.
	c.Observe([]string{"https://cdn.example.com/2.png"})
	f.waitStarted(t, 1)

	f.release("https://cdn.example.com/1.png", nil)
	time.Sleep(20 * time.Millisecond)
	if c.Settled() {
		t.Fatal("Settled() = true with the second attempt in flight, want false")
	}

	f.release("https://cdn.example.com/2.png", nil)
	waitSettled(t, c, true)
}

func TestCoordinatorNotifiesOnChange(t *testing.T) {
	f := newGatedFetcher()

	var mu sync.Mutex
	var last bool
	var calls int
	c := NewCoordinator(f, func(settled bool) {
		mu.Lock()
		last = settled
		calls++
		mu.Unlock()
	})
	defer c.Close()

	c.Observe([]string{"https://cdn.example.com/a.png"})
	f.waitStarted(t, 1)

	mu.Lock()
	if calls == 0 || last {
		t.Errorf("after Observe: calls = %d, last = %v, want calls > 0 and last false", calls, last)
	}
	mu.Unlock()

	f.release("https://cdn.example.com/a.png", nil)
	waitSettled(t, c, true)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := last
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("onChange never reported settled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCoordinatorNotificationsMatchStateAtDelivery(t *testing.T) {
	f := newGatedFetcher()

	// This test spawns more attempts than f.started's buffer holds and
	// never reads it for synchronization; drain it so no attempt blocks
	// on the gate send.
	drainDone := make(chan struct{})
	defer close(drainDone)
	go func() {
		for {
			select {
			case <-f.started:
			case <-drainDone:
				return
			}
		}
	}()

	// Every delivered value must equal the coordinator's actual
	// settlement at that moment: compute and delivery are serialized, so
	// a completion racing a new observation can never deliver a stale
	// "settled" last and hide the overlay while an image is in flight.
	var c *Coordinator
	var mu sync.Mutex
	var mismatches int
	var last bool
	c = NewCoordinator(f, func(settled bool) {
		if settled != c.Settled() {
			mu.Lock()
			mismatches++
			mu.Unlock()
		}
		mu.Lock()
		last = settled
		mu.Unlock()
	})
	defer c.Close()

	const n = 20
	urls := make([]string, n)
	for i := range urls {
		urls[i] = "https://cdn.example.com/img-" + string(rune('a'+i)) + ".png"
	}

	// Interleave observations with completions of earlier attempts.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, u := range urls {
			c.Observe([]string{u})
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, u := range urls {
			f.release(u, nil)
		}
	}()
	wg.Wait()

	waitSettled(t, c, true)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := last
		bad := mismatches
		mu.Unlock()
		if bad != 0 {
			t.Fatalf("%d notifications disagreed with Settled() at delivery", bad)
		}
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("final notification never reported settled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCoordinatorCloseDiscardsLateCompletions(t *testing.T) {
	f := newGatedFetcher()

	var mu sync.Mutex
	var calls int
	c := NewCoordinator(f, func(bool) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	c.Observe([]string{"https://cdn.example.com/slow.png"})
	f.waitStarted(t, 1)

	c.Close()
	c.Close() // idempotent

	mu.Lock()
	before := calls
	mu.Unlock()

	f.release("https://cdn.example.com/slow.png", nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	after := calls
	mu.Unlock()
	if after != before {
		t.Errorf("onChange calls after Close = %d, want %d", after, before)
	}

	// Observing after Close is a no-op.
	c.Observe([]string{"https://cdn.example.com/late.png"})
	if got := f.callCount("https://cdn.example.com/late.png"); got != 0 {
		t.Errorf("fetch count after Close = %d, want 0", got)
	}
}

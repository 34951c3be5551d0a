package prefetch

import (
	"sync"
	"testing"
	"time"
)

// visRecorder captures visibility transitions from an Aggregator.
type visRecorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *visRecorder) record(visible bool) {
	r.mu.Lock()
	r.events = append(r.events, visible)
	r.mu.Unlock()
}

func (r *visRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func waitVisible(t *testing.T, a *Aggregator, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Visible() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Visible() = %v, want %v", a.Visible(), want)
}

func TestAggregatorInitiallyHidden(t *testing.T) {
	a := NewAggregator(10*time.Millisecond, nil)
	defer a.Stop()

	if a.Visible() {
		t.Error("Visible() = true for new aggregator, want false")
	}
}

func TestAggregatorShowsImmediately(t *testing.T) {
	rec := &visRecorder{}
	a := NewAggregator(10*time.Millisecond, rec.record)
	defer a.Stop()

	a.SetHistoryLoading(true)
	if !a.Visible() {
		t.Fatal("Visible() = false right after loading started, want true")
	}
	if got := rec.snapshot(); len(got) != 1 || !got[0] {
		t.Errorf("transitions = %v, want [true]", got)
	}
}

func TestAggregatorHidesAfterDelay(t *testing.T) {
	a := NewAggregator(15*time.Millisecond, nil)
	defer a.Stop()

	a.SetHistoryLoading(true)
	a.SetHistoryLoading(false)

	// The overlay stays up through the hide window.
	if !a.Visible() {
		t.Fatal("Visible() = false immediately after loading cleared, want true during hide delay")
	}

	waitVisible(t, a, false)
}

func TestAggregatorCancelsHideWhenLoadingResumes(t *testing.T) {
	a := NewAggregator(40*time.Millisecond, nil)
	defer a.Stop()

	a.SetHistoryLoading(true)
	a.SetHistoryLoading(false)

	// Loading resumes inside the hide window; the scheduled hide must not
	// fire.
	a.SetImagesSettled(false)
	time.Sleep(80 * time.Millisecond)
	if !a.Visible() {
		t.Fatal("Visible() = false while images unsettled, want true")
	}

	a.SetImagesSettled(true)
	waitVisible(t, a, false)
}

func TestAggregatorCombinesConditions(t *testing.T) {
	a := NewAggregator(10*time.Millisecond, nil)
	defer a.Stop()

	a.SetHistoryLoading(true)
	a.SetImagesSettled(false)

	// Clearing one condition keeps the overlay up for the other.
	a.SetHistoryLoading(false)
	time.Sleep(30 * time.Millisecond)
	if !a.Visible() {
		t.Fatal("Visible() = false with images still unsettled, want true")
	}

	a.SetImagesSettled(true)
	waitVisible(t, a, false)
}

func TestAggregatorNotifiesHideOnce(t *testing.T) {
	rec := &visRecorder{}
	a := NewAggregator(10*time.Millisecond, rec.record)
	defer a.Stop()

	a.SetHistoryLoading(true)
	a.SetHistoryLoading(false)
	waitVisible(t, a, false)

	// Redundant updates while hidden produce no further transitions.
	a.SetImagesSettled(true)
	a.SetHistoryLoading(false)
	time.Sleep(30 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("transitions = %v, want [true false]", got)
	}
}

func TestAggregatorStopCancelsPendingHide(t *testing.T) {
	rec := &visRecorder{}
	a := NewAggregator(10*time.Millisecond, rec.record)

	a.SetHistoryLoading(true)
	a.SetHistoryLoading(false)
	a.Stop()

	time.Sleep(30 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 || !got[0] {
		t.Errorf("transitions after Stop = %v, want [true]", got)
	}
}

func TestAggregatorDefaultDelay(t *testing.T) {
	a := NewAggregator(0, nil)
	defer a.Stop()
	if a.hideDelay != DefaultHideDelay {
		t.Errorf("hideDelay = %v, want %v", a.hideDelay, DefaultHideDelay)
	}
}

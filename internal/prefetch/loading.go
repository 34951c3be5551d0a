package prefetch

import (
	"sync"
	"time"
)

// DefaultHideDelay is how long the loading overlay stays visible after the
// last loading condition clears. The delay absorbs quick true/false/true
// transitions (e.g. a new message adding images right as the last one
// settles) so the overlay does not flicker.
const DefaultHideDelay = 250 * time.Millisecond

// Aggregator combines the two loading conditions of a chat session - history
// not yet received, and observed images not all settled - into a single
// overlay visibility signal.
//
// Showing is immediate; hiding waits for the configured delay and is
// cancelled if loading resumes within the window. The delayed hide uses a
// timer, never a blocking sleep.
type Aggregator struct {
	mu sync.Mutex

	hideDelay time.Duration

	historyLoading bool
	imagesSettled  bool

	visible   bool
	hideTimer *time.Timer

	// onChange receives visibility transitions. Invoked without the lock
	// held, in the goroutine that triggered the transition. May be nil.
	onChange func(visible bool)
}

// NewAggregator creates an aggregator with the given hide delay.
// A non-positive delay falls back to DefaultHideDelay. Initial state is
// hidden with no loading conditions active.
func NewAggregator(hideDelay time.Duration, onChange func(visible bool)) *Aggregator {
	if hideDelay <= 0 {
		hideDelay = DefaultHideDelay
	}
	return &Aggregator{
		hideDelay:     hideDelay,
		imagesSettled: true,
		onChange:      onChange,
	}
}

// SetHistoryLoading records whether the history snapshot is still pending.
func (a *Aggregator) SetHistoryLoading(loading bool) {
	a.mu.Lock()
	a.historyLoading = loading
	shown := a.recomputeLocked()
	a.mu.Unlock()

	if shown && a.onChange != nil {
		a.onChange(true)
	}
}

// SetImagesSettled records whether all observed images have settled.
func (a *Aggregator) SetImagesSettled(settled bool) {
	a.mu.Lock()
	a.imagesSettled = settled
	shown := a.recomputeLocked()
	a.mu.Unlock()

	if shown && a.onChange != nil {
		a.onChange(true)
	}
}

// Visible reports whether the overlay is currently shown.
func (a *Aggregator) Visible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.visible
}

// Stop cancels any pending hide. Call when the owning session closes.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelHideLocked()
}

// recomputeLocked applies the derived loading value: show immediately, hide
// after the delay unless loading resumes first. Returns true when the
// overlay transitioned to visible (the caller fires the callback after
// releasing the lock; the delayed hide notifies from the timer goroutine).
func (a *Aggregator) recomputeLocked() bool {
	loading := a.historyLoading || !a.imagesSettled

	if loading {
		a.cancelHideLocked()
		if !a.visible {
			a.visible = true
			return true
		}
		return false
	}

	// Not loading. If the overlay is up and no hide is scheduled yet,
	// schedule one; if loading flips back before it fires, the timer is
	// cancelled above.
	if a.visible && a.hideTimer == nil {
		a.hideTimer = time.AfterFunc(a.hideDelay, a.hideAfterDelay)
	}
	return false
}

// hideAfterDelay fires when the hide delay elapses without loading resuming.
func (a *Aggregator) hideAfterDelay() {
	a.mu.Lock()
	a.hideTimer = nil
	if a.historyLoading || !a.imagesSettled {
		// Loading resumed between the timer firing and acquiring the lock.
		a.mu.Unlock()
		return
	}
	hidden := a.visible
	a.visible = false
	a.mu.Unlock()

	if hidden && a.onChange != nil {
		a.onChange(false)
	}
}

func (a *Aggregator) cancelHideLocked() {
	if a.hideTimer != nil {
		a.hideTimer.Stop()
		a.hideTimer = nil
	}
}

package dispatch

import "sync"

// ErrorWindow remembers whether each of the last N outcomes failed.
// Safe for concurrent use.
type ErrorWindow struct {
	mu     sync.Mutex
	ring   []bool
	next   int
	filled int
	errors int
}

// NewErrorWindow creates a window of the given capacity (at least 1).
func NewErrorWindow(size int) *ErrorWindow {
	return &ErrorWindow{ring: make([]bool, max(1, size))}
}

// Record slides the window by one outcome.
func (w *ErrorWindow) Record(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filled == len(w.ring) {
		if w.ring[w.next] {
			w.errors--
		}
	} else {
		w.filled++
	}
	w.ring[w.next] = failed
	if failed {
		w.errors++
	}
	w.next = (w.next + 1) % len(w.ring)
}

// Rate is the failed fraction of recorded outcomes, 0 when empty.
func (w *ErrorWindow) Rate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rateLocked()
}

func (w *ErrorWindow) rateLocked() float64 {
	if w.filled == 0 {
		return 0
	}
	return float64(w.errors) / float64(w.filled)
}

func (w *ErrorWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filled
}

func (w *ErrorWindow) Cap() int { return len(w.ring) }

// Exceeds reports the current rate and whether it is above limit with at
// least minSamples outcomes recorded.
func (w *ErrorWindow) Exceeds(limit float64, minSamples int) (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rate := w.rateLocked()
	return rate, w.filled >= minSamples && rate > limit
}

// Reset empties the window.
func (w *ErrorWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.ring)
	w.next, w.filled, w.errors = 0, 0, 0
}

// Package engagement computes the engagement level that drives actuation.
package engagement

import (
	"math"
	"sync"
	"time"
)

const (
	// Max is the upper bound of the level.
	Max = 100.0
	// TickInterval is the decay period.
	TickInterval = 300 * time.Millisecond
	// decayFactor scales the per-tick decay relative to one word's share.
	decayFactor = 0.3
)

// Raise returns the level after progress leaves remaining of total words.
// Each step closes 1/(remaining+1) of the gap to Max. When no progress has
// been made (remaining == total) the level is 0.
func Raise(current float64, remaining, total int) float64 {
	if remaining == total {
		return 0
	}
	next := current + (Max-current)*(1/float64(remaining+1))
	return Clamp(math.Min(next, Max))
}

// Decay returns the level after one tick. The step is proportional to one
// word's share of the prompt so short and long prompts fade at the same
// relative pace.
func Decay(current float64, total int) float64 {
	if total <= 0 {
		return Clamp(current)
	}
	return Clamp(math.Max(0, current-Max*(1/float64(total))*decayFactor))
}

// Clamp bounds v to [0, Max].
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > Max:
		return Max
	default:
		return v
	}
}

// Level is the shared engagement value. Readers may be on any goroutine; the
// session machine is the only writer.
type Level struct {
	mu    sync.Mutex
	value float64
	subs  map[int]chan float64
	next  int
}

// NewLevel returns a Level at 0.
func NewLevel() *Level {
	return &Level{subs: map[int]chan float64{}}
}

// Value returns the current level.
func (l *Level) Value() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Set stores v clamped to [0, Max] and notifies subscribers when it changed.
func (l *Level) Set(v float64) {
	v = Clamp(v)
	l.mu.Lock()
	defer l.mu.Unlock()
	if v == l.value {
		return
	}
	l.value = v
	for _, ch := range l.subs {
		// Keep only the latest value for slow readers.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Subscribe returns a channel receiving the latest level after each change and
// a function that removes the subscription.
func (l *Level) Subscribe() (<-chan float64, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.next
	l.next++
	ch := make(chan float64, 1)
	l.subs[id] = ch
	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
	}
}

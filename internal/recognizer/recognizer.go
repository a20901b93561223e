// Package recognizer defines the speech recognition stream consumed by the
// practice session and the transcript buffer shared by its implementations.
package recognizer

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrUnsupported is returned when speech recognition is unavailable.
var ErrUnsupported = errors.New("speech recognition is not supported")

// UpdateKind identifies an Update.
type UpdateKind int

const (
	// TranscriptChanged carries the full transcript since the last reset.
	TranscriptChanged UpdateKind = iota
	// ListeningChanged carries the new listening state.
	ListeningChanged
	// AbortCompleted signals that an Abort has finished and nothing captured
	// before it will be delivered.
	AbortCompleted
)

func (k UpdateKind) String() string {
	switch k {
	case TranscriptChanged:
		return "transcript"
	case ListeningChanged:
		return "listening"
	case AbortCompleted:
		return "abort-completed"
	default:
		return "unknown"
	}
}

// Update is a change reported by a Stream. Updates arrive in the order they
// happened.
type Update struct {
	Kind       UpdateKind
	Transcript string
	Listening  bool
}

// Stream is an always-on speech recognition stream.
type Stream interface {
	// Supported reports whether recognition can run at all.
	Supported() bool
	// Start begins listening. Continuous streams keep listening after a result.
	Start(ctx context.Context, continuous bool) error
	// Stop stops listening; already captured audio may still be delivered.
	Stop() error
	// Abort stops listening and discards in-flight audio. Completion is
	// reported as an AbortCompleted update.
	Abort() error
	// Reset clears the transcript.
	Reset()
	// Updates returns the ordered update channel.
	Updates() <-chan Update
}

// Buffer is an append-only transcript with a listening flag. It queues updates
// without blocking writers and delivers them in order on Updates.
type Buffer struct {
	mu         sync.Mutex
	transcript string
	listening  bool
	continuous bool
	aborting   bool
	queue      []Update
	changed    chan struct{}
	// cleared is closed and replaced by Reset.
	cleared chan struct{}

	notify chan struct{}
	out    chan Update
	done   chan struct{}
	once   sync.Once
}

// NewBuffer returns a Buffer and starts its delivery goroutine. Call Close to
// stop it.
func NewBuffer() *Buffer {
	b := &Buffer{
		changed: make(chan struct{}),
		cleared: make(chan struct{}),
		notify:  make(chan struct{}, 1),
		out:     make(chan Update),
		done:    make(chan struct{}),
	}
	go b.pump()
	return b
}

// Updates returns the ordered update channel. It is closed by Close.
func (b *Buffer) Updates() <-chan Update {
	return b.out
}

// Transcript returns the current transcript.
func (b *Buffer) Transcript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transcript
}

// Listening reports whether appends are accepted.
func (b *Buffer) Listening() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listening
}

// SetListening changes the listening state. Starting clears a finished abort.
func (b *Buffer) SetListening(on, continuous bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if on {
		b.aborting = false
		b.continuous = continuous
	}
	b.setListeningLocked(on)
}

// Append adds raw text to the transcript. It reports false when the text was
// dropped because the buffer is not listening or an abort is in progress.
func (b *Buffer) Append(text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(text)
}

// AppendPhrase adds a recognised phrase, separating it from the existing
// transcript with a single space.
func (b *Buffer) AppendPhrase(phrase string) bool {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transcript != "" {
		phrase = " " + phrase
	}
	return b.appendLocked(phrase)
}

func (b *Buffer) appendLocked(text string) bool {
	if !b.listening || b.aborting || text == "" {
		return false
	}
	b.transcript += text
	b.enqueueLocked(Update{Kind: TranscriptChanged, Transcript: b.transcript})
	if !b.continuous {
		b.setListeningLocked(false)
	}
	return true
}

// Reset clears the transcript without emitting an update. Transcript updates
// not yet delivered are dropped.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transcript = ""
	kept := b.queue[:0]
	for _, u := range b.queue {
		if u.Kind != TranscriptChanged {
			kept = append(kept, u)
		}
	}
	b.queue = kept
	close(b.cleared)
	b.cleared = make(chan struct{})
}

// BeginAbort stops listening and drops every append until FinishAbort.
func (b *Buffer) BeginAbort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborting = true
	b.setListeningLocked(false)
}

// FinishAbort queues the AbortCompleted update.
func (b *Buffer) FinishAbort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueueLocked(Update{Kind: AbortCompleted})
}

// Abort performs BeginAbort and FinishAbort.
func (b *Buffer) Abort() {
	b.BeginAbort()
	b.FinishAbort()
}

// AwaitListening blocks until the buffer is listening or ctx is done.
func (b *Buffer) AwaitListening(ctx context.Context) error {
	for {
		b.mu.Lock()
		listening := b.listening
		changed := b.changed
		b.mu.Unlock()
		if listening {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return errors.New("recognizer: buffer closed")
		}
	}
}

// Close stops update delivery and closes the Updates channel.
func (b *Buffer) Close() {
	b.once.Do(func() {
		close(b.done)
	})
}

func (b *Buffer) setListeningLocked(on bool) {
	if b.listening == on {
		return
	}
	b.listening = on
	close(b.changed)
	b.changed = make(chan struct{})
	b.enqueueLocked(Update{Kind: ListeningChanged, Listening: on})
}

func (b *Buffer) enqueueLocked(u Update) {
	// Consecutive transcript updates collapse into the newest one.
	if n := len(b.queue); n > 0 && u.Kind == TranscriptChanged && b.queue[n-1].Kind == TranscriptChanged {
		b.queue[n-1] = u
	} else {
		b.queue = append(b.queue, u)
	}
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// deliver sends u unless it is a transcript update made stale by a Reset. It
// reports false once the buffer is closed.
func (b *Buffer) deliver(u Update, cleared <-chan struct{}) bool {
	select {
	case b.out <- u:
		return true
	case <-b.done:
		return false
	case <-cleared:
		if u.Kind == TranscriptChanged {
			return true
		}
	}
	select {
	case b.out <- u:
		return true
	case <-b.done:
		return false
	}
}

func (b *Buffer) pump() {
	defer close(b.out)
	for {
		select {
		case <-b.notify:
		case <-b.done:
			return
		}
		for {
			b.mu.Lock()
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			u := b.queue[0]
			b.queue = b.queue[1:]
			cleared := b.cleared
			b.mu.Unlock()
			if !b.deliver(u, cleared) {
				return
			}
		}
	}
}

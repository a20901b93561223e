package session

import "github.com/verte-zerg/recite/internal/matcher"

// Event is an input to Reduce.
type Event interface {
	event()
}

// Restarted starts the session over from the first sentence.
type Restarted struct{}

// TranscriptUpdated carries the full transcript since the last reset.
type TranscriptUpdated struct {
	Text string
}

// ListeningChanged reports the listening state of the stream.
type ListeningChanged struct {
	Listening bool
}

// AbortCompleted reports that a requested abort has finished.
type AbortCompleted struct{}

// SkipRequested marks a word as spoken.
type SkipRequested struct {
	Coord matcher.Coord
}

// Tick is one decay period.
type Tick struct{}

// WindowBlurred is sent when the UI loses focus.
type WindowBlurred struct{}

// WindowFocused is sent when the UI regains focus.
type WindowFocused struct{}

// ListeningRequested switches the microphone on or off.
type ListeningRequested struct {
	On bool
}

// PromptLoaded replaces the prompt. ID is recorded with completed sessions.
type PromptLoaded struct {
	Text string
	ID   string
}

func (Restarted) event()          {}
func (TranscriptUpdated) event()  {}
func (ListeningChanged) event()   {}
func (AbortCompleted) event()     {}
func (SkipRequested) event()      {}
func (Tick) event()               {}
func (WindowBlurred) event()      {}
func (WindowFocused) event()      {}
func (ListeningRequested) event() {}
func (PromptLoaded) event()       {}

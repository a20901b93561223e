// Package session drives a practice session: it matches the transcript against
// the current sentence, advances sentences, controls the recognition stream
// and owns the engagement level.
package session

import (
	"github.com/verte-zerg/recite/internal/engagement"
	"github.com/verte-zerg/recite/internal/matcher"
	"github.com/verte-zerg/recite/internal/segment"
)

// Phase is the overall session phase.
type Phase int

const (
	NotStarted Phase = iota
	Started
	Complete
	Unsupported
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not-started"
	case Started:
		return "started"
	case Complete:
		return "complete"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Effect is a side effect on the recognition stream requested by Reduce.
type Effect int

const (
	StartListening Effect = iota
	StopListening
	AbortListening
	ResetTranscript
)

func (e Effect) String() string {
	switch e {
	case StartListening:
		return "start-listening"
	case StopListening:
		return "stop-listening"
	case AbortListening:
		return "abort-listening"
	case ResetTranscript:
		return "reset-transcript"
	default:
		return "unknown"
	}
}

type stage int

const (
	stageMatching stage = iota
	// stagePendingAbort waits for AbortCompleted; transcripts are ignored.
	stagePendingAbort
)

// Snapshot is the matching state of the whole prompt.
type Snapshot struct {
	Current        matcher.LineState
	Previous       *matcher.LineState
	WordsRemaining int
	TotalWords     int
	TotalSentences int
}

// State is the value reduced by Reduce.
type State struct {
	Phase      Phase
	Sentences  []string
	Index      int
	Transcript string
	Skips      matcher.SkipSet
	Previous   *matcher.LineState
	Snapshot   Snapshot
	Level      float64
	Listening  bool
	Guard      Guard

	stage             stage
	restartAfterAbort bool
	matcher           *matcher.Matcher
	totalWords        int
}

// NewState segments prompt and returns the initial state. An unsupported
// recogniser puts the state in the absorbing Unsupported phase.
func NewState(prompt string, supported bool, m *matcher.Matcher) State {
	if m == nil {
		m = matcher.New()
	}
	s := State{
		Phase:      NotStarted,
		Sentences:  segment.Sentences(prompt),
		Skips:      matcher.SkipSet{},
		matcher:    m,
		totalWords: segment.CountWords(prompt),
	}
	if !supported {
		s.Phase = Unsupported
	}
	s.Snapshot = s.compute()
	return s
}

// PendingAbort reports whether the state waits for an abort to complete.
func (s State) PendingAbort() bool {
	return s.stage == stagePendingAbort
}

func (s State) compute() Snapshot {
	line := s.matcher.Match(s.Sentences[s.Index], s.Index+1, s.Transcript, s.Skips)
	remaining := line.RemainingWords
	for _, sentence := range s.Sentences[s.Index+1:] {
		remaining += segment.CountWords(sentence)
	}
	return Snapshot{
		Current:        line,
		Previous:       s.Previous,
		WordsRemaining: remaining,
		TotalWords:     s.totalWords,
		TotalSentences: len(s.Sentences),
	}
}

// evaluate recomputes the snapshot, applies progress to the level and starts
// the abort of a fully matched sentence.
func (s State) evaluate(effects []Effect) (State, []Effect) {
	if s.Phase != Started || s.stage == stagePendingAbort {
		return s, effects
	}
	prevRemaining := s.Snapshot.WordsRemaining
	s.Snapshot = s.compute()
	if s.Snapshot.WordsRemaining != prevRemaining {
		s.Level = engagement.Raise(s.Level, s.Snapshot.WordsRemaining, s.Snapshot.TotalWords)
	}
	if s.Snapshot.Current.Complete() {
		s.stage = stagePendingAbort
		effects = append(effects, AbortListening)
	}
	return s, effects
}

// listen appends StartListening, or defers it to the next focus while the
// window is in the background.
func (s State) listen(effects []Effect) (State, []Effect) {
	if s.Guard.blurred {
		s.Guard.resume = true
		return s, effects
	}
	return s, append(effects, StartListening)
}

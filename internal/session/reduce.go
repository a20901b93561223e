package session

import (
	"github.com/verte-zerg/recite/internal/engagement"
	"github.com/verte-zerg/recite/internal/matcher"
	"github.com/verte-zerg/recite/internal/segment"
)

// Reduce applies ev to s and returns the new state with the stream effects to
// execute, in order. It never mutates s.
func Reduce(s State, ev Event) (State, []Effect) {
	if s.Phase == Unsupported {
		return s, nil
	}
	switch ev := ev.(type) {
	case Restarted:
		return s.restart()
	case PromptLoaded:
		return s.load(ev.Text)
	case TranscriptUpdated:
		if s.stage == stagePendingAbort {
			return s, nil
		}
		s.Transcript = ev.Text
		return s.evaluate(nil)
	case ListeningChanged:
		s.Listening = ev.Listening
		return s, nil
	case AbortCompleted:
		return s.completeAbort()
	case SkipRequested:
		s.Skips = s.Skips.Clone()
		s.Skips.Add(ev.Coord)
		if s.Phase != Started {
			s.Snapshot = s.compute()
			return s, nil
		}
		return s.evaluate(nil)
	case Tick:
		if s.Phase == Started {
			s.Level = engagement.Decay(s.Level, s.Snapshot.TotalWords)
		}
		return s, nil
	case WindowBlurred:
		var effects []Effect
		s.Guard, effects = s.Guard.Blur(s.Listening)
		return s, effects
	case WindowFocused:
		var effects []Effect
		s.Guard, effects = s.Guard.Focus()
		return s, effects
	case ListeningRequested:
		if ev.On {
			return s.listen(nil)
		}
		s.Guard.resume = false
		return s, []Effect{StopListening}
	default:
		return s, nil
	}
}

func (s State) restart() (State, []Effect) {
	s.Phase = Started
	s.Index = 0
	s.Transcript = ""
	s.Previous = nil
	s.Level = 0
	if s.stage == stagePendingAbort {
		// The outstanding completion resumes listening instead of advancing.
		s.restartAfterAbort = true
		s.Snapshot = s.compute()
		return s, nil
	}
	s, effects := s.listen([]Effect{ResetTranscript})
	return s.evaluate(effects)
}

// load swaps the prompt. Skip coordinates belong to the old prompt and are
// dropped. A running session starts over on the new text.
func (s State) load(prompt string) (State, []Effect) {
	s.Sentences = segment.Sentences(prompt)
	s.totalWords = segment.CountWords(prompt)
	s.Skips = matcher.SkipSet{}
	if s.Phase == Started {
		return s.restart()
	}
	s.Phase = NotStarted
	s.Index = 0
	s.Transcript = ""
	s.Previous = nil
	s.Level = 0
	s.Snapshot = s.compute()
	return s, nil
}

func (s State) completeAbort() (State, []Effect) {
	if s.stage != stagePendingAbort {
		return s, nil
	}
	s.stage = stageMatching
	s.Transcript = ""
	effects := []Effect{ResetTranscript}

	if s.restartAfterAbort {
		s.restartAfterAbort = false
		s, effects = s.listen(effects)
		return s.evaluate(effects)
	}

	done := s.Snapshot.Current
	s.Previous = &done
	if s.Index+1 < len(s.Sentences) {
		s.Index++
		s, effects = s.listen(effects)
		return s.evaluate(effects)
	}
	s.Phase = Complete
	s.Level = 0
	s.Snapshot.Previous = s.Previous
	return s, effects
}

// Package matcher reconciles a growing speech transcript against one sentence
// of the prompt.
package matcher

import (
	"regexp"
	"strings"

	"github.com/verte-zerg/recite/internal/segment"
)

// Coord addresses a word in the prompt. Both fields are 1-based.
type Coord struct {
	Sentence int
	Word     int
}

// Skipper reports whether a word position should be treated as spoken.
type Skipper interface {
	Skipped(c Coord) bool
}

// SkipSet is a grow-only set of skipped word positions.
type SkipSet map[Coord]struct{}

// Add records c as skipped.
func (s SkipSet) Add(c Coord) {
	s[c] = struct{}{}
}

// Skipped implements Skipper.
func (s SkipSet) Skipped(c Coord) bool {
	_, ok := s[c]
	return ok
}

// Clone returns a copy of the set.
func (s SkipSet) Clone() SkipSet {
	out := make(SkipSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// LineState is the matching snapshot of one sentence.
//
// Matched + Pending + Remaining always equals the sentence with surrounding
// whitespace trimmed.
type LineState struct {
	Matched    string
	Pending    string
	Remaining  string
	Unmatched  string
	Sentence   int
	WordNumber int

	// MatchedWords and RemainingWords count words; Pending is included in
	// RemainingWords.
	MatchedWords   int
	RemainingWords int
}

// Complete reports whether every word of the sentence has been matched.
func (l LineState) Complete() bool {
	return l.Pending == "" && l.Remaining == ""
}

// Text reconstructs the trimmed sentence.
func (l LineState) Text() string {
	return l.Matched + l.Pending + l.Remaining
}

// Matcher compares transcript tokens against prompt words.
type Matcher struct {
	foldCase bool
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithFoldCase makes word comparison case-insensitive.
func WithFoldCase(fold bool) Option {
	return func(m *Matcher) {
		m.foldCase = fold
	}
}

// New returns a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match is shorthand for a default Matcher's Match. Skipped words do not
// consume transcript tokens.
func Match(sentence string, number int, transcript string, skips Skipper) LineState {
	return New().Match(sentence, number, transcript, skips)
}

// Match walks the transcript tokens against the words of sentence. number is
// the 1-based sentence number used for skip lookups; skips may be nil.
// A skipped word is accepted without consuming a transcript token.
func (m *Matcher) Match(sentence string, number int, transcript string, skips Skipper) LineState {
	words := segment.Words(sentence)
	tokens := segment.Words(transcript)

	var (
		matched    []string
		pending    string
		hasPending bool
		next       int
		ti         int
		unmatched  strings.Builder
	)
	skipped := func() bool {
		return skips != nil && skips.Skipped(Coord{Sentence: number, Word: len(matched) + 1})
	}
	accept := func() {
		matched = append(matched, pending)
		pending = ""
		hasPending = false
		unmatched.Reset()
	}

	for {
		if !hasPending {
			if next >= len(words) {
				break
			}
			// Only pull the next word when there is something to test it with.
			if ti >= len(tokens) && !skipped() {
				break
			}
			pending = words[next]
			next++
			hasPending = true
		}
		if skipped() {
			accept()
			continue
		}
		if ti >= len(tokens) {
			break
		}
		token := tokens[ti]
		ti++
		if m.matches(token, pending) {
			accept()
			continue
		}
		unmatched.WriteString(token)
	}
	for ; ti < len(tokens); ti++ {
		unmatched.WriteString(tokens[ti])
	}

	state := LineState{
		Matched:        strings.Join(matched, ""),
		Pending:        pending,
		Remaining:      strings.Join(words[next:], ""),
		Unmatched:      strings.TrimLeft(unmatched.String(), " \t\r\n"),
		Sentence:       number,
		MatchedWords:   len(matched),
		RemainingWords: len(words) - len(matched),
	}
	state.WordNumber = len(matched) + 1
	if state.RemainingWords == 0 {
		state.WordNumber = len(matched)
	}
	return state
}

// matches tests the transcript token as a pattern against the prompt word. A
// literal asterisk in the token matches any single character.
func (m *Matcher) matches(token, word string) bool {
	pattern := strings.ReplaceAll(regexp.QuoteMeta(strings.TrimSpace(token)), `\*`, ".")
	if m.foldCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(strings.TrimSpace(word))
}

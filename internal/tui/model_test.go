package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/recite/internal/actuator"
	"github.com/verte-zerg/recite/internal/matcher"
	"github.com/verte-zerg/recite/internal/session"
)

type fakeSession struct {
	view      session.View
	changes   chan struct{}
	restarts  int
	listening []bool
	skips     []matcher.Coord
	blurs     int
	focuses   int
}

func newFakeSession(v session.View) *fakeSession {
	return &fakeSession{view: v, changes: make(chan struct{}, 1)}
}

func (f *fakeSession) View() session.View       { return f.view }
func (f *fakeSession) Changes() <-chan struct{} { return f.changes }
func (f *fakeSession) Restart()                 { f.restarts++ }
func (f *fakeSession) SetListening(on bool)     { f.listening = append(f.listening, on) }
func (f *fakeSession) SkipWord(c matcher.Coord) { f.skips = append(f.skips, c) }
func (f *fakeSession) Blur()                    { f.blurs++ }
func (f *fakeSession) Focus()                   { f.focuses++ }

type fakeTypist struct {
	typed []string
}

func (f *fakeTypist) Type(text string) bool {
	f.typed = append(f.typed, text)
	return true
}

type fakeDevices []actuator.Device

func (f fakeDevices) Devices() []actuator.Device { return f }

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func matcherLine(matched, pending, remaining string) matcher.LineState {
	return matcher.LineState{Matched: matched, Pending: pending, Remaining: remaining}
}

func startedView(unmatched string, word int) session.View {
	return session.View{
		Phase:     session.Started,
		Listening: true,
		Snapshot: session.Snapshot{
			Current: matcher.LineState{
				Matched:        "Hello ",
				Pending:        "there.",
				Unmatched:      unmatched,
				Sentence:       1,
				WordNumber:     word,
				MatchedWords:   1,
				RemainingWords: 1,
			},
			WordsRemaining: 4,
			TotalWords:     5,
			TotalSentences: 2,
		},
	}
}

func TestHintStagesFollowTimers(t *testing.T) {
	c := &clock{t: time.Unix(100, 0)}
	sess := newFakeSession(startedView("hollow", 2))
	m := New(sess, WithClock(c.now))

	if m.stage() != hintNone {
		t.Fatalf("expected no hint right after a miss")
	}
	if strings.Contains(m.View(), "hollow") {
		t.Fatalf("unmatched transcript shown too early")
	}
	c.advance(250 * time.Millisecond)
	if m.stage() != hintSpinner {
		t.Fatalf("expected spinner stage, got %d", m.stage())
	}
	c.advance(time.Second)
	if m.stage() != hintUnmatched || !strings.Contains(m.View(), "hollow") {
		t.Fatalf("expected unmatched transcript after 1s:\n%s", m.View())
	}
	c.advance(4 * time.Second)
	if !strings.Contains(m.View(), hintMessage) {
		t.Fatalf("expected hint after 5s:\n%s", m.View())
	}
	if strings.Contains(m.View(), "to skip this word") {
		t.Fatalf("skip offered too early")
	}
	c.advance(10 * time.Second)
	if !strings.Contains(m.View(), "press s to skip this word") {
		t.Fatalf("expected skip offer after 15s:\n%s", m.View())
	}
}

func TestHintTimerResetsOnNewWordAndMatch(t *testing.T) {
	c := &clock{t: time.Unix(100, 0)}
	sess := newFakeSession(startedView("hollow", 2))
	m := New(sess, WithClock(c.now))
	c.advance(2 * time.Second)

	sess.view = startedView("hollow", 3)
	m.Update(changedMsg{})
	if m.stage() != hintNone {
		t.Fatalf("expected timer restart for a new word")
	}

	c.advance(2 * time.Second)
	sess.view = startedView("", 3)
	m.Update(changedMsg{})
	if m.stage() != hintNone || !m.missAt.IsZero() {
		t.Fatalf("expected timers cleared once nothing is unmatched")
	}
}

func TestHintsDisabledHideHintText(t *testing.T) {
	c := &clock{t: time.Unix(100, 0)}
	m := New(newFakeSession(startedView("hollow", 2)), WithClock(c.now), WithHints(false))
	c.advance(20 * time.Second)
	out := m.View()
	if !strings.Contains(out, "hollow") || strings.Contains(out, hintMessage) || strings.Contains(out, "skip this word") {
		t.Fatalf("unexpected view with hints disabled:\n%s", out)
	}
}

func TestPreviousLineShownDuringTransition(t *testing.T) {
	c := &clock{t: time.Unix(100, 0)}
	sess := newFakeSession(startedView("", 2))
	m := New(sess, WithClock(c.now))

	prev := matcherLine("Hello there.", "", "")
	next := startedView("", 1)
	next.Snapshot.Current = matcher.LineState{Pending: "How ", Remaining: "are you.", Sentence: 2, WordNumber: 1, RemainingWords: 3}
	next.Snapshot.Previous = &prev
	sess.view = next
	m.Update(changedMsg{})

	if !strings.Contains(m.View(), "Hello there.") {
		t.Fatalf("expected previous line during transition:\n%s", m.View())
	}
	c.advance(transitionDelay)
	if strings.Contains(m.View(), "Hello there.") {
		t.Fatalf("previous line still shown after transition")
	}
}

func TestIntroShownBeforeFirstMatch(t *testing.T) {
	v := startedView("", 1)
	v.Snapshot.Current.Matched = ""
	m := New(newFakeSession(v))
	if !strings.Contains(m.View(), introText) {
		t.Fatalf("expected intro text:\n%s", m.View())
	}
}

func TestPhaseMessages(t *testing.T) {
	cases := map[session.Phase]string{
		session.NotStarted:  "Press enter to start.",
		session.Complete:    "Press enter to practice again.",
		session.Unsupported: "Speech recognition is unavailable.",
	}
	for phase, want := range cases {
		m := New(newFakeSession(session.View{Phase: phase}))
		if !strings.Contains(m.View(), want) {
			t.Fatalf("%s: expected %q in view:\n%s", phase, want, m.View())
		}
	}
}

func TestKeysDriveSession(t *testing.T) {
	sess := newFakeSession(startedView("hollow", 2))
	m := New(sess)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if len(sess.skips) != 1 || sess.skips[0] != (matcher.Coord{Sentence: 1, Word: 2}) {
		t.Fatalf("unexpected skips %+v", sess.skips)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	if len(sess.listening) != 1 || sess.listening[0] {
		t.Fatalf("expected mic toggled off, got %v", sess.listening)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if sess.restarts != 1 {
		t.Fatalf("expected restart")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if !m.showDevices {
		t.Fatalf("expected devices panel")
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}

func TestSkipIgnoredOutsideSession(t *testing.T) {
	sess := newFakeSession(session.View{Phase: session.Complete})
	m := New(sess)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if len(sess.skips) != 0 {
		t.Fatalf("expected no skips, got %v", sess.skips)
	}
}

func TestMicToggleIgnoresPhase(t *testing.T) {
	for _, phase := range []session.Phase{session.NotStarted, session.Complete} {
		sess := newFakeSession(session.View{Phase: phase})
		m := New(sess)
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
		if len(sess.listening) != 1 || !sess.listening[0] {
			t.Fatalf("%s: expected mic toggled on, got %v", phase, sess.listening)
		}
	}
}

func TestTypingFeedsTypist(t *testing.T) {
	sess := newFakeSession(startedView("", 2))
	typist := &fakeTypist{}
	m := New(sess, WithTypist(typist))

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ms")})
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	if strings.Join(typist.typed, "|") != "ms| " {
		t.Fatalf("unexpected typed text %q", typist.typed)
	}
	if len(sess.skips) != 0 || len(sess.listening) != 0 {
		t.Fatalf("letters should not trigger controls while typing")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(sess.skips) != 1 || len(sess.listening) != 1 {
		t.Fatalf("expected ctrl chords to drive the session")
	}
}

func TestFocusAndBlurForwarded(t *testing.T) {
	sess := newFakeSession(startedView("", 2))
	m := New(sess)
	m.Update(tea.BlurMsg{})
	m.Update(tea.FocusMsg{})
	if sess.blurs != 1 || sess.focuses != 1 {
		t.Fatalf("expected blur and focus, got %d/%d", sess.blurs, sess.focuses)
	}
}

func TestWaitForChange(t *testing.T) {
	sess := newFakeSession(startedView("", 2))
	m := New(sess)
	sess.changes <- struct{}{}
	if _, ok := m.waitForChange()().(changedMsg); !ok {
		t.Fatalf("expected change message")
	}
	close(sess.changes)
	if msg := m.waitForChange()(); msg != nil {
		t.Fatalf("expected nil after close, got %v", msg)
	}
}

func TestRenderFooter(t *testing.T) {
	battery := 0.5
	m := New(newFakeSession(startedView("", 2)), WithDevices(fakeDevices{{Name: "Wand", Battery: &battery, Vibrators: 1}}))
	out := m.renderFooter()
	for _, want := range []string{"Progress 20%", "Sentence 1/2", "4 words left", "listening", "1 devices"} {
		if !strings.Contains(out, want) {
			t.Fatalf("footer missing %q: %s", want, out)
		}
	}

	paused := startedView("", 2)
	paused.Blurred = true
	if !strings.Contains(New(newFakeSession(paused)).renderFooter(), "paused") {
		t.Fatalf("expected paused footer")
	}
}

func TestRenderBar(t *testing.T) {
	out := renderBar(50, 4)
	if strings.Count(out, "██") != 2 || strings.Count(out, "░░") != 2 {
		t.Fatalf("unexpected bar:\n%s", out)
	}
	if !strings.Contains(out, " 50") {
		t.Fatalf("expected level label:\n%s", out)
	}
	if strings.Count(renderBar(100, 1), "██") != 3 {
		t.Fatalf("expected minimum bar height of 3")
	}
}

func TestDeviceLine(t *testing.T) {
	battery := 0.8
	got := DeviceLine(actuator.Device{Name: "Wand", Battery: &battery, Vibrators: 2, Rotators: 1})
	if got != "Wand  battery 80%  2 vibration, 1 rotation" {
		t.Fatalf("unexpected device line %q", got)
	}
	if got := DeviceLine(actuator.Device{Name: "Bare"}); got != "Bare  battery -  no features" {
		t.Fatalf("unexpected bare device line %q", got)
	}
}

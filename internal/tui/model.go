// Package tui provides the Bubble Tea teleprompter.
package tui

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/recite/internal/actuator"
	"github.com/verte-zerg/recite/internal/engagement"
	"github.com/verte-zerg/recite/internal/matcher"
	"github.com/verte-zerg/recite/internal/session"
)

// Hint timers, measured from the moment the current word first failed to
// match.
const (
	spinnerDelay    = 200 * time.Millisecond
	unmatchedDelay  = time.Second
	hintDelay       = 5 * time.Second
	skipOfferDelay  = 15 * time.Second
	transitionDelay = time.Second
	frameInterval   = 100 * time.Millisecond
)

const (
	introText   = "Say the following words aloud:"
	hintMessage = "(try repeating the whole sentence slowly and like you mean it)"
)

type hintStage int

const (
	hintNone hintStage = iota
	hintSpinner
	hintUnmatched
	hintText
	hintSkip
)

// Session is the practice session driven by the UI.
type Session interface {
	View() session.View
	Changes() <-chan struct{}
	Restart()
	SetListening(on bool)
	SkipWord(c matcher.Coord)
	Blur()
	Focus()
}

// Typist receives typed text for the keyboard recognizer.
type Typist interface {
	Type(text string) bool
}

// DeviceLister reports connected actuation devices.
type DeviceLister interface {
	Devices() []actuator.Device
}

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	previousStyle    = footerStyle
	barFillStyle     = currentWordStyle
	barEmptyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3A3A3A"))
	panelStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#6E6E6E")).Padding(0, 1)
)

type changedMsg struct{}

type frameMsg time.Time

// Option configures a Model.
type Option func(*Model)

// WithTypist routes typed text to t and moves the controls to ctrl chords.
func WithTypist(t Typist) Option {
	return func(m *Model) {
		m.typist = t
		m.keys = TypingKeys
	}
}

// WithDevices shows the devices reported by l.
func WithDevices(l DeviceLister) Option {
	return func(m *Model) { m.devices = l }
}

// WithHints toggles the hint text and skip offer.
func WithHints(on bool) Option {
	return func(m *Model) { m.hints = on }
}

// WithClock overrides the time source used by the hint timers.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// Model implements the Bubble Tea teleprompter.
type Model struct {
	sess    Session
	typist  Typist
	devices DeviceLister
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	hints   bool
	now     func() time.Time
	logger  *slog.Logger

	view        session.View
	width       int
	height      int
	showDevices bool

	sentence   int
	advancedAt time.Time
	missWord   matcher.Coord
	missAt     time.Time
}

// New constructs a teleprompter for sess.
func New(sess Session, opts ...Option) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = currentWordStyle
	m := &Model{
		sess:    sess,
		keys:    DefaultKeys,
		help:    help.New(),
		spinner: sp,
		hints:   true,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(m)
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), m.spinner.Tick, frame())
}

func (m *Model) waitForChange() tea.Cmd {
	ch := m.sess.Changes()
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.refresh()
		return m, m.waitForChange()
	case frameMsg:
		return m, frame()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.FocusMsg:
		m.sess.Focus()
		return m, nil
	case tea.BlurMsg:
		m.sess.Blur()
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Restart):
		m.sess.Restart()
	case key.Matches(msg, m.keys.Devices):
		m.showDevices = !m.showDevices
	case key.Matches(msg, m.keys.Mic):
		m.sess.SetListening(!m.view.Listening)
	case key.Matches(msg, m.keys.Skip):
		cur := m.view.Snapshot.Current
		if m.view.Phase == session.Started && cur.WordNumber > 0 {
			m.logger.Debug("skip requested", "sentence", cur.Sentence, "word", cur.WordNumber)
			m.sess.SkipWord(matcher.Coord{Sentence: cur.Sentence, Word: cur.WordNumber})
		}
	case m.typist != nil:
		switch msg.Type {
		case tea.KeyRunes:
			m.typist.Type(string(msg.Runes))
		case tea.KeySpace:
			m.typist.Type(" ")
		}
	}
	return nil
}

// refresh pulls the latest session view and updates the transition and hint
// timers.
func (m *Model) refresh() {
	v := m.sess.View()
	now := m.now()
	cur := v.Snapshot.Current

	if cur.Sentence != m.sentence && v.Snapshot.Previous != nil {
		m.advancedAt = now
	}
	m.sentence = cur.Sentence

	word := matcher.Coord{Sentence: cur.Sentence, Word: cur.WordNumber}
	switch {
	case v.Phase != session.Started || cur.Unmatched == "":
		m.missAt = time.Time{}
	case m.missAt.IsZero() || word != m.missWord:
		m.missAt = now
		m.missWord = word
	}
	m.view = v
}

func (m *Model) stage() hintStage {
	if m.missAt.IsZero() {
		return hintNone
	}
	elapsed := m.now().Sub(m.missAt)
	switch {
	case elapsed >= skipOfferDelay:
		return hintSkip
	case elapsed >= hintDelay:
		return hintText
	case elapsed >= unmatchedDelay:
		return hintUnmatched
	case elapsed >= spinnerDelay:
		return hintSpinner
	default:
		return hintNone
	}
}

func (m *Model) transitioning() bool {
	return !m.advancedAt.IsZero() && m.now().Sub(m.advancedAt) < transitionDelay
}

// View implements tea.Model.
func (m *Model) View() string {
	contentWidth := int(float64(m.width) * 0.70)
	if m.width == 0 {
		contentWidth = 0
	} else if contentWidth < 1 {
		contentWidth = 1
	}
	body := m.renderBody(contentWidth)
	if m.showDevices {
		body = lipgloss.JoinVertical(lipgloss.Center, body, "", m.renderDevices())
	}
	footer := m.renderFooter()
	helpLine := m.help.View(m.keys)
	if m.width == 0 || m.height == 0 {
		return strings.Join([]string{body, footer, helpLine}, "\n")
	}

	bodyHeight := m.height - 2
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	barHeight := bodyHeight - 2
	if barHeight > 12 {
		barHeight = 12
	}
	content := lipgloss.JoinHorizontal(lipgloss.Center, renderBar(m.view.Level, barHeight), "   ", body)
	placed := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	helpPlaced := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, helpLine)
	return placed + "\n" + footerLine + "\n" + helpPlaced
}

func (m *Model) renderBody(width int) string {
	switch m.view.Phase {
	case session.Unsupported:
		return incorrectStyle.Render("Speech recognition is unavailable. Check the recognizer settings.")
	case session.NotStarted:
		return pendingStyle.Render(fmt.Sprintf("Press %s to start.", m.keys.Restart.Help().Key))
	case session.Complete:
		return correctStyle.Render(fmt.Sprintf("Done. Press %s to practice again.", m.keys.Restart.Help().Key))
	}

	stage := m.stage()
	cur := m.view.Snapshot.Current
	var lines []string
	if cur.Sentence == 1 && cur.Matched == "" {
		lines = append(lines, pendingStyle.Render(introText), "")
	}
	if prev := m.view.Snapshot.Previous; prev != nil && m.transitioning() {
		lines = append(lines, wrapStyledRunes(buildStyledRunes([]span{{text: prev.Text(), style: previousStyle}}), width)...)
	}
	lines = append(lines, wrapStyledRunes(buildStyledRunes(lineSpans(cur, stage >= hintUnmatched)), width)...)
	lines = append(lines, "")

	switch {
	case stage == hintSpinner:
		lines = append(lines, m.spinner.View())
	case stage >= hintUnmatched:
		lines = append(lines, wrapStyledRunes(buildStyledRunes([]span{{text: cur.Unmatched, style: incorrectStyle}}), width)...)
	}
	if m.hints && stage >= hintText {
		lines = append(lines, footerStyle.Render(hintMessage))
	}
	if m.hints && stage >= hintSkip {
		lines = append(lines, currentWordStyle.Render(fmt.Sprintf("press %s to skip this word", m.keys.Skip.Help().Key)))
	}
	return lipgloss.JoinVertical(lipgloss.Center, lines...)
}

// lineSpans styles one sentence. The pending word turns red once the
// unmatched transcript is on screen.
func lineSpans(line matcher.LineState, showUnmatched bool) []span {
	pending := currentWordStyle
	if showUnmatched {
		pending = incorrectStyle
	}
	return []span{
		{text: line.Matched, style: correctStyle},
		{text: line.Pending, style: pending},
		{text: line.Remaining, style: pendingStyle},
	}
}

// renderBar draws the engagement level as a vertical gauge with the value
// underneath.
func renderBar(level float64, height int) string {
	if height < 3 {
		height = 3
	}
	filled := int(math.Round(level / engagement.Max * float64(height)))
	rows := make([]string, 0, height+1)
	for i := 0; i < height; i++ {
		if i >= height-filled {
			rows = append(rows, barFillStyle.Render("██"))
		} else {
			rows = append(rows, barEmptyStyle.Render("░░"))
		}
	}
	rows = append(rows, footerStyle.Render(fmt.Sprintf("%3.0f", level)))
	return lipgloss.JoinVertical(lipgloss.Center, rows...)
}

func (m *Model) renderFooter() string {
	snap := m.view.Snapshot
	segments := []string{}
	if snap.TotalWords > 0 {
		done := snap.TotalWords - snap.WordsRemaining
		segments = append(segments,
			fmt.Sprintf("Progress %d%%", done*100/snap.TotalWords),
			fmt.Sprintf("Sentence %d/%d", max(snap.Current.Sentence, 1), snap.TotalSentences),
			fmt.Sprintf("%d words left", snap.WordsRemaining),
		)
	}
	switch {
	case m.view.Phase == session.Unsupported:
		segments = append(segments, "no recognizer")
	case m.view.Blurred:
		segments = append(segments, "paused")
	case m.view.Listening:
		segments = append(segments, "listening")
	default:
		segments = append(segments, "mic off")
	}
	if m.devices != nil {
		segments = append(segments, fmt.Sprintf("%d devices", len(m.devices.Devices())))
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func (m *Model) renderDevices() string {
	var devices []actuator.Device
	if m.devices != nil {
		devices = m.devices.Devices()
	}
	if len(devices) == 0 {
		return panelStyle.Render("No devices connected.")
	}
	lines := make([]string, 0, len(devices))
	for _, d := range devices {
		lines = append(lines, DeviceLine(d))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// DeviceLine formats a device with its battery and feature counts.
func DeviceLine(d actuator.Device) string {
	battery := "-"
	if d.Battery != nil {
		battery = fmt.Sprintf("%.0f%%", *d.Battery*100)
	}
	var features []string
	if d.Vibrators > 0 {
		features = append(features, fmt.Sprintf("%d vibration", d.Vibrators))
	}
	if d.Linear > 0 {
		features = append(features, fmt.Sprintf("%d linear", d.Linear))
	}
	if d.Rotators > 0 {
		features = append(features, fmt.Sprintf("%d rotation", d.Rotators))
	}
	if len(features) == 0 {
		features = append(features, "no features")
	}
	return fmt.Sprintf("%s  battery %s  %s", d.Name, battery, strings.Join(features, ", "))
}

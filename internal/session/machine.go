package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/verte-zerg/recite/internal/engagement"
	"github.com/verte-zerg/recite/internal/matcher"
	"github.com/verte-zerg/recite/internal/model"
	"github.com/verte-zerg/recite/internal/observe"
	"github.com/verte-zerg/recite/internal/recognizer"
)

// View is a read-only copy of the session for rendering.
type View struct {
	Snapshot     Snapshot
	Phase        Phase
	Level        float64
	Listening    bool
	Blurred      bool
	PendingAbort bool
	Transcript   string
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records session metrics on met.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Machine) {
		m.metrics = met
	}
}

// WithTickInterval overrides the decay period.
func WithTickInterval(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.tick = d
		}
	}
}

// WithFoldCase makes word matching case-insensitive.
func WithFoldCase(fold bool) Option {
	return func(m *Machine) {
		m.matcher = matcher.New(matcher.WithFoldCase(fold))
	}
}

// WithContinuous selects continuous listening. It is on by default.
func WithContinuous(on bool) Option {
	return func(m *Machine) {
		m.continuous = on
	}
}

// WithPromptID sets the prompt id reported in practice records.
func WithPromptID(id string) Option {
	return func(m *Machine) {
		m.promptID = id
	}
}

// WithOnComplete registers fn to receive the record of every completed
// session. fn runs on the dispatching goroutine without the machine lock.
func WithOnComplete(fn func(model.PracticeRecord)) Option {
	return func(m *Machine) {
		m.onComplete = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// Machine serialises every session input through Reduce and executes the
// resulting effects on the recognition stream.
type Machine struct {
	mu         sync.Mutex
	state      State
	ctx        context.Context
	closed     bool
	startedAt  time.Time
	skipped    int
	peak       float64
	stream     recognizer.Stream
	level      *engagement.Level
	matcher    *matcher.Matcher
	logger     *slog.Logger
	metrics    *observe.Metrics
	tick       time.Duration
	continuous bool
	promptID   string
	onComplete func(model.PracticeRecord)
	now        func() time.Time

	events  chan Event
	changes chan struct{}
	done    chan struct{}
}

// New returns a Machine for prompt. A nil level gets a fresh one. The session
// is unsupported when the stream is.
func New(prompt string, stream recognizer.Stream, level *engagement.Level, opts ...Option) *Machine {
	if level == nil {
		level = engagement.NewLevel()
	}
	m := &Machine{
		ctx:        context.Background(),
		stream:     stream,
		level:      level,
		matcher:    matcher.New(),
		logger:     slog.New(slog.DiscardHandler),
		tick:       engagement.TickInterval,
		continuous: true,
		now:        time.Now,
		events:     make(chan Event, 64),
		changes:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.state = NewState(prompt, stream.Supported(), m.matcher)
	if m.state.Phase == Unsupported {
		m.logger.Warn("speech recognition unavailable, session disabled")
	}
	return m
}

// Level returns the shared engagement level written by the machine.
func (m *Machine) Level() *engagement.Level {
	return m.level
}

// Run dispatches posted events, stream updates and decay ticks until ctx is
// done. After Run returns further events are ignored.
func (m *Machine) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	ticker := time.NewTicker(m.tick)
	defer func() {
		ticker.Stop()
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	}()

	updates := m.stream.Updates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.Dispatch(ev)
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			m.Dispatch(eventFor(u))
		case <-ticker.C:
			m.Dispatch(Tick{})
		}
	}
}

func eventFor(u recognizer.Update) Event {
	switch u.Kind {
	case recognizer.ListeningChanged:
		return ListeningChanged{Listening: u.Listening}
	case recognizer.AbortCompleted:
		return AbortCompleted{}
	default:
		return TranscriptUpdated{Text: u.Transcript}
	}
}

// Restart starts over from the first sentence.
func (m *Machine) Restart() { m.post(Restarted{}) }

// Load replaces the prompt with text stored under id.
func (m *Machine) Load(text, id string) { m.post(PromptLoaded{Text: text, ID: id}) }

// SetListening switches the microphone on or off.
func (m *Machine) SetListening(on bool) { m.post(ListeningRequested{On: on}) }

// SkipWord treats the word at c as spoken.
func (m *Machine) SkipWord(c matcher.Coord) { m.post(SkipRequested{Coord: c}) }

// Blur pauses listening while the UI is in the background.
func (m *Machine) Blur() { m.post(WindowBlurred{}) }

// Focus resumes listening paused by Blur.
func (m *Machine) Focus() { m.post(WindowFocused{}) }

func (m *Machine) post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Changes signals after every dispatch that changed the view. Only the latest
// signal is kept.
func (m *Machine) Changes() <-chan struct{} {
	return m.changes
}

// View returns the current view.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	return View{
		Snapshot:     s.Snapshot,
		Phase:        s.Phase,
		Level:        s.Level,
		Listening:    s.Listening,
		Blurred:      s.Guard.Blurred(),
		PendingAbort: s.PendingAbort(),
		Transcript:   s.Transcript,
	}
}

// Dispatch reduces ev and executes its effects.
func (m *Machine) Dispatch(ev Event) {
	record, completed := m.dispatch(ev)
	if completed && m.onComplete != nil {
		m.onComplete(record)
	}
}

func (m *Machine) dispatch(ev Event) (model.PracticeRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.PracticeRecord{}, false
	}

	prev := m.state
	next, effects := Reduce(prev, ev)
	m.state = next

	completed := m.account(prev, next, ev, effects)
	for _, e := range effects {
		m.apply(e)
	}
	if prev.Level != next.Level {
		m.level.Set(next.Level)
		m.metrics.RecordLevel(m.ctx, next.Level)
	}
	if _, tick := ev.(Tick); !tick || prev.Level != next.Level {
		m.notify()
	}
	if !completed {
		return model.PracticeRecord{}, false
	}
	end := m.now()
	return model.PracticeRecord{
		PromptID:   m.promptID,
		StartedAt:  m.startedAt,
		EndedAt:    end,
		Sentences:  next.Snapshot.TotalSentences,
		Words:      next.Snapshot.TotalWords,
		Skipped:    m.skipped,
		PeakLevel:  m.peak,
		DurationMs: end.Sub(m.startedAt).Milliseconds(),
	}, true
}

// account updates session counters and metrics. It reports whether the
// session just completed.
func (m *Machine) account(prev, next State, ev Event, effects []Effect) bool {
	switch ev := ev.(type) {
	case PromptLoaded:
		m.promptID = ev.ID
		m.logger.Info("prompt loaded", "prompt", ev.ID, "sentences", len(next.Sentences))
		if next.Phase == Started {
			m.begin()
		}
	case Restarted:
		m.begin()
		m.logger.Info("session started", "sentences", len(next.Sentences), "words", next.Snapshot.TotalWords)
	case SkipRequested:
		if next.Phase == Started && !prev.Skips.Skipped(ev.Coord) {
			m.skipped++
			m.metrics.RecordWordSkipped(m.ctx)
			m.logger.Debug("word skipped", "sentence", ev.Coord.Sentence, "word", ev.Coord.Word)
		}
	}

	if next.Index == prev.Index && next.Snapshot.Current.MatchedWords > prev.Snapshot.Current.MatchedWords {
		m.metrics.RecordWordsMatched(m.ctx, next.Snapshot.Current.MatchedWords-prev.Snapshot.Current.MatchedWords)
	}
	if next.Level > m.peak {
		m.peak = next.Level
	}
	for _, e := range effects {
		if e == AbortListening {
			m.metrics.RecordSentenceCompleted(m.ctx)
			m.logger.Debug("sentence complete", "sentence", next.Index+1)
		}
	}
	if prev.Phase == Started && next.Phase == Complete {
		m.metrics.RecordSessionCompleted(m.ctx, m.promptID)
		m.logger.Info("session complete", "skipped", m.skipped, "duration", m.now().Sub(m.startedAt))
		return true
	}
	return false
}

func (m *Machine) begin() {
	m.startedAt = m.now()
	m.skipped = 0
	m.peak = 0
}

func (m *Machine) apply(e Effect) {
	var err error
	switch e {
	case StartListening:
		err = m.stream.Start(m.ctx, m.continuous)
	case StopListening:
		err = m.stream.Stop()
	case AbortListening:
		err = m.stream.Abort()
	case ResetTranscript:
		m.stream.Reset()
	}
	if err != nil {
		m.logger.Warn("recognizer effect failed", "effect", e.String(), "err", err)
	}
}

func (m *Machine) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// Package deepgram provides a recognizer.Stream backed by the Deepgram
// streaming WebSocket API. Microphone audio is streamed while listening and
// every final result is appended to the transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/verte-zerg/recite/internal/audio"
	"github.com/verte-zerg/recite/internal/recognizer"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
)

// Option is a functional option for configuring the Stream.
type Option func(*Stream)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(s *Stream) {
		if model != "" {
			s.model = model
		}
	}
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(s *Stream) {
		if language != "" {
			s.language = language
		}
	}
}

// WithEndpoint overrides the websocket endpoint.
func WithEndpoint(endpoint string) Option {
	return func(s *Stream) {
		s.endpoint = endpoint
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}

// Stream implements recognizer.Stream. Each Start opens a websocket session
// when none is active; Stop closes it after Deepgram flushes pending results
// and Abort drops it at once.
type Stream struct {
	apiKey   string
	model    string
	language string
	endpoint string
	source   audio.Source
	logger   *slog.Logger
	buf      *recognizer.Buffer

	mu   sync.Mutex
	sess *session
	// draining holds stopped sessions still delivering their last results.
	draining map[*session]struct{}
}

type session struct {
	cancel context.CancelFunc
	flush  chan struct{}
	once   sync.Once
	done   chan struct{}
}

func (s *session) finish() {
	s.once.Do(func() { close(s.flush) })
}

// New returns a Stream. It is unsupported when apiKey is empty or source is
// nil.
func New(apiKey string, source audio.Source, opts ...Option) *Stream {
	s := &Stream{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
		source:   source,
		logger:   slog.Default(),
		buf:      recognizer.NewBuffer(),
		draining: make(map[*session]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Supported implements recognizer.Stream.
func (s *Stream) Supported() bool {
	return s.apiKey != "" && s.source != nil
}

// Start implements recognizer.Stream.
func (s *Stream) Start(ctx context.Context, continuous bool) error {
	if !s.Supported() {
		return recognizer.ErrUnsupported
	}
	wsURL, err := s.buildURL()
	if err != nil {
		return fmt.Errorf("failed to build deepgram url: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.SetListening(true, continuous)
	if s.sess != nil {
		return nil
	}
	sctx, cancel := context.WithCancel(ctx)
	sess := &session{cancel: cancel, flush: make(chan struct{}), done: make(chan struct{})}
	s.sess = sess
	go s.run(sctx, sess, wsURL)
	return nil
}

// Stop implements recognizer.Stream. Results for audio already sent are still
// delivered.
func (s *Stream) Stop() error {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	if sess != nil {
		s.draining[sess] = struct{}{}
	}
	s.mu.Unlock()
	if sess == nil {
		s.buf.SetListening(false, false)
		return nil
	}
	sess.finish()
	return nil
}

// detach removes every live session, draining ones included.
func (s *Stream) detach() []*session {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := make([]*session, 0, len(s.draining)+1)
	if s.sess != nil {
		live = append(live, s.sess)
		s.sess = nil
	}
	for sess := range s.draining {
		live = append(live, sess)
	}
	return live
}

// Abort implements recognizer.Stream. AbortCompleted follows once every
// session, including ones still flushing after Stop, has shut down.
func (s *Stream) Abort() error {
	s.buf.BeginAbort()
	live := s.detach()
	if len(live) == 0 {
		s.buf.FinishAbort()
		return nil
	}
	for _, sess := range live {
		sess.cancel()
	}
	go func() {
		for _, sess := range live {
			<-sess.done
		}
		s.buf.FinishAbort()
	}()
	return nil
}

// Reset implements recognizer.Stream.
func (s *Stream) Reset() { s.buf.Reset() }

// Updates implements recognizer.Stream.
func (s *Stream) Updates() <-chan recognizer.Update { return s.buf.Updates() }

// Transcript returns the transcript since the last reset.
func (s *Stream) Transcript() string { return s.buf.Transcript() }

// Close drops any active session and stops update delivery.
func (s *Stream) Close() error {
	live := s.detach()
	for _, sess := range live {
		sess.cancel()
	}
	for _, sess := range live {
		<-sess.done
	}
	s.buf.Close()
	return nil
}

// buildURL constructs the Deepgram streaming endpoint URL.
func (s *Stream) buildURL() (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", s.model)
	q.Set("language", s.language)
	q.Set("punctuate", "false")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.SampleRate))
	q.Set("channels", strconv.Itoa(audio.Channels))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Stream) run(ctx context.Context, sess *session, wsURL string) {
	defer close(sess.done)
	defer s.release(sess)
	defer sess.cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		s.logger.Warn("deepgram dial failed", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	chunks, err := s.source.Capture(ctx)
	if err != nil {
		s.logger.Warn("audio capture failed", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "capture failed")
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, conn, chunks, sess.flush)
	}()
	s.readLoop(ctx, conn)
	sess.cancel()
	wg.Wait()
	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
}

// release stops listening when no newer session has started.
func (s *Stream) release(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.draining, sess)
	if s.sess == sess {
		s.sess = nil
	}
	if s.sess == nil {
		s.buf.SetListening(false, false)
	}
}

// writeLoop streams audio chunks to Deepgram until flush, when it asks the
// server to finish the stream.
func (s *Stream) writeLoop(ctx context.Context, conn *websocket.Conn, chunks <-chan []byte, flush <-chan struct{}) {
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
				return
			}
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-flush:
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop appends final results until the connection closes.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.logger.Warn("deepgram read failed", "err", err)
			}
			return
		}
		text, ok := parseFinal(msg)
		if !ok {
			continue
		}
		if !s.buf.AppendPhrase(text) {
			s.logger.Debug("dropped result while not listening", "text", text)
		}
	}
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseFinal returns the transcript of a final, non-empty Results message.
func parseFinal(data []byte) (string, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false
	}
	if resp.Type != "Results" || !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
		return "", false
	}
	text := resp.Channel.Alternatives[0].Transcript
	if text == "" {
		return "", false
	}
	return text, true
}

package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/verte-zerg/recite/internal/recognizer"
)

type fakeSource struct {
	chunks chan []byte
}

func (f fakeSource) Capture(context.Context) (<-chan []byte, error) {
	return f.chunks, nil
}

func serverURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, ch <-chan recognizer.Update) recognizer.Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatalf("updates closed")
		}
		return u
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for update")
	}
	return recognizer.Update{}
}

func result(text string, final bool) string {
	f := "false"
	if final {
		f = "true"
	}
	return `{"type":"Results","is_final":` + f + `,"channel":{"alternatives":[{"transcript":"` + text + `","confidence":0.9}]}}`
}

func TestStreamAppendsFinalResults(t *testing.T) {
	type request struct {
		auth  string
		query url.Values
	}
	requests := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- request{auth: r.Header.Get("Authorization"), query: r.URL.Query()}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()
		ctx := r.Context()
		if typ, _, err := conn.Read(ctx); err != nil || typ != websocket.MessageBinary {
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(result("hel", false)))
		_ = conn.Write(ctx, websocket.MessageText, []byte(result("hello there", true)))
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := fakeSource{chunks: make(chan []byte, 1)}
	src.chunks <- []byte{0, 0}
	s := New("secret", src, WithEndpoint(serverURL(srv)), WithModel("base"))
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, true); err != nil {
		t.Fatalf("start: %v", err)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.ListeningChanged || !u.Listening {
		t.Fatalf("expected listening, got %+v", u)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.TranscriptChanged || u.Transcript != "hello there" {
		t.Fatalf("expected final transcript only, got %+v", u)
	}

	req := <-requests
	if req.auth != "Token secret" {
		t.Fatalf("unexpected authorization %q", req.auth)
	}
	if req.query.Get("model") != "base" || req.query.Get("sample_rate") != "16000" || req.query.Get("encoding") != "linear16" {
		t.Fatalf("unexpected query %v", req.query)
	}

	if err := s.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.ListeningChanged || u.Listening {
		t.Fatalf("expected listening off, got %+v", u)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.AbortCompleted {
		t.Fatalf("expected abort completion, got %+v", u)
	}
}

func TestStreamStopFlushesPendingResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()
		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(msg), "CloseStream") {
				_ = conn.Write(ctx, websocket.MessageText, []byte(result("late words", true)))
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}))
	defer srv.Close()

	src := fakeSource{chunks: make(chan []byte, 1)}
	src.chunks <- []byte{1, 0}
	s := New("secret", src, WithEndpoint(serverURL(srv)))
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, true); err != nil {
		t.Fatalf("start: %v", err)
	}
	next(t, s.Updates())
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.TranscriptChanged || u.Transcript != "late words" {
		t.Fatalf("expected flushed transcript, got %+v", u)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.ListeningChanged || u.Listening {
		t.Fatalf("expected listening off after flush, got %+v", u)
	}
}

func TestStreamAbortDropsResultsOfStoppedSession(t *testing.T) {
	release := make(chan struct{})
	firstDone := make(chan struct{})
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first := conns.Add(1) == 1
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()
		if first {
			defer close(firstDone)
		}
		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if first && typ == websocket.MessageText && strings.Contains(string(msg), "CloseStream") {
				<-release
				_ = conn.Write(ctx, websocket.MessageText, []byte(result("late audio", true)))
				return
			}
		}
	}))
	defer srv.Close()
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	defer unblock()

	src := fakeSource{chunks: make(chan []byte, 1)}
	src.chunks <- []byte{1, 0}
	s := New("secret", src, WithEndpoint(serverURL(srv)))
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, true); err != nil {
		t.Fatalf("start: %v", err)
	}
	next(t, s.Updates())
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.ListeningChanged || u.Listening {
		t.Fatalf("expected listening off, got %+v", u)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.AbortCompleted {
		t.Fatalf("expected abort completion, got %+v", u)
	}
	s.Reset()
	if err := s.Start(ctx, true); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if u := next(t, s.Updates()); u.Kind != recognizer.ListeningChanged || !u.Listening {
		t.Fatalf("expected listening, got %+v", u)
	}

	unblock()
	select {
	case <-firstDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("first connection never finished")
	}
	time.Sleep(50 * time.Millisecond)
	if got := s.Transcript(); got != "" {
		t.Fatalf("stopped session leaked %q into the next transcript", got)
	}
}

func TestStreamUnsupported(t *testing.T) {
	src := fakeSource{chunks: make(chan []byte)}
	for _, s := range []*Stream{New("", src), New("key", nil)} {
		if s.Supported() {
			t.Fatalf("expected unsupported stream")
		}
		if err := s.Start(context.Background(), true); !errors.Is(err, recognizer.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		_ = s.Close()
	}
}

func TestParseFinal(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
		ok   bool
	}{
		{"final", result("hello", true), "hello", true},
		{"interim", result("hello", false), "", false},
		{"empty", result("", true), "", false},
		{"metadata", `{"type":"Metadata"}`, "", false},
		{"no alternatives", `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`, "", false},
		{"invalid", `not json`, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseFinal([]byte(tc.msg))
			if got != tc.want || ok != tc.ok {
				t.Fatalf("parseFinal = (%q, %v), want (%q, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

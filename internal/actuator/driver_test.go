package actuator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/verte-zerg/recite/internal/engagement"
)

type call struct {
	op        string
	intensity float64
}

type fakeChannel struct {
	mu    sync.Mutex
	calls []call
	err   error
	seen  chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{seen: make(chan struct{}, 16)}
}

func (f *fakeChannel) record(c call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	err := f.err
	f.mu.Unlock()
	f.seen <- struct{}{}
	return err
}

func (f *fakeChannel) Activate(_ context.Context, intensity float64, _ time.Duration) error {
	return f.record(call{op: "activate", intensity: intensity})
}

func (f *fakeChannel) Stop(context.Context) error {
	return f.record(call{op: "stop"})
}

func (f *fakeChannel) Devices() []Device { return nil }

func (f *fakeChannel) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func wait(t *testing.T, f *fakeChannel) {
	t.Helper()
	select {
	case <-f.seen:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for channel call")
	}
}

func TestDriverApply(t *testing.T) {
	ch := newFakeChannel()
	d := NewDriver(engagement.NewLevel(), ch)
	ctx := context.Background()

	d.Apply(ctx, 50)
	d.Apply(ctx, 0)
	d.Apply(ctx, 150)
	got := ch.Calls()
	want := []call{{"activate", 0.5}, {"stop", 0}, {"activate", 1}}
	if len(got) != len(want) {
		t.Fatalf("calls %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls %v, want %v", got, want)
		}
	}
}

func TestDriverSwallowsErrors(t *testing.T) {
	ch := newFakeChannel()
	ch.err = errors.New("device gone")
	d := NewDriver(engagement.NewLevel(), ch)
	d.Apply(context.Background(), 10)
	d.Apply(context.Background(), 0)
	if len(ch.Calls()) != 2 {
		t.Fatalf("expected both commands attempted")
	}
}

func TestDriverRunFollowsLevel(t *testing.T) {
	ch := newFakeChannel()
	level := engagement.NewLevel()
	d := NewDriver(level, ch, WithTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	level.Set(25)
	wait(t, ch)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	calls := ch.Calls()
	last := calls[len(calls)-1]
	if last.op != "stop" {
		t.Fatalf("expected devices stopped on exit, got %v", calls)
	}
	found := false
	for _, c := range calls {
		if c.op == "activate" && c.intensity == 0.25 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected activation at 0.25, got %v", calls)
	}
}

func TestNop(t *testing.T) {
	var ch Channel = Nop{}
	if err := ch.Activate(context.Background(), 1, time.Second); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := ch.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if ch.Devices() != nil {
		t.Fatalf("expected no devices")
	}
}

package engagement

import (
	"math"
	"testing"
)

func TestRaiseAsymptotic(t *testing.T) {
	got := Raise(0, 4, 5)
	if math.Abs(got-20) > 1e-9 {
		t.Fatalf("expected 20, got %f", got)
	}
	got = Raise(got, 3, 5)
	if math.Abs(got-40) > 1e-9 {
		t.Fatalf("expected 40, got %f", got)
	}
}

func TestRaiseNoProgressResets(t *testing.T) {
	if got := Raise(73, 5, 5); got != 0 {
		t.Fatalf("expected 0 when no progress, got %f", got)
	}
}

func TestRaiseToCompletion(t *testing.T) {
	if got := Raise(12, 0, 5); got != Max {
		t.Fatalf("expected %f when nothing remains, got %f", Max, got)
	}
}

func TestDecay(t *testing.T) {
	got := Decay(50, 10)
	if math.Abs(got-47) > 1e-9 {
		t.Fatalf("expected 47, got %f", got)
	}
	if got := Decay(1, 10); got != 0 {
		t.Fatalf("expected decay to floor at 0, got %f", got)
	}
	if got := Decay(30, 0); got != 30 {
		t.Fatalf("expected no decay for empty prompt, got %f", got)
	}
}

func TestLevelStaysBounded(t *testing.T) {
	level := 0.0
	total := 7
	for step := 0; step < 200; step++ {
		remaining := total - step%(total+1)
		if step%3 == 0 {
			level = Decay(level, total)
		} else {
			level = Raise(level, remaining, total)
		}
		if level < 0 || level > Max {
			t.Fatalf("level out of bounds at step %d: %f", step, level)
		}
	}
}

func TestLevelHandle(t *testing.T) {
	l := NewLevel()
	ch, cancel := l.Subscribe()
	l.Set(150)
	if got := l.Value(); got != Max {
		t.Fatalf("expected clamp to %f, got %f", Max, got)
	}
	if got := <-ch; got != Max {
		t.Fatalf("expected subscriber to see %f, got %f", Max, got)
	}
	l.Set(10)
	l.Set(20)
	if got := <-ch; got != 20 {
		t.Fatalf("expected latest value 20, got %f", got)
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after cancel")
	}
	cancel()
	l.Set(-5)
	if got := l.Value(); got != 0 {
		t.Fatalf("expected clamp to 0, got %f", got)
	}
}

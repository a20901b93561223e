//go:build !portaudio

package audio

import (
	"context"
	"errors"
	"testing"
)

func TestMicrophoneUnsupported(t *testing.T) {
	if Available() {
		t.Fatalf("expected capture to be unavailable without portaudio")
	}
	if _, err := NewMicrophone(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	var m Microphone
	if _, err := m.Capture(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

//go:build !portaudio

package audio

import "context"

// Available reports whether this build can capture audio.
func Available() bool { return false }

// Microphone is unavailable without the portaudio build tag.
type Microphone struct{}

// NewMicrophone returns ErrUnsupported.
func NewMicrophone() (*Microphone, error) {
	return nil, ErrUnsupported
}

// Capture returns ErrUnsupported.
func (m *Microphone) Capture(context.Context) (<-chan []byte, error) {
	return nil, ErrUnsupported
}

// Close does nothing.
func (m *Microphone) Close() error { return nil }

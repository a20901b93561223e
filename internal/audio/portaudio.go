//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Available reports whether this build can capture audio.
func Available() bool { return true }

// Microphone captures the default input device.
type Microphone struct {
	mu     sync.Mutex
	closed bool
}

// NewMicrophone initialises portaudio. Call Close to release it.
func NewMicrophone() (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &Microphone{}, nil
}

// Capture opens the default input stream and reads it until ctx is done.
func (m *Microphone) Capture(ctx context.Context) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("microphone closed")
	}

	buf := make([]int16, FramesPerBuffer*Channels)
	stream, err := portaudio.OpenDefaultStream(Channels, 0, SampleRate, FramesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer func() {
			_ = stream.Stop()
			_ = stream.Close()
		}()
		for ctx.Err() == nil {
			if err := stream.Read(); err != nil {
				// Overflow drops a buffer; keep reading.
				if err == portaudio.InputOverflowed {
					continue
				}
				return
			}
			select {
			case out <- EncodePCM16(buf):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close terminates portaudio.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return portaudio.Terminate()
}

// Package audio captures microphone audio as 16-bit little-endian PCM.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
)

const (
	// SampleRate is the capture rate in Hz.
	SampleRate = 16000
	// Channels is the number of captured channels (mono).
	Channels = 1
	// FramesPerBuffer is the number of frames per captured chunk.
	FramesPerBuffer = 1024
)

// ErrUnsupported is returned when the binary was built without microphone
// support.
var ErrUnsupported = errors.New("audio capture is not supported in this build")

// Source produces PCM chunks until ctx is done. The returned channel is closed
// when capture ends.
type Source interface {
	Capture(ctx context.Context) (<-chan []byte, error)
}

// EncodePCM16 encodes samples as little-endian 16-bit PCM.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

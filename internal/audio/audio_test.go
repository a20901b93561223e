package audio

import (
	"bytes"
	"testing"
)

func TestEncodePCM16(t *testing.T) {
	got := EncodePCM16([]int16{0, 1, -1, 0x1234})
	want := []byte{0x00, 0x00, 0x01, 0x00, 0xff, 0xff, 0x34, 0x12}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodePCM16 = %x, want %x", got, want)
	}
	if len(EncodePCM16(nil)) != 0 {
		t.Fatalf("expected empty output")
	}
}

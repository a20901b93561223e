package recognizer

import "context"

// Keyboard is a Stream fed by typed text. It stands in for a microphone when
// practising at the terminal; typing "*" matches any single character.
type Keyboard struct {
	buf *Buffer
}

// NewKeyboard returns a Keyboard stream.
func NewKeyboard() *Keyboard {
	return &Keyboard{buf: NewBuffer()}
}

// Supported implements Stream.
func (k *Keyboard) Supported() bool { return true }

// Start implements Stream.
func (k *Keyboard) Start(_ context.Context, continuous bool) error {
	k.buf.SetListening(true, continuous)
	return nil
}

// Stop implements Stream.
func (k *Keyboard) Stop() error {
	k.buf.SetListening(false, false)
	return nil
}

// Abort implements Stream.
func (k *Keyboard) Abort() error {
	k.buf.Abort()
	return nil
}

// Reset implements Stream.
func (k *Keyboard) Reset() { k.buf.Reset() }

// Updates implements Stream.
func (k *Keyboard) Updates() <-chan Update { return k.buf.Updates() }

// Type appends typed text. It reports false when the keyboard is not
// listening.
func (k *Keyboard) Type(text string) bool {
	return k.buf.Append(text)
}

// Transcript returns what has been typed since the last reset.
func (k *Keyboard) Transcript() string { return k.buf.Transcript() }

// Close releases the stream.
func (k *Keyboard) Close() error {
	k.buf.Close()
	return nil
}

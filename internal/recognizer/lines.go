package recognizer

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Lines is a Stream that treats each line read from r as a recognised
// phrase. A line is held until the stream is listening, so scripted input is
// never lost between sentences.
type Lines struct {
	r      io.Reader
	buf    *Buffer
	logger *slog.Logger
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLines returns a Lines stream reading from r.
func NewLines(r io.Reader, logger *slog.Logger) *Lines {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lines{r: r, buf: NewBuffer(), logger: logger, done: make(chan struct{})}
}

// Supported implements Stream.
func (l *Lines) Supported() bool { return l.r != nil }

// Start implements Stream. The first call starts reading.
func (l *Lines) Start(ctx context.Context, continuous bool) error {
	if l.r == nil {
		return ErrUnsupported
	}
	l.buf.SetListening(true, continuous)
	l.once.Do(func() {
		readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		l.cancel = cancel
		go l.read(readCtx)
	})
	return nil
}

func (l *Lines) read(ctx context.Context) {
	defer close(l.done)
	scanner := bufio.NewScanner(l.r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// An append that races with an abort is retried once listening
		// resumes.
		for !l.buf.AppendPhrase(line) {
			if err := l.buf.AwaitListening(ctx); err != nil {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		l.logger.Warn("transcript input failed", "err", err)
	}
}

// Stop implements Stream.
func (l *Lines) Stop() error {
	l.buf.SetListening(false, false)
	return nil
}

// Abort implements Stream.
func (l *Lines) Abort() error {
	l.buf.Abort()
	return nil
}

// Reset implements Stream.
func (l *Lines) Reset() { l.buf.Reset() }

// Updates implements Stream.
func (l *Lines) Updates() <-chan Update { return l.buf.Updates() }

// Done is closed when the input is exhausted.
func (l *Lines) Done() <-chan struct{} { return l.done }

// Close stops reading and releases the stream.
func (l *Lines) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	l.buf.Close()
	return nil
}

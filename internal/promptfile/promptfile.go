// Package promptfile loads the practice prompt from a text file and reloads it
// when the file changes.
package promptfile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Read returns the prompt text from r with line endings normalised and
// surrounding whitespace trimmed.
func Read(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}

// Load reads the prompt at path. "-" reads standard input.
func Load(path string) (string, error) {
	if path == "-" {
		return Read(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open prompt file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close.
			_ = cerr
		}
	}()
	return Read(f)
}

// Watch calls onChange with the new text every time the file at path is
// written or replaced with different, non-empty content. It returns when ctx
// is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(string)) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace the file, so the directory is watched.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch dir %q: %w", dir, err)
	}
	target := filepath.Clean(path)
	last, _ := Load(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			text, err := Load(path)
			if err != nil {
				logger.Warn("prompt reload failed", "path", path, "err", err)
				continue
			}
			if text == "" || text == last {
				continue
			}
			last = text
			logger.Info("prompt reloaded", "path", path)
			onChange(text)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("failed to watch prompt file: %w", err)
		}
	}
}

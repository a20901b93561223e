package promptfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadNormalizes(t *testing.T) {
	got, err := Read(strings.NewReader("  Hello there.\r\nHow are you.\r\n\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "Hello there.\nHow are you." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWatchReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	if err := os.WriteFile(path, []byte("First text."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan string, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Watch(ctx, path, nil, func(text string) { changes <- text })
	}()

	// The watcher may not be registered yet; keep rewriting until it reports.
	deadline := time.After(3 * time.Second)
	for i := 0; ; i++ {
		if err := os.WriteFile(path, []byte(fmt.Sprintf("Second text %d.", i)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case got := <-changes:
			if !strings.HasPrefix(got, "Second text ") {
				t.Fatalf("unexpected reload %q", got)
			}
			cancel()
			if err := <-errCh; err != nil {
				t.Fatalf("watch: %v", err)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no change reported")
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/verte-zerg/recite/internal/actuator"
	"github.com/verte-zerg/recite/internal/actuator/buttplug"
	"github.com/verte-zerg/recite/internal/audio"
	"github.com/verte-zerg/recite/internal/config"
	"github.com/verte-zerg/recite/internal/observe"
	"github.com/verte-zerg/recite/internal/recognizer"
	"github.com/verte-zerg/recite/internal/recognizer/deepgram"
	"github.com/verte-zerg/recite/internal/session"
	"github.com/verte-zerg/recite/internal/stats"
)

const deepgramKeyEnv = "DEEPGRAM_API_KEY"

// inputDrainTimeout bounds how long headless mode waits for the last phrases
// after stdin is exhausted.
const inputDrainTimeout = time.Second

// recognizerSet is the stream chosen for a session plus the handles the
// front end needs.
type recognizerSet struct {
	stream   recognizer.Stream
	keyboard *recognizer.Keyboard
	done     <-chan struct{}
	close    func()
}

func deepgramKey(fileCfg config.FileConfig) string {
	if fileCfg.Deepgram.APIKey != nil && *fileCfg.Deepgram.APIKey != "" {
		return *fileCfg.Deepgram.APIKey
	}
	return os.Getenv(deepgramKeyEnv)
}

// resolveRecognizer turns auto into a concrete recognizer: Deepgram when a
// key and audio capture are available, otherwise stdin lines when headless and
// the keyboard in the TUI.
func resolveRecognizer(kind string, headless bool, apiKey string) string {
	if kind != recognizerAuto {
		if headless && kind == recognizerKeyboard {
			return recognizerLines
		}
		return kind
	}
	if apiKey != "" && audio.Available() {
		return recognizerDeepgram
	}
	if headless {
		return recognizerLines
	}
	return recognizerKeyboard
}

func buildRecognizer(kind string, fileCfg config.FileConfig, logger *slog.Logger) (recognizerSet, error) {
	switch kind {
	case recognizerKeyboard:
		k := recognizer.NewKeyboard()
		return recognizerSet{stream: k, keyboard: k, close: func() { _ = k.Close() }}, nil
	case recognizerLines:
		l := recognizer.NewLines(os.Stdin, logger)
		return recognizerSet{stream: l, done: l.Done(), close: func() { _ = l.Close() }}, nil
	case recognizerDeepgram:
		var source audio.Source
		mic, err := audio.NewMicrophone()
		if err != nil {
			logger.Warn("microphone unavailable", "err", err)
		} else {
			source = mic
		}
		opts := []deepgram.Option{deepgram.WithLogger(logger)}
		if fileCfg.Deepgram.Model != nil {
			opts = append(opts, deepgram.WithModel(*fileCfg.Deepgram.Model))
		}
		if fileCfg.Deepgram.Language != nil {
			opts = append(opts, deepgram.WithLanguage(*fileCfg.Deepgram.Language))
		}
		stream := deepgram.New(deepgramKey(fileCfg), source, opts...)
		return recognizerSet{stream: stream, close: func() {
			_ = stream.Close()
			if mic != nil {
				if cerr := mic.Close(); cerr != nil {
					// Best-effort release of the audio device.
					_ = cerr
				}
			}
		}}, nil
	default:
		return recognizerSet{}, fmt.Errorf("unknown recognizer %q", kind)
	}
}

// buildActuator connects the configured actuation channel. A connection
// failure degrades to no actuation.
func buildActuator(ctx context.Context, kind, url string, logger *slog.Logger) (actuator.Channel, func()) {
	if kind != actuatorButtplug {
		return actuator.Nop{}, func() {}
	}
	if url == "" {
		url = buttplug.DefaultURL
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := buttplug.Dial(dialCtx, url, buttplug.WithClientName("recite"), buttplug.WithLogger(logger))
	if err != nil {
		logger.Warn("actuator unavailable, continuing without devices", "url", url, "err", err)
		return actuator.Nop{}, func() {}
	}
	if err := client.StartScanning(ctx); err != nil {
		logger.Warn("device scan failed", "err", err)
	}
	logger.Info("actuator connected", "server", client.ServerName(), "devices", len(client.Devices()))
	return client, func() {
		if cerr := client.Close(); cerr != nil {
			logger.Debug("actuator close failed", "err", cerr)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, provider *observe.Provider, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.Handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// progressView is the subset of a session used by headless mode.
type progressView interface {
	View() session.View
	Changes() <-chan struct{}
	Restart()
}

// runHeadless starts the session and prints progress to w until the prompt
// is complete, the input is exhausted or ctx is done.
func runHeadless(ctx context.Context, w io.Writer, sess progressView, inputDone <-chan struct{}) error {
	sess.Restart()
	var drain <-chan time.Time
	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-inputDone:
			inputDone = nil
			drain = time.After(inputDrainTimeout)
		case <-drain:
			v := sess.View()
			_, err := fmt.Fprintf(w, "input ended with %d of %d words left\n", v.Snapshot.WordsRemaining, v.Snapshot.TotalWords)
			return err
		case <-sess.Changes():
			v := sess.View()
			line := progressLine(v)
			if line == last {
				continue
			}
			last = line
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
			if v.Phase == session.Complete || v.Phase == session.Unsupported {
				return nil
			}
		}
	}
}

func progressLine(v session.View) string {
	snap := v.Snapshot
	switch v.Phase {
	case session.Unsupported:
		return "speech recognition is unavailable"
	case session.Complete:
		return fmt.Sprintf("complete: %d sentences, %d words", snap.TotalSentences, snap.TotalWords)
	case session.NotStarted:
		return "waiting to start"
	}
	cur := snap.Current
	line := fmt.Sprintf("[%d/%d] %s | %s", cur.Sentence, snap.TotalSentences,
		strings.TrimSpace(cur.Matched), strings.TrimSpace(cur.Pending+cur.Remaining))
	if cur.Unmatched != "" {
		line += fmt.Sprintf(" (heard %q)", strings.TrimSpace(cur.Unmatched))
	}
	return fmt.Sprintf("%s  %d/%d words", line, snap.TotalWords-snap.WordsRemaining, snap.TotalWords)
}

// printRecord reports a finished session in headless mode.
func printRecord(w io.Writer, words, skipped int, durationMs int64) error {
	wpm, skipRate := stats.PracticeMetrics(words, skipped, durationMs)
	_, err := fmt.Fprintf(w, "%.1f words per minute, %.0f%% skipped, %s\n", wpm, skipRate*100, time.Duration(durationMs)*time.Millisecond)
	return err
}

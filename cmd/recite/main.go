// Package main provides the CLI entrypoint for recite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/verte-zerg/recite/internal/actuator"
	"github.com/verte-zerg/recite/internal/config"
	"github.com/verte-zerg/recite/internal/engagement"
	"github.com/verte-zerg/recite/internal/model"
	"github.com/verte-zerg/recite/internal/observe"
	"github.com/verte-zerg/recite/internal/promptfile"
	"github.com/verte-zerg/recite/internal/session"
	"github.com/verte-zerg/recite/internal/store"
	"github.com/verte-zerg/recite/internal/tui"
)

const version = "0.1.0"

const (
	recognizerAuto     = "auto"
	recognizerKeyboard = "keyboard"
	recognizerLines    = "lines"
	recognizerDeepgram = "deepgram"

	actuatorNone     = "none"
	actuatorButtplug = "buttplug"

	defaultLogLevel = "info"
)

// defaultPrompt is used when no prompt is selected or the selected one is
// missing from the store.
const defaultPrompt = `I will speak clearly.
I will take my time.
I will finish every sentence.`

var (
	practicePrompt      string
	practiceFile        string
	practiceWatch       bool
	practiceRecognizer  string
	practiceActuator    string
	practiceActuatorURL string
	practiceFoldCase    bool
	practiceHints       bool
	practiceHeadless    bool
	practiceMetricsAddr string
	practiceLogLevel    string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "recite",
		Short:         "Speech-driven prompt recitation trainer",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.Flags().StringVar(&practicePrompt, "prompt", "", "stored prompt id to practice")
	rootCmd.Flags().StringVar(&practiceFile, "file", "", "read the prompt from a file ('-' for stdin)")
	rootCmd.Flags().BoolVar(&practiceWatch, "watch", false, "reload the prompt when --file changes")
	rootCmd.Flags().StringVar(&practiceRecognizer, "recognizer", recognizerAuto, "recognizer: auto, keyboard, lines or deepgram")
	rootCmd.Flags().StringVar(&practiceActuator, "actuator", actuatorNone, "actuator: none or buttplug")
	rootCmd.Flags().StringVar(&practiceActuatorURL, "actuator-url", "", "actuator server websocket URL")
	rootCmd.Flags().BoolVar(&practiceFoldCase, "fold-case", false, "match words case-insensitively")
	rootCmd.Flags().BoolVar(&practiceHints, "hints", true, "show hints after repeated misses")
	rootCmd.Flags().BoolVar(&practiceHeadless, "headless", false, "run without the TUI, reading phrases from stdin")
	rootCmd.Flags().StringVar(&practiceMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.Flags().StringVar(&practiceLogLevel, "log-level", defaultLogLevel, "log level: debug, info, warn or error")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newPromptCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newHistoryCmd())

	return rootCmd
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "prompt", &practicePrompt, fileCfg.Practice.Prompt)
	applyStringConfig(cmd, "file", &practiceFile, fileCfg.Practice.File)
	applyBoolConfig(cmd, "watch", &practiceWatch, fileCfg.Practice.Watch)
	applyStringConfig(cmd, "recognizer", &practiceRecognizer, fileCfg.Practice.Recognizer)
	applyBoolConfig(cmd, "fold-case", &practiceFoldCase, fileCfg.Practice.FoldCase)
	applyBoolConfig(cmd, "hints", &practiceHints, fileCfg.Practice.Hints)
	applyStringConfig(cmd, "actuator", &practiceActuator, fileCfg.Actuator.Kind)
	applyStringConfig(cmd, "actuator-url", &practiceActuatorURL, fileCfg.Actuator.URL)
	applyStringConfig(cmd, "metrics-addr", &practiceMetricsAddr, fileCfg.Metrics.Addr)
	applyStringConfig(cmd, "log-level", &practiceLogLevel, fileCfg.Log.Level)

	cfg := model.Config{
		PromptID:   practicePrompt,
		File:       practiceFile,
		Watch:      practiceWatch,
		Recognizer: practiceRecognizer,
		FoldCase:   practiceFoldCase,
		Hints:      practiceHints,
	}
	if err := validateConfig(cfg, practiceActuator); err != nil {
		return err
	}

	headless := practiceHeadless || !term.IsTerminal(int(os.Stdout.Fd()))
	if headless && cfg.File == "-" {
		return fmt.Errorf("--file - cannot be combined with headless mode, which reads phrases from stdin")
	}

	logOut := io.Writer(os.Stderr)
	if !headless {
		logFile, err := openLogFile(fileCfg.Log.File)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := logFile.Close(); cerr != nil {
				// Best-effort close of the log file.
				_ = cerr
			}
		}()
		logOut = logFile
	}
	logger := newLogger(practiceLogLevel, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	prompt, err := resolvePrompt(ctx, st, cfg, logger)
	if err != nil {
		return err
	}

	var metrics *observe.Metrics
	var provider *observe.Provider
	if practiceMetricsAddr != "" {
		provider, err = observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "recite", ServiceVersion: version})
		if err != nil {
			return fmt.Errorf("failed to init metrics: %w", err)
		}
		defer func() {
			if serr := provider.Shutdown(context.Background()); serr != nil {
				logger.Warn("metrics shutdown failed", "err", serr)
			}
		}()
		metrics = provider.Metrics
	}

	kind := resolveRecognizer(cfg.Recognizer, headless, deepgramKey(fileCfg))
	rec, err := buildRecognizer(kind, fileCfg, logger)
	if err != nil {
		return err
	}
	defer rec.close()

	channel, closeChannel := buildActuator(ctx, practiceActuator, practiceActuatorURL, logger)
	defer closeChannel()

	level := engagement.NewLevel()
	machine := session.New(prompt.Text, rec.stream, level,
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithFoldCase(cfg.FoldCase),
		session.WithPromptID(prompt.ID),
		session.WithOnComplete(func(pr model.PracticeRecord) {
			if _, err := st.InsertPractice(context.WithoutCancel(ctx), pr); err != nil {
				logger.Error("failed to save practice session", "err", err)
			}
			if headless {
				if err := printRecord(os.Stdout, pr.Words, pr.Skipped, pr.DurationMs); err != nil {
					logger.Warn("failed to print summary", "err", err)
				}
			}
		}),
	)
	driverOpts := []actuator.DriverOption{actuator.WithLogger(logger), actuator.WithMetrics(metrics)}
	if timeout, ok := actuatorTimeout(fileCfg, logger); ok {
		driverOpts = append(driverOpts, actuator.WithTimeout(timeout))
	}
	driver := actuator.NewDriver(level, channel, driverOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return machine.Run(gctx) })
	g.Go(func() error { return driver.Run(gctx) })
	if provider != nil {
		g.Go(func() error { return serveMetrics(gctx, practiceMetricsAddr, provider, logger) })
	}
	if cfg.Watch && cfg.File != "" && cfg.File != "-" {
		g.Go(func() error {
			return promptfile.Watch(gctx, cfg.File, logger, func(text string) {
				p, err := st.Save(gctx, text)
				if err != nil {
					logger.Error("failed to save reloaded prompt", "err", err)
					p = model.Prompt{ID: store.PromptID(text), Text: text}
				}
				machine.Load(p.Text, p.ID)
			})
		})
	}

	var runErr error
	if headless {
		runErr = runHeadless(gctx, os.Stdout, machine, rec.done)
	} else {
		runErr = runTUI(gctx, machine, rec, channel, cfg, logger)
	}
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return runErr
}

func runTUI(ctx context.Context, machine *session.Machine, rec recognizerSet, channel actuator.Channel, cfg model.Config, logger *slog.Logger) error {
	opts := []tui.Option{
		tui.WithHints(cfg.Hints),
		tui.WithDevices(channel),
		tui.WithLogger(logger),
	}
	if rec.keyboard != nil {
		opts = append(opts, tui.WithTypist(rec.keyboard))
	}
	program := tea.NewProgram(tui.New(machine, opts...),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func openLogFile(configured *string) (*os.File, error) {
	path := config.DefaultLogPath()
	if configured != nil && *configured != "" {
		path = *configured
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// resolvePrompt picks the prompt to practice: a file, a stored id, or the
// default prompt when neither is given or the id is unknown.
func resolvePrompt(ctx context.Context, st *store.Store, cfg model.Config, logger *slog.Logger) (model.Prompt, error) {
	if cfg.File != "" {
		text, err := promptfile.Load(cfg.File)
		if err != nil {
			return model.Prompt{}, err
		}
		if text == "" {
			return model.Prompt{}, fmt.Errorf("prompt file %s is empty", cfg.File)
		}
		return st.Save(ctx, text)
	}
	if cfg.PromptID != "" {
		p, err := st.Get(ctx, cfg.PromptID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.Prompt{}, err
		}
		logger.Warn("prompt not found, using the default prompt", "prompt", cfg.PromptID)
	}
	return model.Prompt{ID: store.PromptID(defaultPrompt), Text: defaultPrompt}, nil
}

func validateConfig(cfg model.Config, actuatorKind string) error {
	switch cfg.Recognizer {
	case recognizerAuto, recognizerKeyboard, recognizerLines, recognizerDeepgram:
	default:
		return fmt.Errorf("--recognizer must be one of auto, keyboard, lines, deepgram")
	}
	switch actuatorKind {
	case actuatorNone, actuatorButtplug:
	default:
		return fmt.Errorf("--actuator must be one of none, buttplug")
	}
	if cfg.Watch && (cfg.File == "" || cfg.File == "-") {
		return fmt.Errorf("--watch requires --file with a path")
	}
	if cfg.File != "" && cfg.PromptID != "" {
		return fmt.Errorf("--file and --prompt are mutually exclusive")
	}
	return nil
}

func actuatorTimeout(fileCfg config.FileConfig, logger *slog.Logger) (time.Duration, bool) {
	if fileCfg.Actuator.Timeout == nil {
		return 0, false
	}
	d, err := time.ParseDuration(*fileCfg.Actuator.Timeout)
	if err != nil || d <= 0 {
		logger.Warn("ignoring invalid actuator timeout", "value", *fileCfg.Actuator.Timeout)
		return 0, false
	}
	return d, true
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

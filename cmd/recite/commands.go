package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/recite/internal/actuator/buttplug"
	"github.com/verte-zerg/recite/internal/config"
	"github.com/verte-zerg/recite/internal/model"
	"github.com/verte-zerg/recite/internal/promptfile"
	"github.com/verte-zerg/recite/internal/stats"
	"github.com/verte-zerg/recite/internal/store"
	"github.com/verte-zerg/recite/internal/tui"
)

const (
	defaultHistoryWindow = 5
	defaultScanDuration  = 3 * time.Second
	pulseDuration        = 500 * time.Millisecond
)

var (
	historyPrompt string
	historySince  string
	historyLast   int
	historyWindow int

	devicesURL   string
	devicesScan  time.Duration
	devicesPulse bool
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# recite configuration
# Uncomment a value to enable it. CLI flags override config values.

[practice]
# prompt = ""             # Stored prompt id to practice
# file = ""               # Prompt file ('-' for stdin)
# watch = false           # Reload the prompt when the file changes
# recognizer = %q     # auto, keyboard, lines or deepgram
# fold-case = false       # Match words case-insensitively
# hints = true            # Show hints after repeated misses

[deepgram]
# api-key = ""            # Falls back to $%s
# model = "nova-3"
# language = "en"

[actuator]
# kind = %q           # none or buttplug
# url = %q
# timeout = "2s"          # Per-command timeout

[log]
# level = %q          # debug, info, warn or error
# file = ""               # TUI log file (default $XDG_STATE_HOME/recite/recite.log)

[metrics]
# addr = ""               # e.g. "127.0.0.1:9464" to serve /metrics
`,
		recognizerAuto,
		deepgramKeyEnv,
		actuatorNone,
		buttplug.DefaultURL,
		defaultLogLevel,
	)
}

func openStore() (*store.Store, func(), error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}, nil
}

func newPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Manage stored prompts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "save <file|->",
		Short: "Store a prompt and print its id",
		Args:  cobra.ExactArgs(1),
		RunE:  runPromptSaveCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored prompt",
		Args:  cobra.ExactArgs(1),
		RunE:  runPromptShowCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored prompts",
		Args:  cobra.NoArgs,
		RunE:  runPromptListCmd,
	})
	return cmd
}

func runPromptSaveCmd(cmd *cobra.Command, args []string) error {
	text, err := promptfile.Load(args[0])
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("prompt is empty")
	}
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	p, err := st.Save(cmd.Context(), text)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), p.ID); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func runPromptShowCmd(cmd *cobra.Command, args []string) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	p, err := st.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load prompt %s: %w", args[0], err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), p.Text); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func runPromptListCmd(cmd *cobra.Command, _ []string) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	prompts, err := st.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list prompts: %w", err)
	}
	return stats.RenderLibrary(cmd.OutOrStdout(), prompts)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show completed practice sessions",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyPrompt, "prompt", "", "prompt id filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&historyWindow, "window", defaultHistoryWindow, "moving average window for the trend")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	since, err := parseSince(historySince)
	if err != nil {
		return err
	}
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := stats.BuildReport(cmd.Context(), st, model.HistoryConfig{
		PromptID: historyPrompt,
		Since:    since,
		Last:     historyLast,
	})
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	return report.Render(cmd.OutOrStdout(), historyWindow)
}

func parseSince(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --since value: %w", err)
	}
	return &parsed, nil
}

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Scan and list actuator devices",
		Args:  cobra.NoArgs,
		RunE:  runDevicesCmd,
	}
	cmd.Flags().StringVar(&devicesURL, "url", "", "actuator server websocket URL")
	cmd.Flags().DurationVar(&devicesScan, "scan", defaultScanDuration, "how long to scan for devices")
	cmd.Flags().BoolVar(&devicesPulse, "pulse", false, "pulse every device once")
	return cmd
}

func runDevicesCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "url", &devicesURL, fileCfg.Actuator.URL)
	if devicesURL == "" {
		devicesURL = buttplug.DefaultURL
	}
	level := defaultLogLevel
	if fileCfg.Log.Level != nil {
		level = *fileCfg.Log.Level
	}
	logger := newLogger(level, os.Stderr)

	ctx := cmd.Context()
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := buttplug.Dial(dialCtx, devicesURL, buttplug.WithClientName("recite"), buttplug.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", devicesURL, err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			// Best-effort close of the actuator connection.
			_ = cerr
		}
	}()

	if devicesScan > 0 {
		if err := client.StartScanning(ctx); err != nil {
			logger.Warn("scan failed", "err", err)
		} else {
			select {
			case <-ctx.Done():
			case <-time.After(devicesScan):
			}
			if err := client.StopScanning(ctx); err != nil {
				logger.Warn("stop scanning failed", "err", err)
			}
		}
	}
	if err := client.ReadBatteries(ctx); err != nil {
		logger.Warn("battery read failed", "err", err)
	}

	out := cmd.OutOrStdout()
	devices := client.Devices()
	if _, err := fmt.Fprintf(out, "Server %s: %d devices\n", client.ServerName(), len(devices)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	for _, d := range devices {
		if _, err := fmt.Fprintln(out, tui.DeviceLine(d)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if devicesPulse && len(devices) > 0 {
		if err := client.Activate(ctx, 1, pulseDuration); err != nil {
			return fmt.Errorf("failed to pulse devices: %w", err)
		}
		time.Sleep(pulseDuration + 100*time.Millisecond)
	}
	return nil
}

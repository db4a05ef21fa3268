package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/notify"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/tui"
)

var (
	runOutput   string
	runFaults   string
	runInterval time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo app under crash capture",
	Long: `Run a demo app as the supervised main loop.

In a terminal the app is interactive: p panics in the main loop, g panics
in a background goroutine, e returns a recovered callback panic and q quits.
Without a terminal (or with --output plain) the faults listed in --faults
are triggered one per --interval and every event is printed as a line.`,
	RunE: runDemo,
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "",
		"output mode (tui, plain); detected when empty")
	runCmd.Flags().StringVar(&runFaults, "faults", "loop,go,error",
		"faults to trigger in plain mode (loop, go, error)")
	runCmd.Flags().DurationVar(&runInterval, "interval", time.Second,
		"delay between faults in plain mode")
	rootCmd.AddCommand(runCmd)
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	if err := ensureStorageRoot(cfg); err != nil {
		return err
	}

	detector := tui.NewDetector()
	if runOutput != "" {
		mode, ok := tui.ParseOutputMode(runOutput)
		if !ok {
			return fmt.Errorf("unknown output mode %q", runOutput)
		}
		detector.ForceMode(mode)
	}
	mode := detector.Detect()

	var actions []tui.Action
	if mode == tui.ModePlain {
		if actions, err = tui.ParseActions(runFaults); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := tui.NewBridge(0)
	var logOut io.Writer = cmd.ErrOrStderr()
	if mode == tui.ModeTUI {
		// The terminal belongs to bubbletea; logs go to the event pane.
		logOut = bridge
	}
	logger, closeLog, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}
	defer closeLog()

	var notifier notify.Notifier = bridge
	if cfg.Log.File != "" {
		// Keep a record of what the user was shown next to the dump log lines.
		notifier = notify.Multi{bridge, notify.NewLogNotifier(logger)}
	}

	svc, err := newService(cfg, logger, diagnostics.Deps{
		Notifier:     notifier,
		OnDump:       bridge.OnDump,
		OnTransition: bridge.OnTransition,
	})
	if err != nil {
		return err
	}
	svc.Init()

	out := cmd.OutOrStdout()
	var loop diagnostics.LoopFunc
	var plain *tui.PlainOutput
	if mode == tui.ModeTUI {
		session := tui.NewSession(svc, bridge, tui.SessionOptions{AltScreen: cfg.UI.AltScreen})
		loop = session.Loop
	} else {
		plain = tui.NewPlainOutput(out, useColor())
		loop = tui.NewScript(svc, bridge, plain, actions, runInterval).Loop
	}

	runErr := svc.Run(ctx, loop)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatcher.DrainTimeout+time.Second)
	defer cancel()
	shutdownErr := svc.Shutdown(shutdownCtx)
	if plain != nil {
		plain.Flush(bridge)
	}

	stats := svc.Stats()
	fmt.Fprintf(out, "faults %d, dumps written %d, dumps failed %d, restarts %d\n",
		stats.Faults, stats.DumpsWritten, stats.DumpsFailed, stats.Restarts)
	fmt.Fprintf(out, "dumps are in %s\n", svc.Writer().Dir())

	return errors.Join(runErr, shutdownErr)
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fsnotify/fsnotify"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/clip"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

var (
	dumpsJSON   bool
	showRender  bool
	showCopy    bool
	watchCount  int
	purgeYes    bool
	renderWidth = 100
)

var dumpsCmd = &cobra.Command{
	Use:   "dumps",
	Short: "Inspect crash dumps",
}

var dumpsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List crash dumps, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDumpsList,
}

var dumpsShowCmd = &cobra.Command{
	Use:   "show [query]",
	Short: "Print a crash dump",
	Long: `Print a crash dump. Without a query the newest dump is shown; otherwise
the dump whose name best matches the query (fuzzy) is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDumpsShow,
}

var dumpsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print new crash dumps as they are written",
	Args:  cobra.NoArgs,
	RunE:  runDumpsWatch,
}

var dumpsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the crash dump directory",
	Args:  cobra.NoArgs,
	RunE:  runDumpsPath,
}

var dumpsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all crash dumps",
	Args:  cobra.NoArgs,
	RunE:  runDumpsPurge,
}

func init() {
	dumpsListCmd.Flags().BoolVar(&dumpsJSON, "json", false, "output as JSON")
	dumpsShowCmd.Flags().BoolVar(&showRender, "render", false, "render with terminal styling")
	dumpsShowCmd.Flags().BoolVar(&showCopy, "copy", false, "copy the dump to the clipboard")
	dumpsWatchCmd.Flags().IntVar(&watchCount, "count", 0, "exit after this many dumps (0 watches forever)")
	dumpsPurgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "do not ask for confirmation")

	dumpsCmd.AddCommand(dumpsListCmd, dumpsShowCmd, dumpsWatchCmd, dumpsPathCmd, dumpsPurgeCmd)
	rootCmd.AddCommand(dumpsCmd)
}

func runDumpsList(cmd *cobra.Command, _ []string) error {
	writer, _, err := openWriter()
	if err != nil {
		return err
	}
	dumps, err := writer.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dumpsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if dumps == nil {
			dumps = []diagnostics.DumpInfo{}
		}
		return enc.Encode(dumps)
	}

	if len(dumps) == 0 {
		fmt.Fprintf(out, "No crash dumps in %s\n", writer.Dir())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tFAULT TIME\tWRITTEN")
	for _, d := range dumps {
		faultTime := "-"
		if at, ok := diagnostics.ParseDumpTime(d.Name, nil); ok {
			faultTime = at.Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, formatSize(d.Size), faultTime, d.ModTime.Format(time.DateTime))
	}
	return w.Flush()
}

func runDumpsShow(cmd *cobra.Command, args []string) error {
	writer, _, err := openWriter()
	if err != nil {
		return err
	}

	var name string
	var data []byte
	if len(args) == 0 {
		latest, text, err := writer.Latest()
		if err != nil {
			return err
		}
		name, data = latest.Name, text
	} else {
		if name, err = selectDump(writer, args[0]); err != nil {
			return err
		}
		if data, err = writer.Read(name); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	text := string(data)
	if showRender {
		rendered, err := renderDump(name, text)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	} else {
		fmt.Fprint(out, text)
	}

	if showCopy {
		res, err := clip.CopyDump(name, text)
		if err != nil {
			return fmt.Errorf("copying dump: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), res.Describe())
	}
	return nil
}

// selectDump resolves query to a dump name: an exact name, else the best
// fuzzy match.
func selectDump(writer *diagnostics.DumpWriter, query string) (string, error) {
	dumps, err := writer.List()
	if err != nil {
		return "", err
	}
	if len(dumps) == 0 {
		return "", diagnostics.ErrNoDumps
	}
	names := make([]string, len(dumps))
	for i, d := range dumps {
		if d.Name == query {
			return d.Name, nil
		}
		names[i] = d.Name
	}
	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return "", fmt.Errorf("no crash dump matches %q", query)
	}
	return matches[0].Str, nil
}

func renderDump(name, text string) (string, error) {
	style := glamour.WithAutoStyle()
	if !useColor() {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(renderWidth))
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	md := fmt.Sprintf("# %s\n\n```\n%s\n```\n", name, text)
	return r.Render(md)
}

func runDumpsWatch(cmd *cobra.Command, _ []string) error {
	writer, cfg, err := openWriter()
	if err != nil {
		return err
	}
	if err := ensureStorageRoot(cfg); err != nil {
		return err
	}
	dir := writer.Dir()
	if !writer.Storage().PathExists(dir) {
		if err := writer.Storage().Mkdir(dir); err != nil {
			return fmt.Errorf("crash directory %s does not exist and cannot be created: %w", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", dir)
	return watchDumps(ctx, dir, cmd.OutOrStdout(), watchCount)
}

// watchDumps prints the name of every dump that appears in dir until ctx is
// done or limit dumps were seen.
func watchDumps(ctx context.Context, dir string, out io.Writer, limit int) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic writes land by rename, which shows up as Create.
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !diagnostics.IsDumpName(name) {
				continue
			}
			fmt.Fprintln(out, name)
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
}

func runDumpsPath(cmd *cobra.Command, _ []string) error {
	writer, _, err := openWriter()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), writer.Dir())
	return nil
}

func runDumpsPurge(cmd *cobra.Command, _ []string) error {
	if !purgeYes {
		return errors.New("refusing to delete dumps without --yes")
	}
	writer, _, err := openWriter()
	if err != nil {
		return err
	}
	n, err := writer.Purge()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d crash dumps from %s\n", n, writer.Dir())
	return nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

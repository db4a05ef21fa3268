package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/config"
	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that crash dumps can be written",
	Long:  "Validate the configuration and check storage availability, crash directory writability and free disk space.",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	writer, _, err := openWriter()
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Validating configuration...")
			for _, verr := range verrs {
				fmt.Fprintf(out, "  ✗ %s\n", verr.Error())
			}
		}
		return err
	}

	report := writer.CheckHealth()
	if doctorJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printHealth(cmd.OutOrStdout(), report)
	}

	if !report.Healthy() {
		return errors.New("crash dumps cannot be written")
	}
	return nil
}

func printHealth(out io.Writer, r diagnostics.HealthReport) {
	check := func(ok bool, label string) {
		icon := "✓"
		if !ok {
			icon = "✗"
		}
		fmt.Fprintf(out, "  %s %s\n", icon, label)
	}

	fmt.Fprintln(out, "Checking crash dump storage...")
	fmt.Fprintln(out)
	check(true, "configuration valid")
	check(r.Available, "storage available: "+r.Root)
	if r.DirExists {
		check(r.Writable, "crash directory writable: "+r.Dir)
	} else {
		fmt.Fprintf(out, "  ○ crash directory will be created: %s\n", r.Dir)
	}
	fmt.Fprintf(out, "  • %d dumps stored\n", r.DumpCount)
	if r.DiskFreeMB > 0 {
		fmt.Fprintf(out, "  • %.0f MB free (%.1f%% used)\n", r.DiskFreeMB, r.DiskPercent)
	}
	if r.CPUModel != "" {
		fmt.Fprintf(out, "  • cpu: %s, load %.2f\n", r.CPUModel, r.LoadAvg1)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(out)
		for _, w := range r.Warnings {
			fmt.Fprintf(out, "  ⚠ [%s] %s\n", w.Level, w.Message)
		}
	}

	fmt.Fprintln(out)
	if r.Healthy() {
		fmt.Fprintln(out, "Crash capture is ready")
	} else {
		fmt.Fprintln(out, "Crash dumps cannot be written")
	}
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

var envFormat string

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the environment recorded with crash dumps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		snap := diagnostics.NewEnvironmentCollector(appInfo()).Capture()
		return printEnvironment(cmd.OutOrStdout(), snap, envFormat)
	},
}

func init() {
	envCmd.Flags().StringVarP(&envFormat, "format", "f", "text", "output format (text, yaml, json)")
	rootCmd.AddCommand(envCmd)
}

func printEnvironment(out io.Writer, env diagnostics.EnvironmentSnapshot, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()

	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(env)

	case "text", "":
		fmt.Fprintf(out, "App Version: %s_%s\n", env.AppVersionName, env.AppVersionCode)
		fmt.Fprintf(out, "OS Version: %s_%s\n", env.OSVersion, env.OSAPILevel)
		fmt.Fprintf(out, "Device Vendor: %s\n", env.DeviceVendor)
		fmt.Fprintf(out, "Device Model: %s\n", env.DeviceModel)
		fmt.Fprintf(out, "Device CPU ARCH 32 : %s\n", strings.Join(env.Supported32BitABIs, " "))
		fmt.Fprintf(out, "Device CPU ARCH 64 : %s\n", strings.Join(env.Supported64BitABIs, " "))
		fmt.Fprintf(out, "Go Runtime: %s goroutines=%d heap=%.1fMB\n",
			env.GoVersion, env.Goroutines, env.HeapAllocMB)
		if env.MemTotalMB > 0 {
			fmt.Fprintf(out, "Memory: %.0fMB\n", env.MemTotalMB)
		}
		for _, f := range env.Failures {
			fmt.Fprintf(out, "Metadata Lookup Failed: %s\n", f)
		}
		return nil

	default:
		return fmt.Errorf("unknown format %q (want text, yaml or json)", format)
	}
}

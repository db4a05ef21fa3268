package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "crashcapture",
	Short: "Keep an interactive Go program alive across panics and keep crash dumps",
	Long: `crashcapture supervises a program's main loop, turns every uncaught panic
into a crash dump on local storage and restarts the loop.

Use 'crashcapture run' to try it with the demo app, and the 'dumps'
commands to inspect what was captured.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// SetVersion injects build information.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "",
		"config file (default: .crashcapture.yaml, then ~/.config/crashcapture/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	flags.BoolVar(&noColor, "no-color", false,
		"disable colored output")
	flags.String("storage-root", "",
		"storage root; dumps go to <root>/<dir_name> (default: user cache directory)")
	flags.Bool("debug", false,
		"show raw fault messages instead of the generic notification")
	flags.String("locale", "",
		"notification language (default: from LANG)")

	bindFlags()
}

// bindFlags binds persistent flags to the global viper instance.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	// Errors are nil when the flag exists.
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("capture.storage_root", flags.Lookup("storage-root"))
	_ = viper.BindPFlag("capture.debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("notify.locale", flags.Lookup("locale"))
}

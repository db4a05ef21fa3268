package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// setupTest isolates config lookup and storage, and resets command state
// left behind by earlier tests. It returns the storage root.
func setupTest(t *testing.T) string {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	root := filepath.Join(t.TempDir(), "storage")
	t.Setenv("CRASHCAPTURE_CAPTURE_STORAGE_ROOT", root)
	t.Setenv("CRASHCAPTURE_CAPTURE_FATAL_OUTPUT", "false")
	t.Setenv("CRASHCAPTURE_LOG_LEVEL", "error")
	t.Setenv("CRASHCAPTURE_LOG_FORMAT", "text")
	t.Setenv("NO_COLOR", "1")

	resetFlags(rootCmd)
	viper.Reset()
	bindFlags()

	cfgFile = ""
	dumpsJSON, showRender, showCopy, purgeYes = false, false, false, false
	watchCount = 0
	envFormat = "text"
	doctorJSON = false
	configForce, configProject, configRaw = false, false, false
	runOutput, runFaults, runInterval = "", "loop,go,error", time.Second

	return root
}

// resetFlags restores every flag of c and its subcommands to its default so
// values set by one test do not leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func indexOf(s, sub string) int {
	return strings.Index(s, sub)
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

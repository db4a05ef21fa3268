package diagnostics

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProbes(freeMB uint64) healthProbes {
	return healthProbes{
		diskUsage: func(string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Free: freeMB * 1024 * 1024, UsedPercent: 40}, nil
		},
		cpuInfo: func() ([]cpu.InfoStat, error) {
			return []cpu.InfoStat{{ModelName: "  Test CPU 3000  "}}, nil
		},
		loadAvg: func() (*load.AvgStat, error) { return &load.AvgStat{Load1: 0.5}, nil },
	}
}

func TestCheckHealth_Writable(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/crash", 0o750))
	w := NewDumpWriter(NewFSStorage(fs, "/data"), DumpWriterOptions{}, nil)

	r := w.checkHealth(fakeProbes(4096))

	assert.True(t, r.Available)
	assert.True(t, r.DirExists)
	assert.True(t, r.Writable)
	assert.True(t, r.Healthy())
	assert.Empty(t, r.Warnings)
	assert.Equal(t, "Test CPU 3000", r.CPUModel)
	assert.InDelta(t, 4096, r.DiskFreeMB, 0.01)

	probeLeft, _ := afero.Exists(fs, "/data/crash/.doctor-probe")
	assert.False(t, probeLeft)
}

func TestCheckHealth_MissingDirectoryIsWarning(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o750))
	w := NewDumpWriter(NewFSStorage(fs, "/data"), DumpWriterOptions{}, nil)

	r := w.checkHealth(fakeProbes(4096))

	assert.True(t, r.Healthy())
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "directory", r.Warnings[0].Type)
	exists, _ := afero.DirExists(fs, "/data/crash")
	assert.False(t, exists, "doctor must not create the crash directory")
}

func TestCheckHealth_UnavailableStorage(t *testing.T) {
	t.Parallel()

	w := NewDumpWriter(NewFSStorage(afero.NewMemMapFs(), "/missing"), DumpWriterOptions{}, nil)
	r := w.checkHealth(fakeProbes(4096))

	assert.False(t, r.Available)
	assert.False(t, r.Healthy())
}

func TestCheckHealth_LowDisk(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/crash", 0o750))
	w := NewDumpWriter(NewFSStorage(fs, "/data"), DumpWriterOptions{}, nil)

	r := w.checkHealth(fakeProbes(10))
	assert.False(t, r.Healthy())
	require.NotEmpty(t, r.Warnings)
	assert.Equal(t, "disk", r.Warnings[len(r.Warnings)-1].Type)
}

func TestCheckHealth_ProbeErrorsIgnored(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/crash", 0o750))
	w := NewDumpWriter(NewFSStorage(fs, "/data"), DumpWriterOptions{}, nil)

	fail := errors.New("not supported")
	r := w.checkHealth(healthProbes{
		diskUsage: func(string) (*disk.UsageStat, error) { return nil, fail },
		cpuInfo:   func() ([]cpu.InfoStat, error) { return nil, fail },
		loadAvg:   func() (*load.AvgStat, error) { return nil, fail },
	})
	assert.True(t, r.Writable)
	assert.True(t, r.Healthy())
	assert.Zero(t, r.DiskFreeMB)
}

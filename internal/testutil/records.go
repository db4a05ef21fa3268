package testutil

import (
	"time"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/diagnostics"
)

// FaultTime is the instant used by fixtures: 2024-01-02T03:04:05Z.
var FaultTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// NewTestRecord creates a FaultRecord with stable values for tests.
// Use functional options to override specific fields.
func NewTestRecord(opts ...func(*diagnostics.FaultRecord)) diagnostics.FaultRecord {
	r := diagnostics.FaultRecord{
		ID:         "00000000-0000-0000-0000-000000000001",
		OccurredAt: FaultTime,
		ThreadName: "main",
		Message:    "boom",
		ValueType:  "string",
		Frames: []diagnostics.Frame{
			{Function: "example.com/app.render", File: "/src/app/render.go", Line: 42},
		},
		StackText: "goroutine 1 [running]:\nexample.com/app.render()\n\t/src/app/render.go:42 +0x1d\n",
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// NewTestEnvironment creates a fully populated EnvironmentSnapshot.
func NewTestEnvironment(opts ...func(*diagnostics.EnvironmentSnapshot)) diagnostics.EnvironmentSnapshot {
	env := diagnostics.EnvironmentSnapshot{
		AppVersionName:     "1.2.3",
		AppVersionCode:     "abc123",
		OSVersion:          "ubuntu 22.04",
		OSAPILevel:         "6.1.0",
		DeviceVendor:       "ACME",
		DeviceModel:        "Workstation 9",
		Supported32BitABIs: []string{"386"},
		Supported64BitABIs: []string{"amd64"},
		GoVersion:          "go1.24.2",
		Goroutines:         7,
		HeapAllocMB:        1.5,
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env
}

// StaticEnvironment returns a provider that always yields env.
func StaticEnvironment(env diagnostics.EnvironmentSnapshot) diagnostics.EnvironmentProvider {
	return diagnostics.EnvironmentFunc(func() diagnostics.EnvironmentSnapshot { return env })
}

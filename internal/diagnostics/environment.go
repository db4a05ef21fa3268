package diagnostics

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const unknownValue = "unknown"

// AppInfo identifies the hosting application. Empty fields are filled from
// the binary's embedded build information.
type AppInfo struct {
	Name    string
	Version string
	Code    string
}

// EnvironmentSnapshot is the host and application metadata recorded with
// every dump. It is recomputed for each dump and never cached.
type EnvironmentSnapshot struct {
	AppVersionName     string   `json:"app_version_name" yaml:"app_version_name"`
	AppVersionCode     string   `json:"app_version_code" yaml:"app_version_code"`
	OSVersion          string   `json:"os_version" yaml:"os_version"`
	OSAPILevel         string   `json:"os_api_level" yaml:"os_api_level"`
	DeviceVendor       string   `json:"device_vendor" yaml:"device_vendor"`
	DeviceModel        string   `json:"device_model" yaml:"device_model"`
	Supported32BitABIs []string `json:"supported_32bit_abis" yaml:"supported_32bit_abis"`
	Supported64BitABIs []string `json:"supported_64bit_abis" yaml:"supported_64bit_abis"`

	GoVersion   string  `json:"go_version" yaml:"go_version"`
	Goroutines  int     `json:"goroutines" yaml:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb" yaml:"heap_alloc_mb"`
	MemTotalMB  float64 `json:"mem_total_mb,omitempty" yaml:"mem_total_mb,omitempty"`

	// Failures lists metadata lookups that fell back to placeholders.
	Failures []string `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Degraded reports whether any metadata lookup failed.
func (e EnvironmentSnapshot) Degraded() bool {
	return len(e.Failures) > 0
}

// EnvironmentProvider produces a fresh snapshot on every call.
type EnvironmentProvider interface {
	Capture() EnvironmentSnapshot
}

// EnvironmentFunc adapts a function to EnvironmentProvider.
type EnvironmentFunc func() EnvironmentSnapshot

// Capture calls f.
func (f EnvironmentFunc) Capture() EnvironmentSnapshot { return f() }

// EnvironmentCollector reads metadata from the build info, gopsutil and ghw.
type EnvironmentCollector struct {
	app AppInfo
	// Probes are fields so tests can simulate failing platforms.
	buildInfo func() (*debug.BuildInfo, bool)
	hostInfo  func() (*host.InfoStat, error)
	product   func(opts ...*ghw.WithOption) (*ghw.ProductInfo, error)
	memory    func() (*mem.VirtualMemoryStat, error)
	arch      string
}

// NewEnvironmentCollector creates a collector for app.
func NewEnvironmentCollector(app AppInfo) *EnvironmentCollector {
	return &EnvironmentCollector{
		app:       app,
		buildInfo: debug.ReadBuildInfo,
		hostInfo:  host.Info,
		product:   ghw.Product,
		memory:    mem.VirtualMemory,
		arch:      runtime.GOARCH,
	}
}

// Capture reads current metadata. A failed lookup fills placeholders and is
// recorded in Failures; Capture itself never fails.
func (c *EnvironmentCollector) Capture() EnvironmentSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	env := EnvironmentSnapshot{
		GoVersion:   runtime.Version(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024,
	}
	env.Supported32BitABIs, env.Supported64BitABIs = supportedABIs(c.arch)

	c.probe(&env, "app version", c.collectApp)
	c.probe(&env, "os version", c.collectOS)
	c.probe(&env, "device", c.collectDevice)
	c.probe(&env, "memory", c.collectMemory)

	fillUnknown(&env.AppVersionName, &env.AppVersionCode, &env.OSVersion,
		&env.OSAPILevel, &env.DeviceVendor, &env.DeviceModel)
	return env
}

// probe runs one lookup, converting errors and panics into a recorded failure.
func (c *EnvironmentCollector) probe(env *EnvironmentSnapshot, name string, fn func(*EnvironmentSnapshot) error) {
	defer func() {
		if r := recover(); r != nil {
			env.Failures = append(env.Failures, fmt.Sprintf("%s: panic: %v", name, r))
		}
	}()
	if err := fn(env); err != nil {
		env.Failures = append(env.Failures, fmt.Sprintf("%s: %v", name, err))
	}
}

func (c *EnvironmentCollector) collectApp(env *EnvironmentSnapshot) error {
	env.AppVersionName = c.app.Version
	env.AppVersionCode = c.app.Code
	if env.AppVersionName != "" && env.AppVersionCode != "" {
		return nil
	}

	info, ok := c.buildInfo()
	if !ok || info == nil {
		return fmt.Errorf("build info unavailable")
	}
	if env.AppVersionName == "" {
		env.AppVersionName = info.Main.Version
	}
	if env.AppVersionCode == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				env.AppVersionCode = shortRevision(s.Value)
			}
		}
	}
	return nil
}

func (c *EnvironmentCollector) collectOS(env *EnvironmentSnapshot) error {
	info, err := c.hostInfo()
	if err != nil {
		return err
	}
	name := info.Platform
	if name == "" {
		name = info.OS
	}
	env.OSVersion = strings.TrimSpace(name + " " + info.PlatformVersion)
	env.OSAPILevel = info.KernelVersion
	return nil
}

// collectDevice reads vendor and model from DMI. ghw reports unreadable
// fields as "unknown" with a nil error and prints the reason through its
// alerter, so the alerter output is kept and turned into the failure.
func (c *EnvironmentCollector) collectDevice(env *EnvironmentSnapshot) error {
	alerts := &ghwAlerts{}
	p, err := c.product(ghw.WithAlerter(alerts))
	if err != nil {
		return err
	}

	var missing []string
	if isUnknown(p.Vendor) {
		missing = append(missing, "vendor")
	} else {
		env.DeviceVendor = p.Vendor
	}
	if isUnknown(p.Name) {
		missing = append(missing, "model")
	} else {
		env.DeviceModel = p.Name
	}
	if len(missing) == 0 {
		return nil
	}
	if lines := alerts.Lines(); len(lines) > 0 {
		return fmt.Errorf("%s not reported: %s", strings.Join(missing, " and "), strings.Join(lines, "; "))
	}
	return fmt.Errorf("%s not reported", strings.Join(missing, " and "))
}

// ghwAlerts collects ghw warnings instead of letting ghw print them to stderr.
type ghwAlerts struct {
	mu    sync.Mutex
	lines []string
}

// Printf implements ghw's alerter.
func (a *ghwAlerts) Printf(format string, v ...interface{}) {
	line := strings.TrimSpace(fmt.Sprintf(format, v...))
	if line == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, line)
}

// Lines returns the collected warnings.
func (a *ghwAlerts) Lines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.lines...)
}

func isUnknown(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, unknownValue)
}

func (c *EnvironmentCollector) collectMemory(env *EnvironmentSnapshot) error {
	vm, err := c.memory()
	if err != nil {
		return err
	}
	env.MemTotalMB = float64(vm.Total) / 1024 / 1024
	return nil
}

// abiTable maps GOARCH to the instruction sets the host can execute, split by
// word size. Hosts able to run 32-bit binaries natively list them too.
var abiTable = map[string][2][]string{
	"amd64":    {{"386"}, {"amd64"}},
	"arm64":    {{"arm"}, {"arm64"}},
	"386":      {{"386"}, nil},
	"arm":      {{"arm"}, nil},
	"mips":     {{"mips"}, nil},
	"mipsle":   {{"mipsle"}, nil},
	"mips64":   {{"mips"}, {"mips64"}},
	"mips64le": {{"mipsle"}, {"mips64le"}},
	"ppc64":    {nil, {"ppc64"}},
	"ppc64le":  {nil, {"ppc64le"}},
	"riscv64":  {nil, {"riscv64"}},
	"s390x":    {nil, {"s390x"}},
	"loong64":  {nil, {"loong64"}},
	"wasm":     {{"wasm"}, nil},
}

func supportedABIs(arch string) (abi32, abi64 []string) {
	entry, ok := abiTable[arch]
	if !ok {
		if strconv.IntSize == 64 {
			entry = [2][]string{nil, {arch}}
		} else {
			entry = [2][]string{{arch}, nil}
		}
	}
	return sortedSet(entry[0]), sortedSet(entry[1])
}

func sortedSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func fillUnknown(fields ...*string) {
	for _, f := range fields {
		if strings.TrimSpace(*f) == "" {
			*f = unknownValue
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// degradedSnapshot is used when a provider fails outright.
func degradedSnapshot(reason string) EnvironmentSnapshot {
	env := EnvironmentSnapshot{
		GoVersion: runtime.Version(),
		Failures:  []string{reason},
	}
	env.Supported32BitABIs, env.Supported64BitABIs = supportedABIs(runtime.GOARCH)
	fillUnknown(&env.AppVersionName, &env.AppVersionCode, &env.OSVersion,
		&env.OSAPILevel, &env.DeviceVendor, &env.DeviceModel)
	return env
}

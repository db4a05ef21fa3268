package clip

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCopyDump_NativeSuccess(t *testing.T) {
	t.Cleanup(resetStubs())
	nativeWriteAll = func(_ string) error { return nil }
	osc52WriteAll = func(_ string) error {
		t.Fatal("osc52 should not be called when native succeeds")
		return nil
	}

	got, err := CopyDump("crash-2024-01-02-03-04-05.log", "dump")
	if err != nil {
		t.Fatalf("CopyDump returned error: %v", err)
	}
	if got.Method != MethodNative {
		t.Fatalf("Method=%q, want %q", got.Method, MethodNative)
	}
	if got.FilePath != "" {
		t.Fatalf("FilePath=%q, want empty", got.FilePath)
	}
}

func TestCopyDump_OSC52Fallback(t *testing.T) {
	t.Cleanup(resetStubs())
	nativeWriteAll = func(_ string) error { return errFake("native failed") }
	osc52WriteAll = func(_ string) error { return nil }

	got, err := CopyDump("crash-2024-01-02-03-04-05.log", "dump")
	if err != nil {
		t.Fatalf("CopyDump returned error: %v", err)
	}
	if got.Method != MethodOSC52 {
		t.Fatalf("Method=%q, want %q", got.Method, MethodOSC52)
	}
}

func TestCopyDump_FileFallback(t *testing.T) {
	t.Cleanup(resetStubs())
	dir := t.TempDir()
	tempDir = func() string { return dir }
	nativeWriteAll = func(_ string) error { return errFake("native failed") }
	osc52WriteAll = func(_ string) error { return errFake("osc52 failed") }

	got, err := CopyDump("/sdcard/crash/crash-2024-01-02-03-04-05.log.zst", "dump body")
	if err != nil {
		t.Fatalf("CopyDump returned error: %v", err)
	}
	if got.Method != MethodFile {
		t.Fatalf("Method=%q, want %q", got.Method, MethodFile)
	}
	if filepath.Dir(got.FilePath) != dir {
		t.Errorf("FilePath=%q, want it under %q", got.FilePath, dir)
	}
	if !strings.HasPrefix(filepath.Base(got.FilePath), "crash-2024-01-02-03-04-05-") {
		t.Errorf("FilePath=%q, want it named after the dump", got.FilePath)
	}

	b, err := os.ReadFile(got.FilePath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "dump body" {
		t.Fatalf("file contents=%q, want %q", string(b), "dump body")
	}
	if !strings.Contains(got.Describe(), got.FilePath) {
		t.Errorf("Describe()=%q, want the file path", got.Describe())
	}
}

func TestCopyDump_FileFallbackFails(t *testing.T) {
	t.Cleanup(resetStubs())
	tempDir = func() string { return filepath.Join(t.TempDir(), "missing") }
	nativeWriteAll = func(_ string) error { return errFake("native failed") }
	osc52WriteAll = func(_ string) error { return errFake("osc52 failed") }

	if _, err := CopyDump("crash.log", "dump"); err == nil {
		t.Fatal("CopyDump error = nil, want temp file error")
	}
}

func TestWriteTempFile_BlankName(t *testing.T) {
	t.Cleanup(resetStubs())
	dir := t.TempDir()
	tempDir = func() string { return dir }

	path, err := writeTempFile("", "x")
	if err != nil {
		t.Fatalf("writeTempFile error: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "crash-") {
		t.Errorf("path=%q, want crash- prefix", path)
	}
}

func TestWriteAllOSC52_EmptyText(t *testing.T) {
	if err := writeAllOSC52(""); err == nil {
		t.Error("should error on empty text")
	}
}

func TestWriteAllOSC52_TooLarge(t *testing.T) {
	err := writeAllOSC52(strings.Repeat("x", osc52LimitBytes+1))
	if err == nil {
		t.Error("should error on oversized text")
	}
}

func TestResult_Describe(t *testing.T) {
	if got := (Result{Method: MethodNative}).Describe(); got != "copied to clipboard" {
		t.Errorf("native Describe()=%q", got)
	}
	if got := (Result{Method: MethodOSC52}).Describe(); got != "copied to terminal clipboard" {
		t.Errorf("osc52 Describe()=%q", got)
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }

func resetStubs() func() {
	origNative := nativeWriteAll
	origOSC52 := osc52WriteAll
	origTemp := tempDir
	return func() {
		nativeWriteAll = origNative
		osc52WriteAll = origOSC52
		tempDir = origTemp
	}
}

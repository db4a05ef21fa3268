// Package diagnostics captures panics that would otherwise end the process,
// keeps the primary interactive loop alive across them and persists a crash
// dump for each one.
//
// The moving parts:
//
//   - LoopSupervisor runs the primary loop and re-enters it after a fault.
//
//   - FaultHandler is the synchronous entry point for a caught panic. It
//     notifies the user and submits the dump to a Dispatcher.
//
//   - DumpWriter formats a FaultRecord with an EnvironmentSnapshot and writes
//     it atomically to <root>/crash/crash-<timestamp>.log on a Storage.
//
//   - Service wires these together. Init installs the handler as the
//     process-wide sink used by Go and Guard; Shutdown stops restarts and
//     drains pending dumps.
//
// Panics on goroutines that were not started with Go, and are not guarded
// with a deferred Guard, cannot be recovered in Go. SetFatalOutput records
// those in fatal.log before the process exits.
package diagnostics

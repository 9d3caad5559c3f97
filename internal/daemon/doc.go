// Package daemon coordinates the long-running Scribe process.
//
// It wires configuration, queue storage, the workflow manager, the input
// folder watcher, the Google Drive monitor, and resource monitoring into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon exposes queue maintenance helpers, manual file ingestion, and
// the one-shot processing mode used by the CLI.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon

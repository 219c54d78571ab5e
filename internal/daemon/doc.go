// Package daemon coordinates the long-running handoutd process.
//
// It wires the job store, the workflow dispatcher and the HTTP API into a
// single lifecycle with flock-based locking to prevent multiple instances.
// At start it resolves jobs a previous process left running, logs preflight
// failures, and then serves until its context is cancelled.
//
// Keep orchestration logic here: pipeline stages live in their own packages
// while the daemon focuses on startup, shutdown, and request handling.
package daemon

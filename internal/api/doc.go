// Package api defines the wire-format types shared by the daemon HTTP API and
// the CLI. It translates queue jobs and workflow status into transport-friendly
// DTOs so clients never depend on internal types.
//
// # Key Types
//
// Job: a job with its progress, outputs and failure message. Credentials of
// authenticated sources never leave the daemon.
//
// SubmitRequest: the body of POST /api/jobs. Run turns it into a run envelope,
// filling unset feature toggles from the configured defaults.
//
// DaemonStatus: workflow capacity, job counts, stage health and external
// binaries.
//
// # Auth
//
// MintToken and ParseToken issue and verify the HS256 bearer tokens the daemon
// accepts when api.token_secret is set.
//
// # Client
//
// Client is the HTTP client used by the CLI. Errors returned by the daemon are
// decoded into *Error values.
package api

// Package queue persists handout jobs in SQLite and implements the job store
// the pipeline orchestrator reports to.
//
// A job is created pending by Submit, claimed by the daemon dispatcher with
// NextPending, and driven to exactly one terminal state (completed, failed,
// or cancelled) by the orchestrator. Cancellation is two-phase: RequestCancel
// moves a running job to cancelling, and the orchestrator observes that via
// IsCancelling at its next checkpoint before recording cancelled.
//
// The database is treated as transient storage for in-flight and recent jobs
// rather than a long-term archive. Schema changes bump the version in
// schema.go; users clear the database to adopt the new schema.
package queue

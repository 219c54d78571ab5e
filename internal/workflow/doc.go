// Package workflow runs jobs through the fixed handout pipeline.
//
// The Orchestrator threads a runspec.Run through each stage in order,
// consults the stage cache for cacheable stages, polls the job store for
// cancellation at every stage boundary, and records the terminal state
// (completed, failed, or cancelled) back in the job store. Progress flows
// through a progress.Tracker into the store and the configured publishers.
//
// The Dispatcher is the daemon's loop: it claims pending jobs from the queue
// and starts them on the orchestrator while the job runner has capacity.
//
// Stage handlers are supplied through Stages; finalize is built in.
package workflow

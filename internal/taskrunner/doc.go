// Package taskrunner schedules context-aware tasks on a bounded set of
// goroutines and hands back awaitable handles.
//
// Two backends share the Runner interface: Pool runs tasks on an ants worker
// pool, and Group runs them through an errgroup with a concurrency limit.
// Task errors and panics are captured in the task's Handle; they never
// cancel sibling tasks.
package taskrunner

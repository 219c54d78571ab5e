// Package progress turns stage-local progress into a single monotonic job
// fraction and fans each update out to the job store and to publishers.
//
// Publishers are fire-and-forget: a publisher error is logged at debug and
// never affects the job. The SSE publisher keeps the latest event per job so
// late subscribers see the current value first.
package progress

// Package artifacts generates the optional study aids that accompany a
// handout: a study table spreadsheet, a vignette quiz PDF and Mermaid
// concept maps.
//
// The fan-out-artifacts stage schedules one unit per enabled kind on a task
// runner and merges results as they complete. A failing unit is logged and
// skipped; it never fails the job.
package artifacts

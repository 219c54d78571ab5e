// Package logs reads the daemon log for `handout logs`.
//
// Tail prints the last lines of a file, optionally keeping only lines that
// mention a job id, and can keep following the file as the daemon appends
// to it. Memory use is bounded by the number of lines requested.
package logs

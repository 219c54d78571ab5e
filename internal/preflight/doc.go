// Package preflight provides readiness checks for the directories, external
// binaries and AI services handout depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failed check.
//   - The CLI "handout status" command renders the same results.
//
// Checks for optional collaborators are skipped when they are not configured.
package preflight

// Package logging builds the slog loggers used by the daemon, the CLI and
// the pipeline stages.
//
// New selects a console or JSON handler. Console lines carry the component,
// job and stage as a prefix so `handout logs --job` can grep them; JSON lines
// keep them as fields. WithContext copies job, stage, source and request
// identifiers from the context onto a logger, ForStage applies per-stage
// level overrides, WarnWithContext enforces the event_type/error_hint/impact
// triple on warnings, and PruneLogs enforces log retention.
package logging

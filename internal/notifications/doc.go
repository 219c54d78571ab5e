// Package notifications pushes job outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether notifications are enabled. Completion
// and failure messages can be toggled independently in config.toml.
package notifications

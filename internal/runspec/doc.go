// Package runspec defines the versioned run envelope shared between pipeline
// stages.
//
// A Run captures the job identity, the immutable source descriptor, and
// everything stages have produced so far: the acquired video, captions,
// collapsed slides, the rendered document, and the output map. Stages read
// the envelope and add or overwrite fields; nothing is removed once set.
//
// # Key Types
//
// Run: root container, persisted as JSON in the jobs table and carried
// through the orchestrator.
//
// Source: tagged union over the four supported source kinds. Validate
// checks that the fields each kind requires are present.
//
// Caption and Slide: transcript segments and the deduplicated slides built
// from them.
//
// Features and Params: per-job switches for optional artifacts and prompt
// overrides.
//
// # Entry Points
//
// Parse: decode a Run, rejecting unknown envelope versions.
// Run.Encode: serialise the envelope for persistence.
// Run.SetSourceID: record the source identity exactly once.
// Run.SetOutput/MergeOutputs: record produced artifacts by unique key.
package runspec

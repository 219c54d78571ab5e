// Package ai exposes the typed AI functions the pipeline depends on:
// transcription, caption cleanup, titling, study tables, quizzes and concept
// maps.
//
// Chat-backed functions go through the llm client, which owns retries.
// Artifact results (study table, quiz, concept maps) are cached per source
// under the "ai:<kind>" stage names so reruns of the same lecture reuse them.
// Prompt overrides from the run params replace the built-in prompts.
package ai

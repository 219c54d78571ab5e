// Package ffprobe reads the stream layout of a downloaded lecture video.
//
// Inspect asks ffprobe only for the entries the acquire stage checks and
// returns a Result; Summary folds that into the handful of facts the
// pipeline cares about. Commands run through a deps.Runner so tests can feed
// canned JSON.
package ffprobe

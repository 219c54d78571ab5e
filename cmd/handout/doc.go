// Command handout is the command-line front end for the handout pipeline.
//
// It runs jobs in-process (handout run), submits them to a running daemon
// over the HTTP API (handout submit), and inspects, watches and cancels
// jobs (handout jobs). When the daemon is unreachable the jobs commands fall
// back to the job database so history stays available offline.
//
// Configuration is read from --config or the default path, after loading a
// .env file from the working directory.
package main

// Package storage keeps finished documents either on the local filesystem or
// in an S3-compatible bucket.
//
// Callers render into the job work directory and hand the finished file to
// Put together with a file name; the returned location is what ends up in
// the job's output map.
package storage

// Package stagecache stores pipeline stage results keyed by source identity
// and stage name so reruns over the same video skip finished work.
//
// Entries expire after a TTL (seven days by default) and are purged lazily
// when read. The cache never fails a job: backend and serialisation errors
// are logged as cache_degraded warnings and treated as a miss or a no-op.
// A nil *Cache is valid and behaves as an always-empty cache.
//
// Two backends are provided: a local SQLite table (the default) and a
// DynamoDB table for deployments that share a cache between hosts.
package stagecache

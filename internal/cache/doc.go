// Package cache manages the single on-disk copy of the last fetched rate document.
//
// The file's modification time is the only freshness signal: a file modified
// less than FreshnessWindow ago is reused, anything else (missing, unreadable,
// stale, or dated in the future) needs a refresh. Writes truncate and rewrite
// the file in place.
package cache

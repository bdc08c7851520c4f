package store

// Package store persists the per-account following-sets the radar diffs
// against. Records are keyed by stringified user id and hold one set of
// followed-account ids; mutations are idempotent set union/difference.

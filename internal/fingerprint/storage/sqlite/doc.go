// Package sqlite persists surveyed radio sources, survey fingerprints and
// position estimates in SQLite, and materializes stored rows into the
// domain types the fingerprint estimators consume.
package sqlite

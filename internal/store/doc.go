// Package store persists position lifecycle state and the screened universe
// to PostgreSQL, so signald runs are resumable and closed positions keep an
// auditable history.
package store

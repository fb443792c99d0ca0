// Package store persists completed analysis runs to SQLite.
//
// The store is an export sink, not a working database: the pipeline
// runs entirely in memory and writes one transaction per run. The
// canonical report bytes are stored verbatim so an exported run can be
// compared byte-for-byte against a re-run of the same inputs.
package store

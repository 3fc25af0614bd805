// Package guard implements the optimistic-concurrency write protocol shared by
// every versioned record: callers send the version they last observed, storage
// applies one conditional update, and a zero-row outcome is disambiguated into
// NOT_FOUND or VERSION_CONFLICT.
//
// Domain rules that forbid a mutation even when the version matches surface as
// BUSINESS_CONFLICT so callers can tell "reload and retry" apart from "explain
// the rule". Malformed input is rejected as VALIDATION_ERROR before any storage
// access.
//
// Storage backends only implement RowStore; Table layers JSON encoding and the
// check-then-swap sequence on top of it.
package guard

// Package engine runs submitted jobs on a single background worker.
//
// An Engine pairs every pushed payload with the settings snapshot that was
// current at push time, processes jobs strictly in submission order and
// buffers non-empty results for the caller to pop most-recent-first.
//
// A fault raised by the processing function halts the worker. Remaining jobs
// stay queued until the caller clears the error and resumes, so a poisoned
// queue is never skipped silently.
package engine

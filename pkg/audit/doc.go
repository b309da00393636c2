// Package audit persists classified tracer.TraceEvents to a local SQLite
// ledger, keyed by a Supervisor-chosen session id and a per-run uuid. It is
// a purely additive forensic sink, never consulted by the tracing state
// machine itself, wired so that a slow or failing disk degrades into
// dropped audit rows rather than a stalled Supervisor.
package audit

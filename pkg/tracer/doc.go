// Package tracer implements the ptrace-driven state machine that polices a
// forked judge submission: a long-lived forkserver that spawns player
// processes on command, and the tracees it spawns.
//
// The controller is strictly sequential. Every exported method blocks in
// waitpid until the kernel notification it is waiting for arrives, then
// returns. There is no internal goroutine and no background polling; the
// caller (the judge's Supervisor) drives the state machine one call at a
// time and branches on the returned TraceEvent.
package tracer

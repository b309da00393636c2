// Package sandbox holds the setup a tracee runs on itself before the
// protocol handshake begins: arming the CPU-time timer that bounds how
// long it may run, and installing the seccomp-bpf filter that backstops
// the Controller's own syscall policing at the kernel level.
//
// Both operations run in the tracee after fork and before exec, where
// there is no Supervisor left to hand an error back to; failure in either
// one means the process exits immediately rather than running unguarded.
package sandbox

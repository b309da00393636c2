package tracer

import "fmt"

// Role distinguishes the forkserver from a tracee for classification
// purposes. The two roles share every waitpid/ptrace code path; only the
// Kind they are classified into differs.
type Role int

const (
	RoleForkserver Role = iota
	RoleTracee
)

func (r Role) String() string {
	if r == RoleForkserver {
		return "forkserver"
	}
	return "tracee"
}

// Kind is the closed classification taxonomy every Controller operation
// resolves to. The Supervisor is expected to switch on Kind, not to inspect
// TraceEvent.Err()'s text.
type Kind int

const (
	// KindOK means the stop was exactly what the operation expected; the
	// caller should inspect any accompanying data (forked pid, registers)
	// and proceed.
	KindOK Kind = iota
	// KindUnknownKill: the target was killed by something this sandbox did
	// not arrange for (SIGKILL from the OS/operator, or a seccomp SIGSYS,
	// which never produces a ptrace-stop).
	KindUnknownKill
	// KindUnknownSignal: the target stopped because of a signal other than
	// the one this ptrace request was waiting for.
	KindUnknownSignal
	// KindUnexpectedCont: the target was continued (e.g. by an external
	// SIGCONT) before this controller's waitpid observed its stop.
	KindUnexpectedCont
	// KindIllegalSyscall: a tracee attempted a syscall outside the allowed
	// set, or violated the read/write protocol (wrong fd, wrong byte
	// count, wrong turn). Tracee-only.
	KindIllegalSyscall
	// KindOutOfMemory: a memory-sizing syscall (mmap/brk/mremap) returned
	// -ENOMEM. Tracee-only.
	KindOutOfMemory
	// KindSystemError: an unexpected ptrace errno (anything but ESRCH) was
	// observed. This is a bug surface, not a sandbox policy violation; the
	// target has already been force-killed by the time this is returned.
	KindSystemError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindUnknownKill:
		return "unknown_kill"
	case KindUnknownSignal:
		return "unknown_signal"
	case KindUnexpectedCont:
		return "unexpected_cont"
	case KindIllegalSyscall:
		return "illegal_syscall"
	case KindOutOfMemory:
		return "out_of_memory"
	case KindSystemError:
		return "system_error"
	default:
		return "unknown"
	}
}

// IllegalSyscall carries the (syscall_number, arg1, arg3) triple: fd and
// byte-count where they were actually inspected, or -1 sentinels when the
// call was rejected before either was validated.
type IllegalSyscall struct {
	Number int64
	Arg1   int64
	Arg3   int64
}

// TraceEvent is the tagged variant every Controller operation returns. It
// carries exactly the payload its Kind defines; the rest are zero values.
type TraceEvent struct {
	Kind Kind
	Role Role

	// Status is the raw waitpid status for KindUnknownKill, KindUnknownSignal
	// and KindUnexpectedCont.
	Status int
	// Illegal is populated for KindIllegalSyscall.
	Illegal IllegalSyscall
	// Errno is populated for KindSystemError.
	Errno error

	// ForkedPid is populated by ForkserverGetForkedPid on KindOK.
	ForkedPid int
}

func ok(role Role) TraceEvent { return TraceEvent{Kind: KindOK, Role: role} }

func unknownKill(role Role, status int) TraceEvent {
	return TraceEvent{Kind: KindUnknownKill, Role: role, Status: status}
}

func unknownSignal(role Role, status int) TraceEvent {
	return TraceEvent{Kind: KindUnknownSignal, Role: role, Status: status}
}

func unexpectedCont(role Role, status int) TraceEvent {
	return TraceEvent{Kind: KindUnexpectedCont, Role: role, Status: status}
}

func illegalSyscall(nr, arg1, arg3 int64) TraceEvent {
	return TraceEvent{
		Kind: KindIllegalSyscall,
		Role: RoleTracee,
		Illegal: IllegalSyscall{
			Number: nr,
			Arg1:   arg1,
			Arg3:   arg3,
		},
	}
}

func outOfMemory() TraceEvent {
	return TraceEvent{Kind: KindOutOfMemory, Role: RoleTracee}
}

func systemError(role Role, err error) TraceEvent {
	return TraceEvent{Kind: KindSystemError, Role: role, Errno: err}
}

// IsOK reports whether the event represents a successful stop.
func (e TraceEvent) IsOK() bool { return e.Kind == KindOK }

// Err turns a non-OK TraceEvent into a Go error, for callers that want to
// use the usual `if err := ...; err != nil` idiom alongside the Kind switch.
func (e TraceEvent) Err() error {
	if e.IsOK() {
		return nil
	}
	switch e.Kind {
	case KindUnknownKill, KindUnknownSignal, KindUnexpectedCont:
		return fmt.Errorf("%s %s: waitpid status 0x%x", e.Role, e.Kind, e.Status)
	case KindIllegalSyscall:
		return fmt.Errorf("illegal syscall: nr=%d arg1=%d arg3=%d",
			e.Illegal.Number, e.Illegal.Arg1, e.Illegal.Arg3)
	case KindOutOfMemory:
		return fmt.Errorf("out of memory")
	case KindSystemError:
		return fmt.Errorf("system error: %w", e.Errno)
	default:
		return fmt.Errorf("unclassified trace event")
	}
}

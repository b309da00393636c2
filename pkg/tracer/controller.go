package tracer

import (
	"fmt"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// waitFlags mirrors the original __WALL: wait for children regardless of
// whether they are clone()d or traditionally forked. The forkserver's
// children are auto-traced via PTRACE_O_TRACEFORK, but __WALL keeps this
// robust if that ever changes.
const waitFlags = 0x40000000 // syscall.WALL is not exported on all targets; value matches Linux's __WALL.

// syscallSIGTRAP is SIGTRAP with the PTRACE_O_TRACESYSGOOD high bit set, the
// signal a syscall-stop arrives as once that option is active. It is what
// distinguishes a syscall-enter/exit stop from every other SIGTRAP (notably
// the plain SIGTRAP a fork event delivers to the forkserver).
const syscallSIGTRAP = syscall.SIGTRAP | 0x80

// Controller is the stateful facade over ptrace/waitpid that drives the
// forkserver and its tracees. It holds no tracee-identifying state of its
// own beyond the Config it was built with; every operation takes the pid
// it operates on explicitly, matching the Supervisor's own bookkeeping.
//
// A Controller is not safe for concurrent use: its contract is that exactly
// one goroutine, pinned to one OS thread via runtime.LockOSThread, drives
// it. ptrace state belongs to the tracing thread, not the tracing process.
type Controller struct {
	cfg *Config
	log logrus.FieldLogger
}

// NewController validates the platform preconditions and returns a
// Controller bound to cfg. Platform failures are fatal construction errors,
// per the design notes; there is no lazy fallback path.
func NewController(cfg *Config, log logrus.FieldLogger) (*Controller, error) {
	if _, err := ProbePlatform(); err != nil {
		return nil, fmt.Errorf("platform probe failed: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{cfg: cfg, log: log}, nil
}

// classify turns a raw waitpid status into a TraceEvent: signaled means the
// target was killed, stopped-with-the-wrong-signal means something other
// than what this call site was waiting for hit it, stopped-as-expected is
// success, and anything else is a spurious continuation. expectStop is the
// stop signal this call site was waiting for (SIGSTOP, the syscall-good
// SIGTRAP, or a plain SIGTRAP).
func classify(role Role, ws syscall.WaitStatus, expectStop syscall.Signal) TraceEvent {
	switch {
	case ws.Signaled():
		return unknownKill(role, int(ws))
	case ws.Stopped():
		if ws.StopSignal() != expectStop {
			return unknownSignal(role, int(ws))
		}
		return ok(role)
	default:
		return unexpectedCont(role, int(ws))
	}
}

// wait blocks for the next notification on pid and classifies it.
func (c *Controller) wait(pid int, role Role, expectStop syscall.Signal) TraceEvent {
	var ws syscall.WaitStatus
	if _, err := syscall.Wait4(pid, &ws, waitFlags, nil); err != nil {
		// Wait4 without WNOHANG only fails this way if we were interrupted
		// by a signal of our own, which the single-threaded controller
		// never expects to receive.
		return systemError(role, fmt.Errorf("wait4(%d): %w", pid, err))
	}
	return classify(role, ws, expectStop)
}

// recoverESRCH implements the "ESRCH recovery after ptrace" procedure: a
// single non-blocking-in-practice waitpid to find out what actually
// happened to a pid a ptrace request could no longer find.
func (c *Controller) recoverESRCH(pid int, role Role) TraceEvent {
	var ws syscall.WaitStatus
	if _, err := syscall.Wait4(pid, &ws, waitFlags, nil); err != nil {
		return unknownKill(role, 0)
	}
	switch {
	case ws.Signaled():
		return unknownKill(role, int(ws))
	case ws.Continued():
		return unexpectedCont(role, int(ws))
	default:
		syscall.Kill(pid, syscall.SIGKILL)
		return unknownKill(role, int(ws))
	}
}

// ptraceErr classifies the result of a ptrace(2) request per "ESRCH
// recovery after ptrace": ESRCH triggers recoverESRCH, anything else is a
// bug surface that force-kills the target and reports KindSystemError.
func (c *Controller) ptraceErr(err error, pid int, role Role, op string) (TraceEvent, bool) {
	if err == nil {
		return TraceEvent{}, false
	}
	if err == syscall.ESRCH {
		return c.recoverESRCH(pid, role), true
	}
	syscall.Kill(pid, syscall.SIGKILL)
	return systemError(role, fmt.Errorf("ptrace %s(pid=%d): %w", op, pid, err)), true
}

func (c *Controller) getRegs(pid int, role Role) (syscall.PtraceRegs, TraceEvent, bool) {
	var regs syscall.PtraceRegs
	err := syscall.PtraceGetRegs(pid, &regs)
	if ev, failed := c.ptraceErr(err, pid, role, "GETREGS"); failed {
		return regs, ev, true
	}
	return regs, TraceEvent{}, false
}

func (c *Controller) setRegs(pid int, role Role, regs *syscall.PtraceRegs) (TraceEvent, bool) {
	err := syscall.PtraceSetRegs(pid, regs)
	return c.ptraceErr(err, pid, role, "SETREGS")
}

// neutralize overwrites the syscall-number register with -1 (an invalid
// syscall) and commits it, so the kernel returns ENOSYS without ever
// executing whatever the tracee attempted.
func (c *Controller) neutralize(pid int, role Role, regs *syscall.PtraceRegs) (TraceEvent, bool) {
	newSyscallView(regs).SetNumber(^uint64(0))
	return c.setRegs(pid, role, regs)
}

// --- Forkserver sequence -----------------------------------------------

// ForkserverAttach attaches to the forkserver, waits for the resulting
// SIGSTOP, and arms PTRACE_O_TRACEFORK | PTRACE_O_EXITKILL |
// PTRACE_O_TRACESYSGOOD. EXITKILL ensures the forkserver (and, transitively,
// any tracee still attached) dies if the Supervisor itself dies.
func (c *Controller) ForkserverAttach(pid int) TraceEvent {
	c.log.WithField("pid", pid).Debug("attaching to forkserver")
	if err := syscall.PtraceAttach(pid); err != nil {
		if ev, failed := c.ptraceErr(err, pid, RoleForkserver, "ATTACH"); failed {
			return ev
		}
	}

	if ev := c.wait(pid, RoleForkserver, syscall.SIGSTOP); !ev.IsOK() {
		return ev
	}

	opts := syscall.PTRACE_O_TRACEFORK | syscall.PTRACE_O_EXITKILL | syscall.PTRACE_O_TRACESYSGOOD
	if err := syscall.PtraceSetOptions(pid, opts); err != nil {
		if ev, failed := c.ptraceErr(err, pid, RoleForkserver, "SETOPTIONS"); failed {
			return ev
		}
	}
	return ok(RoleForkserver)
}

// ForkserverWaitFirstRead single-steps the forkserver by syscalls until it
// issues read(forkserver_read_fd, ...), then lets it run free. Any other
// syscall observed along the way is silently skipped rather than treated
// as a sequencing violation, since the forkserver is trusted setup code,
// not an untrusted tracee.
func (c *Controller) ForkserverWaitFirstRead(pid int) TraceEvent {
	for {
		if err := syscall.PtraceSyscall(pid, 0); err != nil {
			if ev, failed := c.ptraceErr(err, pid, RoleForkserver, "SYSCALL"); failed {
				return ev
			}
		}
		if ev := c.wait(pid, RoleForkserver, syscallSIGTRAP); !ev.IsOK() {
			return ev
		}

		regs, ev, failed := c.getRegs(pid, RoleForkserver)
		if failed {
			return ev
		}
		view := newSyscallView(&regs)

		if view.Number() == unix.SYS_READ && int(view.Arg(0)) == c.cfg.ForkserverReadFD() {
			if err := syscall.PtraceCont(pid, 0); err != nil {
				if ev, failed := c.ptraceErr(err, pid, RoleForkserver, "CONT"); failed {
					return ev
				}
			}
			return ok(RoleForkserver)
		}
	}
}

// ForkserverWaitStop waits for the forkserver's next stop, expected to be
// the plain SIGTRAP a fork event delivers.
func (c *Controller) ForkserverWaitStop(pid int) TraceEvent {
	return c.wait(pid, RoleForkserver, syscall.SIGTRAP)
}

// ForkserverGetForkedPid extracts the new tracee's pid via
// PTRACE_GETEVENTMSG. This is the pid usable for tracing even when the
// forkserver runs in a different pid namespace than the host.
func (c *Controller) ForkserverGetForkedPid(pid int) TraceEvent {
	msg, err := syscall.PtraceGetEventMsg(pid)
	if ev, failed := c.ptraceErr(err, pid, RoleForkserver, "GETEVENTMSG"); failed {
		return ev
	}
	ev := ok(RoleForkserver)
	ev.ForkedPid = int(msg)
	return ev
}

// ForkserverResume continues the forkserver. The Supervisor calls this both
// right after triggering a fork and after every SIGCHLD stop caused by a
// dying tracee (the forkserver is the tracee's real parent and receives
// SIGCHLD for it).
func (c *Controller) ForkserverResume(pid int) TraceEvent {
	if err := syscall.PtraceCont(pid, 0); err != nil {
		if ev, failed := c.ptraceErr(err, pid, RoleForkserver, "CONT"); failed {
			return ev
		}
	}
	return ok(RoleForkserver)
}

// --- Tracee sequence -----------------------------------------------------

// TraceeWaitInitialStop consumes the SIGSTOP a just-forked, auto-traced
// child delivers before any ptrace request requiring a stopped tracee can
// be issued against it.
func (c *Controller) TraceeWaitInitialStop(pid int) TraceEvent {
	return c.wait(pid, RoleTracee, syscall.SIGSTOP)
}

// TraceeResumeUntilRead single-steps the tracee by syscalls until it issues
// read(), silently skipping any other syscall along the way (the same
// permissive "first read" posture the forkserver's equivalent wait uses,
// and what the original tracer's forked_resume_until_read does). A read
// from the wrong fd, once it happens, is neutralized and classified as
// illegal.
func (c *Controller) TraceeResumeUntilRead(pid int) TraceEvent {
	for {
		if err := syscall.PtraceSyscall(pid, 0); err != nil {
			if ev, failed := c.ptraceErr(err, pid, RoleTracee, "SYSCALL"); failed {
				return ev
			}
		}
		if ev := c.wait(pid, RoleTracee, syscallSIGTRAP); !ev.IsOK() {
			return ev
		}

		regs, ev, failed := c.getRegs(pid, RoleTracee)
		if failed {
			return ev
		}
		view := newSyscallView(&regs)

		if view.Number() != unix.SYS_READ {
			continue
		}

		arg1 := int64(view.Arg(0))
		if arg1 != int64(c.cfg.TraceeReadFD()) {
			if ev, failed := c.neutralize(pid, RoleTracee, &regs); failed {
				return ev
			}
			return illegalSyscall(int64(unix.SYS_READ), arg1, int64(view.Arg(2)))
		}
		return ok(RoleTracee)
	}
}

// isMemorySizingSyscall reports whether nr is one of the primitives whose
// return value the controller inspects for -ENOMEM once they are allowed to
// run.
func isMemorySizingSyscall(nr uint64) bool {
	return nr == unix.SYS_MMAP || nr == unix.SYS_BRK || nr == unix.SYS_MREMAP
}

// NextRW selects which protocol syscall TraceeTraceUntilRW should advance
// to next, matching the external interface's `next ∈ {0,1}` parameter.
type NextRW int

const (
	NextRead  NextRW = 0
	NextWrite NextRW = 1
)

func (n NextRW) syscallNumber() uint64 {
	if n == NextWrite {
		return unix.SYS_WRITE
	}
	return unix.SYS_READ
}

// TraceeTraceUntilRW advances the tracee from its current syscall-exit-stop
// until it enters nextRW, policing every syscall in between: allowed
// syscalls are let through to their own exit-stop, the other protocol
// syscall out of turn or with a bad fd/count is neutralized and reported
// as illegal, and anything not on the allow-list is neutralized too.
func (c *Controller) TraceeTraceUntilRW(pid int, nextRW NextRW) TraceEvent {
	next := nextRW.syscallNumber()
	for {
		if err := syscall.PtraceSyscall(pid, 0); err != nil {
			if ev, failed := c.ptraceErr(err, pid, RoleTracee, "SYSCALL"); failed {
				return ev
			}
		}
		if ev := c.wait(pid, RoleTracee, syscallSIGTRAP); !ev.IsOK() {
			return ev
		}

		regs, ev, failed := c.getRegs(pid, RoleTracee)
		if failed {
			return ev
		}
		view := newSyscallView(&regs)
		nr := view.Number()

		switch {
		case nr == next:
			arg1 := int64(view.Arg(0))
			arg3 := int64(view.Arg(2))
			violated := false
			switch nr {
			case unix.SYS_READ:
				violated = arg1 != int64(c.cfg.TraceeReadFD())
			case unix.SYS_WRITE:
				violated = arg1 != int64(c.cfg.TraceeWriteFD()) || arg3 > int64(c.cfg.WriteMaxBytes())
			}
			if violated {
				if ev, failed := c.neutralize(pid, RoleTracee, &regs); failed {
					return ev
				}
				c.log.WithFields(logrus.Fields{"pid": pid, "nr": nr, "arg1": arg1, "arg3": arg3}).
					Debug("tracee protocol violation on its own turn")
				return illegalSyscall(int64(nr), arg1, arg3)
			}
			return ok(RoleTracee)

		case nr == unix.SYS_READ || nr == unix.SYS_WRITE:
			// The other protocol syscall, out of turn.
			if ev, failed := c.neutralize(pid, RoleTracee, &regs); failed {
				return ev
			}
			return illegalSyscall(int64(nr), int64(view.Arg(0)), int64(view.Arg(2)))

		case c.cfg.IsAllowed(nr):
			if err := syscall.PtraceSyscall(pid, 0); err != nil {
				if ev, failed := c.ptraceErr(err, pid, RoleTracee, "SYSCALL"); failed {
					return ev
				}
			}
			if ev := c.wait(pid, RoleTracee, syscallSIGTRAP); !ev.IsOK() {
				return ev
			}
			if isMemorySizingSyscall(nr) {
				exitRegs, ev, failed := c.getRegs(pid, RoleTracee)
				if failed {
					return ev
				}
				if int64(newSyscallView(&exitRegs).Return()) == -int64(unix.ENOMEM) {
					if ev, failed := c.neutralize(pid, RoleTracee, &exitRegs); failed {
						return ev
					}
					return outOfMemory()
				}
			}

		default:
			if ev, failed := c.neutralize(pid, RoleTracee, &regs); failed {
				return ev
			}
			return illegalSyscall(int64(nr), -1, -1)
		}
	}
}

// TraceeResumeReadSE resumes a tracee held at syscall-enter of read() to its
// syscall-exit-stop. If cap >= 0, arg3 (the byte count) is rewritten first;
// cap == -1 leaves it untouched.
func (c *Controller) TraceeResumeReadSE(pid int, cap int) TraceEvent {
	if cap >= 0 {
		regs, ev, failed := c.getRegs(pid, RoleTracee)
		if failed {
			return ev
		}
		newSyscallView(&regs).SetArg(2, uint64(cap))
		if ev, failed := c.setRegs(pid, RoleTracee, &regs); failed {
			return ev
		}
	}
	return c.resumeToSyscallExit(pid)
}

// TraceeResumeWriteSE resumes a tracee held at syscall-enter of write() to
// its syscall-exit-stop, with no register rewrite.
func (c *Controller) TraceeResumeWriteSE(pid int) TraceEvent {
	return c.resumeToSyscallExit(pid)
}

func (c *Controller) resumeToSyscallExit(pid int) TraceEvent {
	if err := syscall.PtraceSyscall(pid, 0); err != nil {
		if ev, failed := c.ptraceErr(err, pid, RoleTracee, "SYSCALL"); failed {
			return ev
		}
	}
	return c.wait(pid, RoleTracee, syscallSIGTRAP)
}

// Regs returns the tracee's current registers, for a Supervisor that needs
// to read the syscall return value after TraceeResumeReadSE/WriteSE (e.g.
// the actual byte count a read()/write() reports).
func (c *Controller) Regs(pid int) (syscall.PtraceRegs, TraceEvent, bool) {
	return c.getRegs(pid, RoleTracee)
}

// Kill force-kills pid. Exposed so a Supervisor reacting to a classified
// TraceEvent can ensure a misbehaving tracee is actually gone, mirroring
// the force-kill the controller performs internally on unexpected ptrace
// errnos.
func (c *Controller) Kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

package sandbox

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const sigevSignal = 0 // SIGEV_SIGNAL, from <bits/sigevent-consts.h>

// kernelSigevent mirrors the kernel's struct sigevent for the SIGEV_SIGNAL
// case, padded out to SIGEV_MAX_SIZE (64 bytes) the way the kernel ABI
// requires. glibc's timer_create() passes a SIGEV_SIGNAL sigevent straight
// through to the syscall with no thread-indirection games, which is what
// lets this package call the syscall directly instead of linking libc.
type kernelSigevent struct {
	value  [8]byte
	signo  int32
	notify int32
	pad    [(64 - 16) / 4]int32
}

// ArmCPUTimer creates a CLOCK_PROCESS_CPUTIME_ID timer and arms it with
// TIMER_ABSTIME semantics: deadline is an absolute CPU-time value, not a
// duration from now, and interval controls whether it re-arms after
// firing (the zero Timespec disarms rearming, same as struct itimerspec
// always has). Delivery sends sig to the calling process.
//
// This is grounded on tracee_start_cputime_timer in the original
// extension: same clock id, same TIMER_ABSTIME flag, same refusal to
// limp along if either syscall fails. A tracee that can't arm its own
// watchdog is a tracee the Supervisor can no longer bound, so this exits
// the process outright rather than returning an error a caller might
// swallow.
func ArmCPUTimer(sig unix.Signal, interval, deadline unix.Timespec) {
	var sev kernelSigevent
	sev.signo = int32(sig)
	sev.notify = sigevSignal

	var timerID uintptr
	if _, _, errno := unix.Syscall(unix.SYS_TIMER_CREATE,
		uintptr(unix.CLOCK_PROCESS_CPUTIME_ID),
		uintptr(unsafe.Pointer(&sev)),
		uintptr(unsafe.Pointer(&timerID)),
	); errno != 0 {
		fmt.Fprintf(os.Stderr, "sandbox: timer_create: %v\n", errno)
		os.Exit(1)
	}

	// unix.ItimerSpec is the same two-Timespec layout as POSIX struct
	// itimerspec; x/sys/unix only names it for timerfd, but the wire shape
	// timer_settime(2) expects is identical.
	spec := unix.ItimerSpec{Interval: interval, Value: deadline}
	if _, _, errno := unix.Syscall6(unix.SYS_TIMER_SETTIME,
		timerID,
		uintptr(unix.TIMER_ABSTIME),
		uintptr(unsafe.Pointer(&spec)),
		0, 0, 0,
	); errno != 0 {
		fmt.Fprintf(os.Stderr, "sandbox: timer_settime: %v\n", errno)
		os.Exit(1)
	}
}

package tracer

import "golang.org/x/sys/unix"

// PidfdGetfd lifts fd out of the process identified by pidfd, returning the
// duplicated descriptor in the caller's own fd table. This needs kernel
// >= 5.6, which ProbePlatform already requires. It is how the Supervisor
// harvests a descriptor (e.g. the tracee's end of a freshly-opened file)
// out of a sandboxed tracee without the tracee cooperating over the
// protocol pipe.
func PidfdGetfd(pidfd, fd int) (int, error) {
	return unix.PidfdGetfd(pidfd, fd, 0)
}

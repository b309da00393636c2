package tracer

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// minKernelMajor/minKernelMinor is the 5.6 floor: pidfd_getfd(2) needs it,
// and so does the ordering fix that runs seccomp filters after ptrace
// inspection rather than before (pre-5.6, a seccomp filter could hide a
// syscall from ptrace entirely).
const (
	minKernelMajor = 5
	minKernelMinor = 6
)

// PlatformInfo is the result of a successful probe.
type PlatformInfo struct {
	Arch          string
	KernelRelease string
}

// ProbePlatform checks the preconditions the state machine assumes: x86-64,
// and a kernel new enough for pidfd_getfd and the ptrace/seccomp ordering
// fix. It is meant to run once, at Controller construction, per the design
// notes ("platform probe at module init ... failure yields a fatal
// construction error; no lazy fallback").
func ProbePlatform() (PlatformInfo, error) {
	if runtime.GOARCH != "amd64" {
		return PlatformInfo{}, fmt.Errorf("unsupported architecture %q: this sandbox only supports x86-64", runtime.GOARCH)
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return PlatformInfo{}, fmt.Errorf("uname: %w", err)
	}
	release := unix.ByteSliceToString(uts.Release[:])

	major, minor, err := parseKernelVersion(release)
	if err != nil {
		return PlatformInfo{}, fmt.Errorf("cannot parse kernel release %q: %w", release, err)
	}
	if major < minKernelMajor || (major == minKernelMajor && minor < minKernelMinor) {
		return PlatformInfo{}, fmt.Errorf(
			"kernel %d.%d is too old: need >= %d.%d for pidfd_getfd and ptrace-before-seccomp ordering",
			major, minor, minKernelMajor, minKernelMinor)
	}

	return PlatformInfo{
		Arch:          runtime.GOARCH,
		KernelRelease: release,
	}, nil
}

func parseKernelVersion(release string) (major, minor int, err error) {
	fields := strings.SplitN(release, ".", 3)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("expected at least MAJOR.MINOR")
	}
	major, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("major version: %w", err)
	}
	// The minor field may carry a trailing suffix like "15-generic"; take
	// only its leading digits.
	minorDigits := fields[1]
	for i, r := range minorDigits {
		if r < '0' || r > '9' {
			minorDigits = minorDigits[:i]
			break
		}
	}
	minor, err = strconv.Atoi(minorDigits)
	if err != nil {
		return 0, 0, fmt.Errorf("minor version: %w", err)
	}
	return major, minor, nil
}

package sandbox

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	seccomp "github.com/seccomp/libseccomp-golang"
)

// nameCacheSize bounds the syscall-name-to-number resolution cache. A
// judge policy names at most a few hundred syscalls; this is headroom,
// not a tuned figure.
const nameCacheSize = 512

var nameCache, _ = lru.New[string, seccomp.ScmpSyscall](nameCacheSize)

// resolveSyscall resolves a syscall name to its platform-specific number,
// memoized in nameCache. libseccomp's own resolver walks a name table per
// call; the cache lives in the calling process's memory, so a name is
// looked up at most once per process (a forked child starts with whatever
// its parent had already cached).
func resolveSyscall(name string) (seccomp.ScmpSyscall, error) {
	if nr, ok := nameCache.Get(name); ok {
		return nr, nil
	}
	nr, err := seccomp.GetSyscallFromName(name)
	if err != nil {
		return 0, fmt.Errorf("resolve syscall %q: %w", name, err)
	}
	nameCache.Add(name, nr)
	return nr, nil
}

// InstallSyscallFilter builds a default-kill-process seccomp-bpf filter
// that allows exactly the named syscalls and loads it into the calling
// process. It is meant to run in the tracee as a backstop underneath the
// Controller's own ptrace-based policing, not as a replacement for it:
// the Controller can inspect and neutralize a syscall before it executes,
// while this filter only guarantees that anything it doesn't allow kills
// the process outright if ptrace tracing is ever absent or bypassed.
//
// Grounded on tracee_apply_seccomp in the original extension: same
// default action, the same exact-match allow rule per name, and the same
// fail-loud posture on any setup error, since a half-loaded filter is
// worse than none.
func InstallSyscallFilter(allowed []string) {
	filter, err := seccomp.NewFilter(seccomp.ActKillProcess)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandbox: seccomp_init: %v\n", err)
		os.Exit(1)
	}
	defer filter.Release()

	for _, name := range allowed {
		nr, err := resolveSyscall(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sandbox: %v\n", err)
			os.Exit(1)
		}
		if err := filter.AddRuleExact(nr, seccomp.ActAllow); err != nil {
			fmt.Fprintf(os.Stderr, "sandbox: seccomp_rule_add_exact(%s): %v\n", name, err)
			os.Exit(1)
		}
	}

	if err := filter.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "sandbox: seccomp_load: %v\n", err)
		os.Exit(1)
	}
}

package tracer

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// maxSyscallNumber bounds the allowed-syscall bitmap. The true ceiling is
// much lower, but syscall numbers have crept into the high 400s/500s over
// the years, so this leaves headroom without resorting to a map.
const maxSyscallNumber = 1024

// Config is the process-wide, Supervisor-owned policy the Controller reads
// while tracing. It is built once per session with NewConfig and mutated
// only through its Set* methods. The allow-list and pipe-fd setters validate
// before committing; SetWriteMaxBytes stores its value unchecked.
type Config struct {
	allowed            [maxSyscallNumber + 1]bool
	traceeReadFD       int
	traceeWriteFD      int
	forkserverReadFD   int
	forkserverWriteFD  int
	writeMaxBytes      int
}

// NewConfig returns a Config with all fds defaulted to -1 and no syscalls
// allowed, so an un-configured Config fails closed rather than open.
func NewConfig() *Config {
	return &Config{
		traceeReadFD:      -1,
		traceeWriteFD:     -1,
		forkserverReadFD:  -1,
		forkserverWriteFD: -1,
	}
}

// SetAllowedSyscalls replaces the allow-list wholesale. Every entry is
// validated before any of them is committed: if one entry is invalid, the
// previously-committed bitmap is left completely unchanged. All invalid
// entries are reported together via a multierror rather than failing fast
// on the first one, so a caller fixing a policy file sees every offending
// syscall number in one pass.
func (c *Config) SetAllowedSyscalls(nums []int) error {
	var result error
	next := [maxSyscallNumber + 1]bool{}

	for _, n := range nums {
		switch {
		case n == unix.SYS_READ || n == unix.SYS_WRITE:
			result = multierror.Append(result, fmt.Errorf(
				"syscall %d: read and write are reserved for the pipe protocol and must not be in the allow-list", n))
		case n < 0 || n > maxSyscallNumber:
			result = multierror.Append(result, fmt.Errorf(
				"syscall %d: out of range [0, %d]", n, maxSyscallNumber))
		default:
			next[n] = true
		}
	}

	if result != nil {
		return result
	}

	c.allowed = next
	return nil
}

// IsAllowed reports whether nr is in the configured allow-list. It never
// returns true for read or write; SetAllowedSyscalls refuses to admit them.
func (c *Config) IsAllowed(nr uint64) bool {
	if nr > maxSyscallNumber {
		return false
	}
	return c.allowed[nr]
}

// SetTraceePipeFDs sets the only fds a tracee may read from / write to.
func (c *Config) SetTraceePipeFDs(readFD, writeFD int) error {
	if readFD < 0 || writeFD < 0 {
		return fmt.Errorf("tracee pipe fds must be non-negative, got read=%d write=%d", readFD, writeFD)
	}
	c.traceeReadFD = readFD
	c.traceeWriteFD = writeFD
	return nil
}

// SetForkserverPipeFDs sets the fd whose first read marks forkserver
// readiness, and the reserved write fd kept only for symmetry.
func (c *Config) SetForkserverPipeFDs(readFD, writeFD int) error {
	if readFD < 0 || writeFD < 0 {
		return fmt.Errorf("forkserver pipe fds must be non-negative, got read=%d write=%d", readFD, writeFD)
	}
	c.forkserverReadFD = readFD
	c.forkserverWriteFD = writeFD
	return nil
}

// SetWriteMaxBytes sets the maximum count argument a tracee write() may use.
// Callers are expected to keep this strictly below the communication pipe's
// capacity; the Config does not know the pipe capacity and cannot enforce
// that half of the invariant itself.
func (c *Config) SetWriteMaxBytes(n int) {
	c.writeMaxBytes = n
}

func (c *Config) TraceeReadFD() int      { return c.traceeReadFD }
func (c *Config) TraceeWriteFD() int     { return c.traceeWriteFD }
func (c *Config) ForkserverReadFD() int  { return c.forkserverReadFD }
func (c *Config) ForkserverWriteFD() int { return c.forkserverWriteFD }
func (c *Config) WriteMaxBytes() int     { return c.writeMaxBytes }

package tracer

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestClassifySignaled(t *testing.T) {
	ws := syscall.WaitStatus(syscall.SIGKILL)
	ev := classify(RoleTracee, ws, syscall.SIGSTOP)
	assert.Equal(t, KindUnknownKill, ev.Kind)
}

func TestClassifyStoppedExpected(t *testing.T) {
	ws := syscall.WaitStatus(syscall.SIGSTOP<<8 | 0x7f)
	ev := classify(RoleTracee, ws, syscall.SIGSTOP)
	assert.True(t, ev.IsOK())
}

func TestClassifyStoppedUnexpectedSignal(t *testing.T) {
	ws := syscall.WaitStatus(syscall.SIGSTOP<<8 | 0x7f)
	ev := classify(RoleTracee, ws, syscallSIGTRAP)
	assert.Equal(t, KindUnknownSignal, ev.Kind)
}

func TestClassifyNeitherSignaledNorStopped(t *testing.T) {
	// A raw status that is neither WIFSIGNALED nor WIFSTOPPED is treated
	// as a continue notification.
	ws := syscall.WaitStatus(0xffff)
	ev := classify(RoleForkserver, ws, syscall.SIGSTOP)
	assert.Equal(t, KindUnexpectedCont, ev.Kind)
}

func TestIsMemorySizingSyscall(t *testing.T) {
	assert.True(t, isMemorySizingSyscall(unix.SYS_MMAP))
	assert.True(t, isMemorySizingSyscall(unix.SYS_BRK))
	assert.True(t, isMemorySizingSyscall(unix.SYS_MREMAP))
	assert.False(t, isMemorySizingSyscall(unix.SYS_GETPID))
	assert.False(t, isMemorySizingSyscall(unix.SYS_READ))
}

func TestNextRWSyscallNumber(t *testing.T) {
	assert.Equal(t, uint64(unix.SYS_READ), NextRead.syscallNumber())
	assert.Equal(t, uint64(unix.SYS_WRITE), NextWrite.syscallNumber())
}

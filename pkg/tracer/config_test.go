package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNewConfigFailsClosed(t *testing.T) {
	c := NewConfig()
	assert.False(t, c.IsAllowed(unix.SYS_GETPID))
	assert.Equal(t, -1, c.TraceeReadFD())
	assert.Equal(t, -1, c.TraceeWriteFD())
	assert.Equal(t, -1, c.ForkserverReadFD())
	assert.Equal(t, -1, c.ForkserverWriteFD())
}

func TestSetAllowedSyscallsRejectsReadWrite(t *testing.T) {
	c := NewConfig()
	err := c.SetAllowedSyscalls([]int{unix.SYS_GETPID, unix.SYS_READ})
	require.Error(t, err)
	assert.False(t, c.IsAllowed(unix.SYS_GETPID), "the whole batch must be rejected, not partially applied")
}

func TestSetAllowedSyscallsRejectsOutOfRange(t *testing.T) {
	c := NewConfig()
	err := c.SetAllowedSyscalls([]int{-1, maxSyscallNumber + 1})
	require.Error(t, err)
}

func TestSetAllowedSyscallsAggregatesErrors(t *testing.T) {
	c := NewConfig()
	err := c.SetAllowedSyscalls([]int{unix.SYS_READ, -5, maxSyscallNumber + 100})
	require.Error(t, err)
	// All three entries are bad; the multierror should mention more than
	// one without stopping at the first.
	assert.Contains(t, err.Error(), "3 errors occurred")
}

func TestSetAllowedSyscallsLeavesExistingBitmapOnFailure(t *testing.T) {
	c := NewConfig()
	require.NoError(t, c.SetAllowedSyscalls([]int{unix.SYS_GETPID}))
	require.Error(t, c.SetAllowedSyscalls([]int{unix.SYS_READ}))
	assert.True(t, c.IsAllowed(unix.SYS_GETPID), "a later failed call must not clobber the prior valid commit")
}

func TestIsAllowedNeverTrueForReadOrWrite(t *testing.T) {
	c := NewConfig()
	require.NoError(t, c.SetAllowedSyscalls([]int{unix.SYS_GETPID, unix.SYS_EXIT_GROUP}))
	assert.False(t, c.IsAllowed(unix.SYS_READ))
	assert.False(t, c.IsAllowed(unix.SYS_WRITE))
}

func TestIsAllowedOutOfBitmapRange(t *testing.T) {
	c := NewConfig()
	assert.False(t, c.IsAllowed(maxSyscallNumber+1))
	assert.False(t, c.IsAllowed(1<<40))
}

func TestSetPipeFDsRejectNegative(t *testing.T) {
	c := NewConfig()
	assert.Error(t, c.SetTraceePipeFDs(-1, 4))
	assert.Error(t, c.SetTraceePipeFDs(3, -1))
	assert.Error(t, c.SetForkserverPipeFDs(-1, 0))

	require.NoError(t, c.SetTraceePipeFDs(3, 4))
	assert.Equal(t, 3, c.TraceeReadFD())
	assert.Equal(t, 4, c.TraceeWriteFD())
}

func TestSetWriteMaxBytes(t *testing.T) {
	c := NewConfig()
	c.SetWriteMaxBytes(4096)
	assert.Equal(t, 4096, c.WriteMaxBytes())
}

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSyscallCaches(t *testing.T) {
	nr, err := resolveSyscall("getpid")
	require.NoError(t, err)

	cached, ok := nameCache.Get("getpid")
	require.True(t, ok)
	assert.Equal(t, nr, cached)
}

func TestResolveSyscallUnknownName(t *testing.T) {
	_, err := resolveSyscall("not_a_real_syscall_name")
	assert.Error(t, err)
}

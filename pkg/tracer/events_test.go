package tracer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindOK:             "ok",
		KindUnknownKill:    "unknown_kill",
		KindUnknownSignal:  "unknown_signal",
		KindUnexpectedCont: "unexpected_cont",
		KindIllegalSyscall: "illegal_syscall",
		KindOutOfMemory:    "out_of_memory",
		KindSystemError:    "system_error",
		Kind(99):           "unknown",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "forkserver", RoleForkserver.String())
	assert.Equal(t, "tracee", RoleTracee.String())
}

func TestOKEventIsOKAndHasNilErr(t *testing.T) {
	ev := ok(RoleTracee)
	assert.True(t, ev.IsOK())
	assert.NoError(t, ev.Err())
}

func TestIllegalSyscallEventCarriesTriple(t *testing.T) {
	ev := illegalSyscall(42, 3, 128)
	assert.False(t, ev.IsOK())
	assert.Equal(t, KindIllegalSyscall, ev.Kind)
	assert.Equal(t, int64(42), ev.Illegal.Number)
	assert.Equal(t, int64(3), ev.Illegal.Arg1)
	assert.Equal(t, int64(128), ev.Illegal.Arg3)
	assert.Error(t, ev.Err())
}

func TestOutOfMemoryEvent(t *testing.T) {
	ev := outOfMemory()
	assert.Equal(t, KindOutOfMemory, ev.Kind)
	assert.Equal(t, RoleTracee, ev.Role)
	assert.Error(t, ev.Err())
}

func TestSystemErrorWrapsUnderlying(t *testing.T) {
	cause := errors.New("boom")
	ev := systemError(RoleForkserver, cause)
	assert.Equal(t, KindSystemError, ev.Kind)
	assert.ErrorIs(t, ev.Err(), cause)
}

func TestUnknownKillSignalContCarryStatus(t *testing.T) {
	for _, ctor := range []func(Role, int) TraceEvent{unknownKill, unknownSignal, unexpectedCont} {
		ev := ctor(RoleTracee, 0x1234)
		assert.False(t, ev.IsOK())
		assert.Equal(t, 0x1234, ev.Status)
		assert.Error(t, ev.Err())
	}
}

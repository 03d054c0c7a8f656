package readback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimit(t *testing.T) {
	assert.True(t, Infinite().IsInfinite())
	assert.Equal(t, "Infinite", Infinite().String())

	l := Finite(3)
	assert.False(t, l.IsInfinite())
	assert.Equal(t, uint64(3), l.Count())
	assert.Equal(t, "Finite(3)", l.String())
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateDispatched, StateAwaitingMap, StateReady} {
		assert.False(t, s.Terminal(), s.String())
	}
	assert.True(t, StateTerminated.Terminal())
	assert.True(t, StateFailed.Terminal())
}

func TestInstanceRequestsIgnoredOnceTerminated(t *testing.T) {
	inst := newInstance(1, counterDesc{rec: &recorder{}}, Finite(2), false)
	remaining, infinite := inst.Remaining()
	assert.Equal(t, uint64(2), remaining)
	assert.False(t, infinite)

	inst.setState(StateTerminated)
	inst.Cancel()
	inst.Reset()
	assert.False(t, inst.cancelRequested)
	assert.False(t, inst.resetRequested)
}

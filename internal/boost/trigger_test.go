package boost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEntered(t *testing.T, authority *gatedAuthority) {
	t.Helper()
	select {
	case <-authority.entered:
	case <-time.After(waitTimeout):
		t.Fatal("worker never started applying the boost")
	}
}

func TestTrigger_InputEventDebounce(t *testing.T) {
	authority := newGatedAuthority()
	c, fakeClock := newTestController(t, DefaultBoostOpts(2), authority)

	c.OnInputEvent(fakeClock.Now())
	waitEntered(t, authority)

	for i := 0; i < 10; i++ {
		c.OnInputEvent(fakeClock.Now())
	}
	assert.True(t, c.Status().ApplyPending)

	close(authority.release)
	waitForKind(t, c, KindOrdinary)
	waitForApplyDone(t, c)

	assert.Equal(t, 1, authority.fanoutCount())
	stats := c.Stats()
	assert.Equal(t, uint64(11), stats.InputEvents)
	assert.Equal(t, uint64(10), stats.InputDebounced)
	assert.Equal(t, uint64(1), stats.OrdinaryEpisodes)
	assert.Equal(t, fakeClock.Now().Add(DefaultBoostDuration), c.Status().RemovalDeadline)

	fakeClock.Step(DefaultBoostDuration)
	waitForKind(t, c, KindNone)
	assert.Equal(t, 2, authority.fanoutCount())
}

func TestTrigger_InputEventRecordsTimestamp(t *testing.T) {
	c, fakeClock := newTestController(t, DefaultBoostOpts(2), newAuthorityMock(0, 1))

	ts := fakeClock.Now().Add(-time.Second)
	c.OnInputEvent(ts)

	assert.Equal(t, ts, c.Status().LastTrigger)
	assert.True(t, c.BiasActive())
}

func TestTrigger_KickWithoutInputIsRejected(t *testing.T) {
	c, _ := newTestController(t, DefaultBoostOpts(2), newAuthorityMock(0, 1))

	assert.False(t, c.Kick())
	assert.Equal(t, KindNone, c.Kind())
	assert.False(t, c.BiasActive())
	assert.Equal(t, uint64(1), c.Stats().KicksRejected)
}

func TestTrigger_KickRecencyGuard(t *testing.T) {
	c, fakeClock := newTestController(t, DefaultBoostOpts(4), newAuthorityMock(0, 1, 2, 3))

	c.OnInputEvent(fakeClock.Now())
	waitForKind(t, c, KindOrdinary)
	waitForApplyDone(t, c)
	fakeClock.Step(DefaultBoostDuration)
	waitForKind(t, c, KindNone)

	// still within the window: 150ms + 4850ms == 5000ms
	fakeClock.Step(DefaultKickRecencyWindow - DefaultBoostDuration)
	require.True(t, c.Kick())
	assert.True(t, c.BiasActive())
	waitForKind(t, c, KindOrdinary)
	waitForApplyDone(t, c)
	fakeClock.Step(DefaultBoostDuration)
	waitForKind(t, c, KindNone)

	// now - last input > 5000ms
	assert.False(t, c.Kick())
	assert.Never(t, func() bool { return c.Kind() != KindNone }, 50*time.Millisecond, pollInterval)
	assertAllFloors(t, c, FloorUnset)
	assert.False(t, c.BiasActive())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.KicksAccepted)
	assert.Equal(t, uint64(1), stats.KicksRejected)
}

func TestTrigger_KickDroppedWhileApplyPending(t *testing.T) {
	authority := newGatedAuthority()
	c, fakeClock := newTestController(t, DefaultBoostOpts(2), authority)

	c.OnInputEvent(fakeClock.Now())
	waitEntered(t, authority)

	assert.False(t, c.Kick())

	close(authority.release)
	waitForApplyDone(t, c)
	assert.Equal(t, 1, authority.fanoutCount())

	assert.True(t, c.Kick())
	require.Eventually(t, func() bool { return c.Stats().OrdinaryEpisodes == 2 }, waitTimeout, pollInterval)
}

func TestTrigger_MaxKickIgnoresGuards(t *testing.T) {
	c, fakeClock := newTestController(t, DefaultBoostOpts(4), newAuthorityMock(0, 1, 2, 3))

	// no input was ever seen, max kick still applies
	c.MaxKick(300 * time.Millisecond)
	assert.Equal(t, KindMax, c.Kind())
	assert.True(t, c.BiasActive())
	assertAllFloors(t, c, FloorUnbounded)

	c.MaxKick(300 * time.Millisecond)
	assert.Equal(t, uint64(2), c.Stats().MaxKicks)

	fakeClock.Step(300 * time.Millisecond)
	waitForKind(t, c, KindNone)
	assert.False(t, c.BiasActive())
}

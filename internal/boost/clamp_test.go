package boost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestController_Clamp(t *testing.T) {
	for _, tc := range []struct {
		name      string
		floor     Floor
		policyMin uint64
		policyMax uint64
		result    uint64
	}{
		{
			name:      "unset keeps policy min",
			floor:     FloorUnset,
			policyMin: 300000,
			policyMax: 2400000,
			result:    300000,
		},
		{
			name:      "explicit floor raises policy min",
			floor:     1113600,
			policyMin: 300000,
			policyMax: 2400000,
			result:    1113600,
		},
		{
			name:      "explicit floor capped by policy max",
			floor:     1113600,
			policyMin: 300000,
			policyMax: 800000,
			result:    800000,
		},
		{
			name:      "explicit floor never lowers policy min",
			floor:     1113600,
			policyMin: 1500000,
			policyMax: 2400000,
			result:    1500000,
		},
		{
			name:      "unbounded pins min to max",
			floor:     FloorUnbounded,
			policyMin: 300000,
			policyMax: 2400000,
			result:    2400000,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := &Controller{floors: newFloorTable(8)}
			c.floors.Set(0, tc.floor)

			assert.Equal(t, tc.result, c.Clamp(0, tc.policyMin, tc.policyMax))
		})
	}
}

func TestController_ClampUnknownCore(t *testing.T) {
	c := &Controller{floors: newFloorTable(2)}
	c.floors.Fill(func(int) Floor { return FloorUnbounded })

	assert.Equal(t, uint64(300000), c.Clamp(7, 300000, 2400000))
}

func TestController_ClampDoesNotAllocate(t *testing.T) {
	c := &Controller{floors: newFloorTable(8)}
	c.floors.Fill(func(int) Floor { return 1113600 })

	allocs := testing.AllocsPerRun(100, func() {
		c.Clamp(3, 300000, 2400000)
	})
	assert.Zero(t, allocs)
}

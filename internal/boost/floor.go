package boost

import "sync/atomic"

// floorTable stores one Floor per possible core. Writers publish a fresh
// snapshot so readers always see a whole table from a single write.
type floorTable struct {
	snapshot atomic.Pointer[[]Floor]
}

func newFloorTable(numCores int) *floorTable {
	t := &floorTable{}
	floors := make([]Floor, numCores)
	t.snapshot.Store(&floors)
	return t
}

func (t *floorTable) Len() int {
	return len(*t.snapshot.Load())
}

// Get returns FloorUnset for cores outside the table.
func (t *floorTable) Get(core int) Floor {
	floors := *t.snapshot.Load()
	if core < 0 || core >= len(floors) {
		return FloorUnset
	}
	return floors[core]
}

func (t *floorTable) Set(core int, floor Floor) {
	t.update(func(floors []Floor) {
		if core >= 0 && core < len(floors) {
			floors[core] = floor
		}
	})
}

func (t *floorTable) Clear(core int) {
	t.Set(core, FloorUnset)
}

// Fill writes floorFunc(core) to every slot in a single publication.
func (t *floorTable) Fill(floorFunc func(core int) Floor) {
	t.update(func(floors []Floor) {
		for core := range floors {
			floors[core] = floorFunc(core)
		}
	})
}

func (t *floorTable) Snapshot() []Floor {
	floors := *t.snapshot.Load()
	out := make([]Floor, len(floors))
	copy(out, floors)
	return out
}

// update must only be called from a single writer at a time.
func (t *floorTable) update(mutate func(floors []Floor)) {
	current := *t.snapshot.Load()
	next := make([]Floor, len(current))
	copy(next, current)
	mutate(next)
	t.snapshot.Store(&next)
}

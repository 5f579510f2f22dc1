package tile

import (
	"sync"

	"github.com/leftmike/pax/sql"
)

// Registry allocates tile groups and maps item pointers back to their groups.
type Registry struct {
	mutex  sync.RWMutex
	lastID GroupID
	groups map[GroupID]*Group
}

func NewRegistry() *Registry {
	return &Registry{
		groups: map[GroupID]*Group{},
	}
}

func (reg *Registry) NewGroup(colTypes []sql.ColumnType, layout Layout, capacity int) (*Group,
	error) {

	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	g, err := newGroup(reg.lastID+1, colTypes, layout, capacity)
	if err != nil {
		return nil, err
	}
	reg.lastID += 1
	reg.groups[g.id] = g
	return g, nil
}

func (reg *Registry) Lookup(id GroupID) (*Group, bool) {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()

	g, ok := reg.groups[id]
	return g, ok
}

// Resolve returns the group and slot of ip.
func (reg *Registry) Resolve(ip ItemPointer) (*Group, int, bool) {
	g, ok := reg.Lookup(ip.Group)
	if !ok || int(ip.Slot) >= g.capacity {
		return nil, 0, false
	}
	return g, int(ip.Slot), true
}

package directory

import (
	"maps"
	"sync"

	"github.com/scrumdeck/core/internal/model"
)

// Directory is the in-memory index of known rooms. It is rebuilt from storage
// at startup and kept current by the gateway; it performs no I/O and is the
// authoritative answer to "does this room exist".
type Directory struct {
	mu    sync.RWMutex
	rooms map[model.RoomID]model.RoomSummary
}

func New() *Directory {
	return &Directory{
		rooms: make(map[model.RoomID]model.RoomSummary),
	}
}

func NewFrom(rooms map[model.RoomID]model.RoomSummary) *Directory {
	d := New()
	maps.Copy(d.rooms, rooms)
	return d
}

func (d *Directory) Put(id model.RoomID, summary model.RoomSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[id] = summary
}

func (d *Directory) Remove(id model.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, id)
}

func (d *Directory) Exists(id model.RoomID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[id]
	return ok
}

func (d *Directory) Get(id model.RoomID) (model.RoomSummary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.rooms[id]
	return s, ok
}

// List returns a copy; callers are free to range while the gateway mutates.
func (d *Directory) List() map[model.RoomID]model.RoomSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.rooms)
}

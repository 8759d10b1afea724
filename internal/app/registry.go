package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Sink    core.Sink
	Binding core.Binding
}

// Registry is the authoritative map from connection id to transport and
// room binding. It never notifies rooms itself.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.ConnID]*connEntry
	byRoom map[domain.RoomID]map[domain.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[domain.ConnID]*connEntry),
		byRoom: make(map[domain.RoomID]map[domain.ConnID]struct{}),
	}
}

func (r *Registry) Register(id domain.ConnID, sink core.Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return fmt.Errorf("register %s: %w", id, core.ErrDuplicateConnection)
	}
	r.conns[id] = &connEntry{Sink: sink}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("registered connection")
	return nil
}

// Bind overwrites any previous binding. It reports false for unknown ids.
func (r *Registry) Bind(id domain.ConnID, room domain.RoomID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	r.unindex(id, e.Binding.Room)
	e.Binding = core.Binding{Room: room, Name: name}
	r.index(id, room)
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Str("name", name).Msg("bound connection")
	return true
}

func (r *Registry) Unbind(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		r.unindex(id, e.Binding.Room)
		e.Binding = core.Unbound
	}
}

func (r *Registry) Lookup(id domain.ConnID) core.Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Binding
	}
	return core.Unbound
}

func (r *Registry) Sink(id domain.ConnID) (core.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Sink, true
	}
	return nil, false
}

// Unregister removes the entry and returns its last binding. Unknown ids
// yield (Unbound, false) so repeated disconnect signals are harmless.
func (r *Registry) Unregister(id domain.ConnID) (core.Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return core.Unbound, false
	}
	delete(r.conns, id)
	r.unindex(id, e.Binding.Room)
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	return e.Binding, true
}

// Recipients lists every connection currently bound to room.
func (r *Registry) Recipients(room domain.RoomID) []core.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byRoom[room]
	out := make([]core.Recipient, 0, len(ids))
	for id := range ids {
		out = append(out, core.Recipient{ID: id, Sink: r.conns[id].Sink})
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) index(id domain.ConnID, room domain.RoomID) {
	if room == "" {
		return
	}
	set, ok := r.byRoom[room]
	if !ok {
		set = make(map[domain.ConnID]struct{})
		r.byRoom[room] = set
	}
	set[id] = struct{}{}
}

func (r *Registry) unindex(id domain.ConnID, room domain.RoomID) {
	set, ok := r.byRoom[room]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.byRoom, room)
	}
}

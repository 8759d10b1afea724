package app

import (
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/metrics"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
)

type emitLock struct {
	mu   sync.Mutex
	refs int
}

// Router fans events out to the connections bound to a room. Fan-outs to
// the same room are serialized so every member observes one order.
type Router struct {
	registry *Registry
	metrics  *metrics.Metrics

	mu    sync.Mutex
	rooms map[domain.RoomID]*emitLock
}

func NewRouter(registry *Registry, m *metrics.Metrics) *Router {
	return &Router{
		registry: registry,
		metrics:  m,
		rooms:    make(map[domain.RoomID]*emitLock),
	}
}

// EmitToRoom delivers ev to every connection bound to room, sender included.
func (r *Router) EmitToRoom(room domain.RoomID, ev protocol.Outbound) core.PublishResult {
	return r.emit(room, "", ev)
}

// EmitToRoomExcept skips sender; used for notices about the sender itself.
func (r *Router) EmitToRoomExcept(room domain.RoomID, sender domain.ConnID, ev protocol.Outbound) core.PublishResult {
	return r.emit(room, sender, ev)
}

// EmitTo sends ev to a single connection.
func (r *Router) EmitTo(id domain.ConnID, ev protocol.Outbound) error {
	sink, ok := r.registry.Sink(id)
	if !ok {
		return core.ErrConnectionClosed
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	return sink.TrySend(frame)
}

// EmitRoster takes the roster snapshot while holding the room's emit lock,
// so members receive rosters in version order.
func (r *Router) EmitRoster(room domain.RoomID, except domain.ConnID, snapshot func(domain.RoomID) Roster) core.PublishResult {
	unlock := r.lockRoom(room)
	defer unlock()

	roster := snapshot(room)
	if len(roster.Members) == 0 {
		return core.PublishResult{}
	}
	return r.deliver(room, except, protocol.NewRoomUsers(roster.Version, roster.Members))
}

func (r *Router) emit(room domain.RoomID, except domain.ConnID, ev protocol.Outbound) core.PublishResult {
	unlock := r.lockRoom(room)
	defer unlock()
	return r.deliver(room, except, ev)
}

// deliver requires the room's emit lock.
func (r *Router) deliver(room domain.RoomID, except domain.ConnID, ev protocol.Outbound) core.PublishResult {
	res := core.PublishResult{}
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("type", ev.Type()).Msg("encode event")
		return res
	}

	for _, rc := range r.registry.Recipients(room) {
		if rc.ID == except {
			continue
		}
		if err := rc.Sink.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("room", string(room)).Str("conn", string(rc.ID)).Msg("delivery failed")
			res.Dropped = append(res.Dropped, rc.ID)
			continue
		}
		res.SentTo++
	}
	r.metrics.Delivered(res.SentTo, len(res.Dropped))
	log.Debug().Str("module", "app.router").Str("room", string(room)).Str("type", ev.Type()).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Router) lockRoom(room domain.RoomID) func() {
	r.mu.Lock()
	l, ok := r.rooms[room]
	if !ok {
		l = &emitLock{}
		r.rooms[room] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.rooms, room)
		}
		r.mu.Unlock()
	}
}

package app

import (
	"slices"
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Roster is a consistent copy of one room's members. Version grows by one
// on every mutation of the room.
type Roster struct {
	Room    domain.RoomID
	Version uint64
	Members []domain.Member
}

// LeaveResult describes the outcome of Presence.Leave.
type LeaveResult struct {
	Roster
	// Removed is false when no member held the connection (stale signal).
	Removed bool
	// Empty is true when the room was deleted by this call.
	Empty bool
}

type roomState struct {
	mu      sync.Mutex
	members []domain.Member
	version uint64
	// dead rooms were removed from the table; lockers must start over.
	dead bool
}

func (rs *roomState) indexByName(name string) int {
	return slices.IndexFunc(rs.members, func(m domain.Member) bool { return m.Name == name })
}

func (rs *roomState) indexByConn(conn domain.ConnID) int {
	return slices.IndexFunc(rs.members, func(m domain.Member) bool { return m.ConnID == conn })
}

func (rs *roomState) snapshot(id domain.RoomID) Roster {
	return Roster{Room: id, Version: rs.version, Members: slices.Clone(rs.members)}
}

// Presence is the room presence table. Mutations on one room are
// serialized by that room's lock; the table lock only guards the map.
// Lock order is room before table.
type Presence struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

func NewPresence() *Presence {
	return &Presence{rooms: make(map[domain.RoomID]*roomState)}
}

func (p *Presence) getOrCreate(id domain.RoomID) *roomState {
	p.mu.RLock()
	rs, ok := p.rooms[id]
	p.mu.RUnlock()
	if ok {
		return rs
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if rs, ok = p.rooms[id]; ok {
		return rs
	}
	rs = &roomState{}
	p.rooms[id] = rs
	return rs
}

func (p *Presence) get(id domain.RoomID) *roomState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rooms[id]
}

// lock returns the live state for id with its mutex held, or nil.
func (p *Presence) lock(id domain.RoomID) *roomState {
	for {
		rs := p.get(id)
		if rs == nil {
			return nil
		}
		rs.mu.Lock()
		if !rs.dead {
			return rs
		}
		rs.mu.Unlock()
	}
}

// Join admits name into room. A name already present keeps its position
// and takes over the new connection.
func (p *Presence) Join(id domain.RoomID, name string, conn domain.ConnID) Roster {
	roster, _ := p.JoinLimited(id, name, conn, 0)
	return roster
}

// JoinLimited is Join with a capacity bound for new names. A limit of zero
// or less admits unconditionally.
func (p *Presence) JoinLimited(id domain.RoomID, name string, conn domain.ConnID, limit int) (Roster, error) {
	for {
		rs := p.getOrCreate(id)
		rs.mu.Lock()
		if rs.dead {
			rs.mu.Unlock()
			continue
		}

		if idx := rs.indexByName(name); idx >= 0 {
			rs.members[idx].ConnID = conn
			rs.members[idx].Online = true
		} else {
			// a fresh room has zero members, so this never leaves an empty room behind
			if limit > 0 && len(rs.members) >= limit {
				rs.mu.Unlock()
				return Roster{}, core.ErrRoomFull
			}
			rs.members = append(rs.members, domain.NewMember(name, conn))
		}
		rs.version++
		out := rs.snapshot(id)
		rs.mu.Unlock()

		log.Info().Str("module", "app.presence").Str("room", string(id)).Str("name", name).Str("conn", string(conn)).Int("members", len(out.Members)).Msg("member joined")
		return out, nil
	}
}

// Leave removes the member holding conn. Unknown rooms and stale
// connection ids are no-ops.
func (p *Presence) Leave(id domain.RoomID, conn domain.ConnID) LeaveResult {
	return p.remove(id, conn, false)
}

// MarkOffline flags the member holding conn as offline without removing it.
func (p *Presence) MarkOffline(id domain.RoomID, conn domain.ConnID) (Roster, bool) {
	rs := p.lock(id)
	if rs == nil {
		return Roster{Room: id}, false
	}
	defer rs.mu.Unlock()
	idx := rs.indexByConn(conn)
	if idx < 0 || !rs.members[idx].Online {
		return rs.snapshot(id), false
	}
	rs.members[idx].Online = false
	rs.version++
	return rs.snapshot(id), true
}

// Expire removes the member holding conn only if it is still offline.
// A member that reconnected in the meantime holds a new conn and stays.
func (p *Presence) Expire(id domain.RoomID, conn domain.ConnID) LeaveResult {
	return p.remove(id, conn, true)
}

func (p *Presence) remove(id domain.RoomID, conn domain.ConnID, offlineOnly bool) LeaveResult {
	rs := p.lock(id)
	if rs == nil {
		return LeaveResult{Roster: Roster{Room: id}}
	}
	defer rs.mu.Unlock()

	idx := rs.indexByConn(conn)
	if idx < 0 || (offlineOnly && rs.members[idx].Online) {
		return LeaveResult{Roster: rs.snapshot(id)}
	}
	name := rs.members[idx].Name
	rs.members = slices.Delete(rs.members, idx, idx+1)
	rs.version++

	res := LeaveResult{Roster: rs.snapshot(id), Removed: true}
	if len(rs.members) == 0 {
		rs.dead = true
		p.mu.Lock()
		if p.rooms[id] == rs {
			delete(p.rooms, id)
		}
		p.mu.Unlock()
		res.Empty = true
	}
	log.Info().Str("module", "app.presence").Str("room", string(id)).Str("name", name).Str("conn", string(conn)).Bool("room_empty", res.Empty).Msg("member left")
	return res
}

// Snapshot returns the current roster with its version; unknown rooms
// yield an empty roster.
func (p *Presence) Snapshot(id domain.RoomID) Roster {
	rs := p.lock(id)
	if rs == nil {
		return Roster{Room: id, Members: []domain.Member{}}
	}
	defer rs.mu.Unlock()
	return rs.snapshot(id)
}

// Members returns the ordered roster; empty for unknown rooms.
func (p *Presence) Members(id domain.RoomID) []domain.Member {
	rs := p.lock(id)
	if rs == nil {
		return []domain.Member{}
	}
	defer rs.mu.Unlock()
	return slices.Clone(rs.members)
}

// Len reports how many rooms currently have members.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms)
}

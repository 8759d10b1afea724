package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) Join(ctx context.Context, id domain.ConnID, room domain.RoomID, name string) error {
	if room == "" || name == "" {
		return core.ErrInvalidJoinRequest
	}
	if err := domain.ValidateDisplayName(name); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidJoinRequest, err)
	}
	if _, ok := o.Registry.Sink(id); !ok {
		return fmt.Errorf("join %s: %w", id, core.ErrConnectionClosed)
	}
	limit, err := o.admission(ctx, room)
	if err != nil {
		return err
	}

	target := core.Binding{Room: room, Name: name}
	if prev := o.Registry.Lookup(id); prev.Bound() && prev != target {
		o.Registry.Unbind(id)
		o.depart(id, prev, false)
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("from_room", string(prev.Room)).Str("to_room", string(room)).Msg("rebinding")
	}

	if _, err := o.Presence.JoinLimited(room, name, id, limit); err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	o.Registry.Bind(id, room, name)
	o.Metrics.Joined()
	o.Metrics.SetRooms(o.Presence.Len())

	o.emit(room, id, protocol.Joined(name))
	o.emitRoster(room, "")
	return nil
}

// admission consults the directory when a check is enabled and returns the
// capacity to enforce (0 for none).
func (o *Orchestrator) admission(ctx context.Context, room domain.RoomID) (int, error) {
	if o.Directory == nil || (!o.Options.EnforceCapacity && !o.Options.RequireRegistered) {
		return 0, nil
	}
	info, err := o.Directory.Lookup(ctx, room)
	switch {
	case err == nil:
	case o.Options.RequireRegistered:
		return 0, err
	case errors.Is(err, core.ErrRoomNotFound):
		return 0, nil
	default:
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Msg("directory unavailable, admitting")
		return 0, nil
	}
	if o.Options.EnforceCapacity {
		return info.MaxMembers, nil
	}
	return 0, nil
}

func (o *Orchestrator) Disconnect(id domain.ConnID) {
	b, known := o.Registry.Unregister(id)
	if !known {
		return
	}
	o.Metrics.ConnectionClosed()
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(b.Room)).Msg("disconnected")
	if !b.Bound() {
		return
	}
	o.depart(id, b, true)
}

// depart removes id from b.Room and tells the remaining members. A
// disconnect under a grace period only marks the member offline.
func (o *Orchestrator) depart(id domain.ConnID, b core.Binding, disconnected bool) {
	if disconnected && o.Options.GracePeriod > 0 {
		if _, ok := o.Presence.MarkOffline(b.Room, id); !ok {
			return
		}
		o.emitRoster(b.Room, id)
		o.emit(b.Room, id, protocol.Left(b.Name))
		time.AfterFunc(o.Options.GracePeriod, func() { o.expire(id, b) })
		return
	}

	res := o.Presence.Leave(b.Room, id)
	if !res.Removed {
		// The seat belongs to a newer connection under the same name, so the
		// user is still present and a "left" notice would be false.
		log.Debug().Str("module", "orch").Str("conn", string(id)).Str("room", string(b.Room)).Msg("stale leave ignored")
		return
	}
	o.Metrics.SetRooms(o.Presence.Len())
	if !res.Empty {
		o.emitRoster(b.Room, id)
	}
	o.emit(b.Room, id, protocol.Left(b.Name))
}

func (o *Orchestrator) expire(id domain.ConnID, b core.Binding) {
	res := o.Presence.Expire(b.Room, id)
	if !res.Removed {
		return
	}
	o.Metrics.SetRooms(o.Presence.Len())
	if !res.Empty {
		o.emitRoster(b.Room, "")
	}
}

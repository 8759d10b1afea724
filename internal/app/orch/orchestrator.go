package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/metrics"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// EnforceCapacity rejects new names once a room holds MaxMembers.
	EnforceCapacity bool
	// RequireRegistered rejects room codes the directory does not know.
	RequireRegistered bool
	// GracePeriod keeps a disconnected member listed offline this long.
	GracePeriod time.Duration
}

// Orchestrator is the session lifecycle controller. Each connection moves
// Unbound -> Joined -> (Rebound | Left); Left happens once, on Disconnect.
type Orchestrator struct {
	Registry  *app.Registry
	Presence  *app.Presence
	Router    *app.Router
	Policy    app.Policy
	Directory core.RoomDirectory
	Metrics   *metrics.Metrics
	Options   Options
}

func (o *Orchestrator) Connect(id domain.ConnID, sink core.Sink) error {
	if err := o.Registry.Register(id, sink); err != nil {
		return err
	}
	o.Metrics.ConnectionOpened()
	log.Info().Str("module", "orch").Str("conn", string(id)).Msg("connected")
	return nil
}

// Serve applies the connection's inbound messages in arrival order. When
// events is closed the transport is gone and the connection is torn down.
func (o *Orchestrator) Serve(ctx context.Context, id domain.ConnID, events <-chan protocol.Inbound) {
	defer o.Disconnect(id)
	for ev := range events {
		o.Handle(ctx, id, ev)
	}
}

func (o *Orchestrator) Handle(ctx context.Context, id domain.ConnID, ev protocol.Inbound) {
	switch e := ev.(type) {
	case protocol.JoinRoom:
		if err := o.Join(ctx, id, domain.RoomID(e.RoomID), e.Username); err != nil {
			o.reject(id, err)
		}
	case protocol.SendMessage:
		o.SendMessage(id, e.Message)
	case protocol.WhoAmI:
		b := o.Registry.Lookup(id)
		o.reply(id, protocol.Identity{ID: id, RoomID: b.Room, Username: b.Name})
	case protocol.Ping:
		o.reply(id, protocol.Pong{})
	}
}

// ErrorCode maps a join failure to the code sent to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidJoinRequest):
		return protocol.CodeInvalidJoinRequest
	case errors.Is(err, core.ErrRoomFull):
		return protocol.CodeRoomFull
	case errors.Is(err, core.ErrRoomNotFound):
		return protocol.CodeRoomNotFound
	default:
		return protocol.CodeInternal
	}
}

func (o *Orchestrator) reject(id domain.ConnID, err error) {
	code := ErrorCode(err)
	o.Metrics.JoinRejected(code)
	log.Info().Err(err).Str("module", "orch").Str("conn", string(id)).Str("code", code).Msg("join rejected")
	o.reply(id, protocol.Error{Code: code, Message: err.Error()})
}

func (o *Orchestrator) reply(id domain.ConnID, ev protocol.Outbound) {
	if err := o.Router.EmitTo(id, ev); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(id)).Str("type", ev.Type()).Msg("reply failed")
	}
}

// emit fans ev out to room, skipping except when set, and hands slow
// recipients to the policy.
func (o *Orchestrator) emit(room domain.RoomID, except domain.ConnID, ev protocol.Outbound) {
	if except == "" {
		o.enforce(room, o.Router.EmitToRoom(room, ev))
		return
	}
	o.enforce(room, o.Router.EmitToRoomExcept(room, except, ev))
}

// emitRoster sends the room's current roster. The snapshot is taken by the
// router under its emit lock so rosters never arrive out of order.
func (o *Orchestrator) emitRoster(room domain.RoomID, except domain.ConnID) {
	o.enforce(room, o.Router.EmitRoster(room, except, o.Presence.Snapshot))
}

func (o *Orchestrator) enforce(room domain.RoomID, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			if sink, ok := o.Registry.Sink(slow); ok {
				log.Warn().Str("module", "orch").Str("room", string(room)).Str("conn", string(slow)).Msg("kicking slow member")
				sink.Close()
			}
		case app.NoAction:
		}
	}
}

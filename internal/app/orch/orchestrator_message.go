package orch

import (
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SendMessage broadcasts text to the sender's room, sender included.
// Messages from unbound connections are dropped.
func (o *Orchestrator) SendMessage(id domain.ConnID, text string) {
	b := o.Registry.Lookup(id)
	if !b.Bound() {
		log.Debug().Str("module", "orch").Str("conn", string(id)).Msg("message from unbound connection dropped")
		return
	}
	if text == "" {
		return
	}
	o.Metrics.MessageAccepted()
	o.emit(b.Room, "", protocol.ReceiveMessage{Username: b.Name, Message: text})
}

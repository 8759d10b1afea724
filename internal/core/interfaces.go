package core

import (
	"context"

	"github.com/dkeye/Relay/internal/domain"
)

// Binding is the room/identity a connection currently speaks for.
type Binding struct {
	Room domain.RoomID
	Name string
}

// Unbound is returned for connections that never joined or are unknown.
var Unbound = Binding{}

func (b Binding) Bound() bool { return b.Room != "" }

// Recipient pairs a connection id with its transport.
type Recipient struct {
	ID   domain.ConnID
	Sink Sink
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []domain.ConnID
}

//go:generate mockgen -source=interfaces.go -destination=mocks/directory_mock.go -package=mocks

// RoomDirectory is the room-metadata collaborator. The presence engine
// consults it only for optional capacity and registration checks.
type RoomDirectory interface {
	Create(ctx context.Context, groupName string, maxMembers int) (*domain.RoomInfo, error)
	Lookup(ctx context.Context, id domain.RoomID) (*domain.RoomInfo, error)
}

// Package protocol defines the messages exchanged with chat clients over the
// signal socket and their JSON envelope.
package protocol

import (
	"fmt"

	"github.com/dkeye/Relay/internal/domain"
)

const (
	TypeJoinRoom       = "join_room"
	TypeSendMessage    = "send_message"
	TypeWhoAmI         = "whoami"
	TypePing           = "ping"
	TypeReceiveMessage = "receive_message"
	TypeRoomUsers      = "room_users"
	TypeError          = "error"
	TypePong           = "pong"
)

// Error codes carried by Error.Code.
const (
	CodeInvalidJoinRequest = "invalid_join_request"
	CodeRoomFull           = "room_full"
	CodeRoomNotFound       = "room_not_found"
	CodeBadPayload         = "bad_payload"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

// Inbound is the closed set of messages a client may send.
type Inbound interface {
	inbound()
}

type JoinRoom struct {
	RoomID   string `json:"roomId" validate:"max=64"`
	Username string `json:"username" validate:"max=64"`
}

type SendMessage struct {
	Message string `json:"message" validate:"max=4096"`
}

type WhoAmI struct{}

type Ping struct{}

func (JoinRoom) inbound()    {}
func (SendMessage) inbound() {}
func (WhoAmI) inbound()      {}
func (Ping) inbound()        {}

// Outbound is anything the server pushes to a client.
type Outbound interface {
	Type() string
}

type ReceiveMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type User struct {
	ID       domain.ConnID `json:"id"`
	Username string        `json:"username"`
	Online   bool          `json:"online"`
}

// RoomUsers is the full ordered roster. Version lets clients drop a roster
// older than one they already rendered.
type RoomUsers struct {
	Version uint64
	Users   []User
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type Identity struct {
	ID       domain.ConnID `json:"id"`
	RoomID   domain.RoomID `json:"roomId,omitempty"`
	Username string        `json:"username,omitempty"`
}

type Pong struct{}

func (ReceiveMessage) Type() string { return TypeReceiveMessage }
func (RoomUsers) Type() string      { return TypeRoomUsers }
func (Error) Type() string          { return TypeError }
func (Identity) Type() string       { return TypeWhoAmI }
func (Pong) Type() string           { return TypePong }

func Joined(name string) ReceiveMessage {
	return ReceiveMessage{Username: domain.SystemName, Message: fmt.Sprintf("%s has joined the room", name)}
}

func Left(name string) ReceiveMessage {
	return ReceiveMessage{Username: domain.SystemName, Message: fmt.Sprintf("%s has left the room", name)}
}

func NewRoomUsers(version uint64, members []domain.Member) RoomUsers {
	users := make([]User, 0, len(members))
	for _, m := range members {
		users = append(users, User{ID: m.ConnID, Username: m.Name, Online: m.Online})
	}
	return RoomUsers{Version: version, Users: users}
}

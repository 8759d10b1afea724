package protocol

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	ErrBadPayload  = errors.New("bad payload")
	ErrUnknownType = errors.New("unknown message type")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type envelopeIn struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type envelopeOut struct {
	Type    string `json:"type"`
	Version uint64 `json:"version,omitempty"`
	Data    any    `json:"data"`
}

type bareOut struct {
	Type string `json:"type"`
}

// Decode parses one client frame into its tagged message.
func Decode(raw []byte) (Inbound, error) {
	var env envelopeIn
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch env.Type {
	case TypeJoinRoom:
		var m JoinRoom
		return decodeData(env.Data, &m)
	case TypeSendMessage:
		var m SendMessage
		return decodeData(env.Data, &m)
	case TypeWhoAmI:
		return WhoAmI{}, nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeData[T Inbound](data json.RawMessage, into *T) (Inbound, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrBadPayload)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if err := validate.Struct(into); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return *into, nil
}

// Encode wraps ev in the {"type","data"} envelope.
func Encode(ev Outbound) ([]byte, error) {
	switch e := ev.(type) {
	case RoomUsers:
		users := e.Users
		if users == nil {
			users = []User{}
		}
		return json.Marshal(envelopeOut{Type: e.Type(), Version: e.Version, Data: users})
	case Pong:
		return json.Marshal(bareOut{Type: e.Type()})
	default:
		return json.Marshal(envelopeOut{Type: ev.Type(), Data: ev})
	}
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const RoomCodeLen = 6

type RoomID string

// RoomInfo is the directory record for a room. The presence engine only
// ever needs ID and MaxMembers.
type RoomInfo struct {
	ID         RoomID    `json:"roomId"`
	GroupName  string    `json:"groupName"`
	MaxMembers int       `json:"maxMembers"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewRoomCode returns a short upper-case code a human can type.
func NewRoomCode() RoomID {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return RoomID(strings.ToUpper(raw[:RoomCodeLen]))
}

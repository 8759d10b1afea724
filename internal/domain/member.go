package domain

// ConnID identifies one live transport session. Never reused.
type ConnID string

// Member represents a participant's presence in a room.
// No transport or lifecycle logic here.
type Member struct {
	Name   string `json:"username"`
	ConnID ConnID `json:"id"`
	Online bool   `json:"online"`
}

// NewMember avoids raw literals in callers and keeps construction obvious.
func NewMember(name string, conn ConnID) Member {
	return Member{Name: name, ConnID: conn, Online: true}
}

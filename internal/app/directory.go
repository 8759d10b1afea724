package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

const codeAttempts = 8

// MemoryDirectory is a process-local room directory used when no Redis is
// configured.
type MemoryDirectory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.RoomInfo
	now   func() time.Time
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		rooms: make(map[domain.RoomID]domain.RoomInfo),
		now:   time.Now,
	}
}

func (d *MemoryDirectory) Create(_ context.Context, groupName string, maxMembers int) (*domain.RoomInfo, error) {
	if groupName == "" || maxMembers < 0 {
		return nil, fmt.Errorf("create room %q: invalid parameters", groupName)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for range codeAttempts {
		code := domain.NewRoomCode()
		if _, taken := d.rooms[code]; taken {
			continue
		}
		info := domain.RoomInfo{
			ID:         code,
			GroupName:  groupName,
			MaxMembers: maxMembers,
			CreatedAt:  d.now().UTC(),
		}
		d.rooms[code] = info
		log.Info().Str("module", "app.directory").Str("room", string(code)).Str("group", groupName).Int("max_members", maxMembers).Msg("room created")
		return &info, nil
	}
	return nil, fmt.Errorf("create room %q: no free code after %d attempts", groupName, codeAttempts)
}

func (d *MemoryDirectory) Lookup(_ context.Context, id domain.RoomID) (*domain.RoomInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.rooms[id]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", id, core.ErrRoomNotFound)
	}
	return &info, nil
}

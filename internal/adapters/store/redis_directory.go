// Package store holds persistence adapters for room metadata.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

const codeAttempts = 8

// RedisDirectory keeps room records as JSON under room:<code>.
type RedisDirectory struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisDirectory connects and verifies connectivity.
func NewRedisDirectory(ctx context.Context, cfg config.RedisConfig) (*RedisDirectory, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Info().Str("module", "store.redis").Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected")
	return &RedisDirectory{rdb: rdb, ttl: cfg.RoomTTL, now: time.Now}, nil
}

func (d *RedisDirectory) Create(ctx context.Context, groupName string, maxMembers int) (*domain.RoomInfo, error) {
	if groupName == "" || maxMembers < 0 {
		return nil, fmt.Errorf("create room %q: invalid parameters", groupName)
	}
	for range codeAttempts {
		info := domain.RoomInfo{
			ID:         domain.NewRoomCode(),
			GroupName:  groupName,
			MaxMembers: maxMembers,
			CreatedAt:  d.now().UTC(),
		}
		raw, err := json.Marshal(info)
		if err != nil {
			return nil, err
		}
		ok, err := d.rdb.SetNX(ctx, key(info.ID), raw, d.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("create room %q: %w", groupName, err)
		}
		if ok {
			log.Info().Str("module", "store.redis").Str("room", string(info.ID)).Str("group", groupName).Int("max_members", maxMembers).Msg("room created")
			return &info, nil
		}
	}
	return nil, fmt.Errorf("create room %q: no free code after %d attempts", groupName, codeAttempts)
}

func (d *RedisDirectory) Lookup(ctx context.Context, id domain.RoomID) (*domain.RoomInfo, error) {
	raw, err := d.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("lookup %s: %w", id, core.ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", id, err)
	}
	var info domain.RoomInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("lookup %s: decode: %w", id, err)
	}
	return &info, nil
}

func (d *RedisDirectory) Close() error { return d.rdb.Close() }

func key(id domain.RoomID) string { return "room:" + string(id) }

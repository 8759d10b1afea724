package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
)

func newTestDirectory(t *testing.T, ttl time.Duration) (*RedisDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	d, err := NewRedisDirectory(context.Background(), config.RedisConfig{Addr: mr.Addr(), RoomTTL: ttl})
	if err != nil {
		t.Fatalf("NewRedisDirectory: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, mr
}

func TestRedisDirectoryCreateLookup(t *testing.T) {
	ctx := context.Background()
	d, mr := newTestDirectory(t, 0)

	info, err := d.Create(ctx, "Book club", 12)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !mr.Exists("room:" + string(info.ID)) {
		t.Fatalf("key for %s not stored", info.ID)
	}

	got, err := d.Lookup(ctx, info.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.ID != info.ID || got.GroupName != "Book club" || got.MaxMembers != 12 {
		t.Fatalf("Lookup = %+v", got)
	}
	if !got.CreatedAt.Equal(info.CreatedAt) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, info.CreatedAt)
	}
}

func TestRedisDirectoryNotFound(t *testing.T) {
	d, _ := newTestDirectory(t, 0)
	if _, err := d.Lookup(context.Background(), "ZZZZZZ"); !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("Lookup = %v", err)
	}
}

func TestRedisDirectoryTTL(t *testing.T) {
	ctx := context.Background()
	d, mr := newTestDirectory(t, time.Hour)

	info, err := d.Create(ctx, "Ephemeral", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ttl := mr.TTL("room:" + string(info.ID)); ttl != time.Hour {
		t.Fatalf("TTL = %v", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := d.Lookup(ctx, info.ID); !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("expired room still found: %v", err)
	}
}

func TestRedisDirectoryUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisDirectory(context.Background(), config.RedisConfig{Addr: addr}); err == nil {
		t.Fatal("connected to a closed server")
	}
}

package app

import (
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// fakeSink records frames; a full sink rejects with ErrBackpressure.
type fakeSink struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (s *fakeSink) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return core.ErrConnectionClosed
	case s.full:
		return core.ErrBackpressure
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func domainConn(s string) domain.ConnID { return domain.ConnID(s) }
func domainRoom(s string) domain.RoomID { return domain.RoomID(s) }

// gatedSink blocks its first delivery until gate is closed, holding the
// router's emit lock for that room.
type gatedSink struct {
	fakeSink
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedSink() *gatedSink {
	return &gatedSink{entered: make(chan struct{}), gate: make(chan struct{})}
}

func (s *gatedSink) TrySend(f core.Frame) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.gate
	})
	return s.fakeSink.TrySend(f)
}

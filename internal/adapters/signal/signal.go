package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	RateLimit      int
	RateInterval   time.Duration
	AllowedOrigins []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:      cfg.Signal.ReadLimit,
		PingPeriod:     cfg.Signal.PingPeriod,
		PongWait:       cfg.Signal.PongWait,
		WriteWait:      cfg.Signal.WriteWait,
		SendBuffer:     cfg.Signal.SendBuffer,
		RateLimit:      cfg.Signal.RateLimit,
		RateInterval:   cfg.Signal.RateInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	}
}

// SignalWSController owns every chat socket. One controller serves the
// whole process; Wait blocks until all pumps have exited.
type SignalWSController struct {
	Orch *orch.Orchestrator

	opts     Options
	upgrader websocket.Upgrader
	limiter  *RateLimiter
	wg       conc.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	origins := newOriginPolicy(opts.AllowedOrigins)
	return &SignalWSController{
		Orch:     o,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: origins.check},
		limiter:  NewRateLimiter(opts.RateLimit, opts.RateInterval),
	}
}

// WsSignalConn is the core.Sink of one socket. Frames are queued for the
// write pump; a full queue is reported as backpressure.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// HandleSignal upgrades the request and starts the connection's pumps.
// It returns once the pumps are running.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	id := domain.ConnID(uuid.NewString())
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	if err := ctl.Orch.Connect(id, conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("connect")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan protocol.Inbound, ctl.opts.SendBuffer)

	ctl.wg.Go(func() {
		ctl.writePump(ctx, id, conn)
	})
	ctl.wg.Go(func() {
		defer cancel()
		defer close(events)
		ctl.readPump(ctx, id, conn, events)
	})
	ctl.wg.Go(func() {
		defer ctl.limiter.Forget(id)
		ctl.Orch.Serve(ctx, id, events)
	})
}

// Wait blocks until every connection started by HandleSignal is torn down.
func (ctl *SignalWSController) Wait() {
	ctl.wg.Wait()
}

// sendError writes straight to the socket queue; the connection may not be
// registered yet or any more.
func (ctl *SignalWSController) sendError(id domain.ConnID, c *WsSignalConn, code string, cause error) {
	frame, err := protocol.Encode(protocol.Error{Code: code, Message: fmt.Sprint(cause)})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode error frame")
		return
	}
	if err := c.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("code", code).Msg("error frame dropped")
	}
}

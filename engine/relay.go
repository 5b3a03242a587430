package engine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/mcp-proxy/codec"
	"github.com/viant/mcp-proxy/reconnect"
	"github.com/viant/mcp-proxy/session"
	"github.com/viant/mcp-proxy/upstream"
	"golang.org/x/sync/errgroup"
)

// Relay re-exposes a remote SSE server to local SSE sessions. The upstream
// link is owned by a reconnection controller; losing it is never fatal, the
// downstream surface keeps serving and messages posted while disconnected
// are dropped, never queued.
type Relay struct {
	config     *Config
	log        *logrus.Entry
	registry   *session.Registry
	controller *reconnect.Controller
	connMux    sync.RWMutex
	conn       *upstream.Conn
}

// NewRelay returns the sse-relay engine.
func NewRelay(config *Config) *Relay {
	return &Relay{
		config:     config,
		log:        config.Logger.WithField("engine", ModeSSERelay),
		registry:   session.NewRegistry(),
		controller: reconnect.New(reconnect.Config{MaxAttempts: config.MaxAttempts}),
	}
}

// Run serves the downstream surface and keeps the upstream link alive until
// ctx is cancelled or the listener fails.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.controller.Stop()

	server := newHTTPServer(r.config, r.registry, r.forward, r.log)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(groupCtx)
	})
	group.Go(func() error {
		r.maintain(groupCtx)
		return nil
	})
	r.controller.Kick()
	return group.Wait()
}

// maintain owns the upstream lifecycle: it dials whenever the controller
// says so and reports outcomes back to it.
func (r *Relay) maintain(ctx context.Context) {
	terminal := r.controller.Terminal()
	for {
		select {
		case <-r.controller.C():
			r.connect(ctx)
			terminal = r.controller.Terminal()
		case <-terminal:
			r.log.WithError(r.controller.LastError()).Error("upstream attempts exhausted, serving downstream without upstream")
			terminal = nil
		case <-ctx.Done():
			if conn := r.current(); conn != nil {
				conn.Close()
			}
			return
		}
	}
}

func (r *Relay) connect(ctx context.Context) {
	log := r.log.WithField("attempt", r.controller.Attempts()+1)
	log.Info("connecting upstream")
	conn, err := upstream.Dial(ctx, r.log, r.config.UpstreamURL, r.config.ConnectTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).WithField("kind", upstream.Kind(err)).Warn("upstream connection failed")
		r.controller.Failed(err)
		return
	}
	r.setConn(conn)
	r.controller.Connected()
	log.WithField("endpoint", conn.Endpoint()).Info("upstream connected")
	go r.pump(ctx, conn)
}

// pump broadcasts upstream frames downstream until the connection dies, then
// hands the failure to the controller.
func (r *Relay) pump(ctx context.Context, conn *upstream.Conn) {
	events := conn.Events()
	for {
		select {
		case payload, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			message, err := codec.Decode(payload)
			if err != nil {
				r.log.WithError(err).Warn("skipping unparseable upstream frame")
				continue
			}
			r.log.WithFields(logrus.Fields{"method": message.Method, "sessions": r.registry.Len()}).Debug("broadcasting upstream frame")
			for _, id := range r.registry.Broadcast(payload) {
				r.log.WithField("session", id).Warn("pruning unresponsive session")
				r.registry.Remove(id)
			}
		case <-conn.Done():
			r.clearConn(conn)
			if ctx.Err() != nil {
				return
			}
			err := conn.Err()
			r.log.WithError(err).WithField("kind", upstream.Kind(err)).Warn("upstream connection lost")
			r.controller.Failed(err)
			return
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// forward delivers one downstream message to the current upstream
// connection. With no upstream the message is dropped and a reconnect is
// requested when none is pending.
func (r *Relay) forward(ctx context.Context, frame []byte) error {
	conn := r.current()
	if conn == nil {
		state := r.controller.State()
		r.log.WithField("state", state.String()).Warn("upstream not connected, dropping message")
		if state == reconnect.StateTerminal {
			// downstream traffic is the signal to try again after exhaustion
			r.controller.Restart()
		} else {
			r.controller.Kick()
		}
		return nil
	}
	if err := conn.Send(ctx, frame); err != nil {
		r.log.WithError(err).Warn("failed to forward message upstream, dropping")
	}
	return nil
}

func (r *Relay) setConn(conn *upstream.Conn) {
	r.connMux.Lock()
	defer r.connMux.Unlock()
	r.conn = conn
}

func (r *Relay) clearConn(conn *upstream.Conn) {
	r.connMux.Lock()
	defer r.connMux.Unlock()
	if r.conn == conn {
		r.conn = nil
	}
}

func (r *Relay) current() *upstream.Conn {
	r.connMux.RLock()
	defer r.connMux.RUnlock()
	return r.conn
}

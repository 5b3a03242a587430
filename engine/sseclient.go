package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
	"github.com/viant/mcp-proxy/codec"
	"github.com/viant/mcp-proxy/internal/collection"
	"github.com/viant/mcp-proxy/upstream"
	"golang.org/x/sync/errgroup"
)

// handshakeId is the request id of the proxy's own initialize call.
const handshakeId = 1

// SSEClient exposes a remote SSE server as a local stdio server. Requests
// arriving on stdin are forwarded upstream and answered with the correlated
// response; everything else passes through.
type SSEClient struct {
	config   *Config
	log      *logrus.Entry
	pending  *collection.SyncMap[string, chan []byte]
	stdin    io.Reader
	stdout   io.Writer
	writeMux sync.Mutex
	info     schema.Implementation
}

// NewSSEClient returns the sse-client bridge engine.
func NewSSEClient(config *Config) *SSEClient {
	return &SSEClient{
		config:  config,
		log:     config.Logger.WithField("engine", ModeSSEClient),
		pending: collection.NewSyncMap[string, chan []byte](),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		info:    schema.Implementation{Name: "mcp-proxy", Version: "1.0"},
	}
}

// Run dials the upstream, completes the initialize handshake and only then
// starts consuming stdin. The upstream going away is fatal; stdin closing is
// an orderly shutdown.
func (e *SSEClient) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := upstream.Dial(ctx, e.log, e.config.UpstreamURL, e.config.ConnectTimeout)
	if err != nil {
		e.log.WithError(err).WithField("kind", upstream.Kind(err)).Error("failed to connect upstream")
		return err
	}
	defer conn.Close()

	result, err := e.handshake(ctx, conn)
	if err != nil {
		e.log.WithError(err).Error("upstream handshake failed")
		return err
	}
	e.log.WithFields(logrus.Fields{
		"server":  result.ServerInfo.Name,
		"version": result.ServerInfo.Version,
	}).Info("upstream session established")

	stdinDone := make(chan struct{})
	go func() {
		defer close(stdinDone)
		framer := codec.NewFramer(codec.MaxFrameSize)
		_ = codec.Pump(e.stdin, framer,
			func(frame []byte) {
				e.handleLocal(ctx, conn, frame)
			},
			func(err error) {
				e.log.WithError(err).Warn("oversized frame on stdin")
			})
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return e.readUpstream(groupCtx, conn)
	})
	group.Go(func() error {
		select {
		case <-stdinDone:
			e.log.Info("stdin closed, shutting down")
			cancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})
	return group.Wait()
}

// handshake performs the initialize exchange; no local input is accepted
// until it fully succeeds.
func (e *SSEClient) handshake(ctx context.Context, conn *upstream.Conn) (*schema.InitializeResult, error) {
	params := &schema.InitializeRequestParams{
		Capabilities:    schema.ClientCapabilities{},
		ClientInfo:      e.info,
		ProtocolVersion: schema.LatestProtocolVersion,
	}
	request, err := codec.NewRequest(handshakeId, schema.MethodInitialize, params)
	if err != nil {
		return nil, err
	}
	if err := conn.Send(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to send initialize: %w", err)
	}
	handshakeKey := codec.IdKey(json.RawMessage(fmt.Sprintf("%d", handshakeId)))
	timer := time.NewTimer(e.config.ConnectTimeout)
	defer timer.Stop()
	for {
		select {
		case payload, ok := <-conn.Events():
			if !ok {
				return nil, fmt.Errorf("upstream closed during handshake")
			}
			message, err := codec.Decode(payload)
			if err != nil {
				e.log.WithError(err).Warn("skipping unparseable upstream frame")
				continue
			}
			if !message.IsResponse() || codec.IdKey(message.Id) != handshakeKey {
				// server chatter ahead of the handshake still belongs to the caller
				e.writeFrame(payload)
				continue
			}
			if message.Error != nil {
				return nil, fmt.Errorf("initialize rejected: %v", message.Error.Message)
			}
			var result schema.InitializeResult
			if err := json.Unmarshal(message.Result, &result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal InitializeResult: %w", err)
			}
			initialized, err := codec.NewNotification(schema.MethodNotificationInitialized, nil)
			if err != nil {
				return nil, err
			}
			if err := conn.Send(ctx, initialized); err != nil {
				return nil, fmt.Errorf("failed to notify initialized: %w", err)
			}
			return &result, nil
		case <-conn.Done():
			return nil, fmt.Errorf("upstream closed during handshake: %w", conn.Err())
		case <-timer.C:
			return nil, fmt.Errorf("initialize timed out after %v: %w", e.config.ConnectTimeout, context.DeadlineExceeded)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// readUpstream routes inbound frames: responses complete their pending
// request, everything else goes to stdout. The upstream closing is fatal.
func (e *SSEClient) readUpstream(ctx context.Context, conn *upstream.Conn) error {
	events := conn.Events()
	for {
		select {
		case payload, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.route(payload)
		case <-conn.Done():
			if ctx.Err() != nil {
				return nil
			}
			err := conn.Err()
			e.log.WithError(err).WithField("kind", upstream.Kind(err)).Error("upstream connection closed")
			return fmt.Errorf("upstream connection closed: %w", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *SSEClient) route(payload []byte) {
	message, err := codec.Decode(payload)
	if err != nil {
		e.log.WithError(err).Warn("skipping unparseable upstream frame")
		return
	}
	if message.IsResponse() {
		if waiter, ok := e.pending.Take(codec.IdKey(message.Id)); ok {
			waiter <- payload
			return
		}
	}
	e.writeFrame(payload)
}

// handleLocal processes one frame read from stdin.
func (e *SSEClient) handleLocal(ctx context.Context, conn *upstream.Conn, frame []byte) {
	message, err := codec.Decode(frame)
	if err != nil {
		e.log.WithError(err).Warn("skipping unparseable stdin frame")
		return
	}
	if !message.IsRequest() {
		// notifications and responses pass through without an answer
		e.writeFrame(frame)
		return
	}
	log := e.log.WithFields(logrus.Fields{"method": message.Method, "id": string(message.Id)})
	waiter := make(chan []byte, 1)
	key := codec.IdKey(message.Id)
	e.pending.Put(key, waiter)
	defer e.pending.Delete(key)

	log.Debug("forwarding request upstream")
	if err := conn.Send(ctx, frame); err != nil {
		log.WithError(err).Error("failed to forward request upstream")
		e.writeFrame(e.syntheticError(message.Id, 0, err.Error()))
		return
	}
	select {
	case response := <-waiter:
		e.completeRequest(message.Id, response)
	case <-conn.Done():
		log.Error("upstream closed while awaiting response")
		e.writeFrame(e.syntheticError(message.Id, 0, "upstream connection closed"))
	case <-ctx.Done():
		// the run context also ends on upstream loss, re-check before staying silent
		select {
		case <-conn.Done():
			log.Error("upstream closed while awaiting response")
			e.writeFrame(e.syntheticError(message.Id, 0, "upstream connection closed"))
		default:
		}
	}
}

// completeRequest relays the upstream answer, re-wrapping error responses so
// the caller sees the original code and a message cleaned of the transport
// prefix.
func (e *SSEClient) completeRequest(id json.RawMessage, response []byte) {
	message, err := codec.Decode(response)
	if err != nil {
		e.writeFrame(e.syntheticError(id, 0, "malformed upstream response"))
		return
	}
	if message.Error != nil {
		e.writeFrame(e.syntheticError(id, message.Error.Code, message.Error.Message))
		return
	}
	e.writeFrame(response)
}

func (e *SSEClient) syntheticError(id json.RawMessage, code int, message string) []byte {
	if code == 0 {
		code = codec.ServerError
	}
	return codec.ErrorResponse(id, jsonrpc.NewError(code, codec.CleanErrorMessage(message), nil))
}

func (e *SSEClient) writeFrame(frame []byte) {
	e.writeMux.Lock()
	defer e.writeMux.Unlock()
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	if _, err := e.stdout.Write(buf); err != nil {
		e.log.WithError(err).Error("failed to write frame to stdout")
	}
}

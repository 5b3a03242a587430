package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-proxy/codec"
	"github.com/viant/mcp-proxy/session"
)

// httpServer hosts the downstream surface shared by the stdio and relay
// engines: the SSE stream, the message endpoint and the health paths.
type httpServer struct {
	config   *Config
	registry *session.Registry
	sink     func(ctx context.Context, frame []byte) error
	log      *logrus.Entry
	server   *http.Server
}

func newHTTPServer(config *Config, registry *session.Registry, sink func(ctx context.Context, frame []byte) error, log *logrus.Entry) *httpServer {
	s := &httpServer{
		config:   config,
		registry: registry,
		sink:     sink,
		log:      log,
	}
	var middlewares []Middleware
	if config.EnableCORS {
		cors := config.Cors
		if cors == nil {
			cors = defaultCors()
		}
		middlewares = append(middlewares, cors.Middleware)
	}
	middlewares = append(middlewares, requestLogging(log))

	mux := http.NewServeMux()
	mux.Handle(config.SSEPath, chain(http.HandlerFunc(s.handleSSE), middlewares...))
	mux.Handle(config.MessagePath, chain(http.HandlerFunc(s.handleMessage), middlewares...))
	for _, path := range config.HealthPaths {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		if path == config.SSEPath || path == config.MessagePath {
			continue
		}
		mux.HandleFunc(path, s.handleHealth)
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: mux,
	}
	return s
}

// Serve blocks until the listener fails or ctx is cancelled. Cancellation
// closes every session, drains the server and returns nil.
func (s *httpServer) Serve(ctx context.Context) error {
	failed := make(chan error, 1)
	go func() {
		failed <- s.server.ListenAndServe()
	}()
	s.log.WithField("addr", s.server.Addr).Info("http server listening")
	select {
	case err := <-failed:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.registry.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	}
}

// handleSSE registers a session and streams its queue until the client goes
// away. The handshake event names the message endpoint for this session.
func (s *httpServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sess := session.New()
	s.registry.Add(sess)
	defer s.registry.Remove(sess.Id())
	log := s.log.WithField("session", sess.Id())
	log.Info("session connected")
	defer log.Info("session closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	endpoint := fmt.Sprintf("%v%v?sessionId=%v", s.config.BaseURL, s.config.MessagePath, sess.Id())
	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: %v\n\n", endpoint); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(s.config.KeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case message := <-sess.Queue():
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", message); err != nil {
				log.WithError(err).Debug("session write failed")
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-sess.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}

// handleMessage accepts one JSON-RPC message for an established session and
// hands it to the engine sink.
func (s *httpServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionId := r.URL.Query().Get("sessionId")
	if sessionId == "" {
		s.log.Warn("rejecting message without sessionId")
		writeError(w, http.StatusBadRequest, jsonrpc.NewInvalidRequest("missing sessionId parameter", nil))
		return
	}
	if _, ok := s.registry.Get(sessionId); !ok {
		s.log.WithField("session", sessionId).Warn("rejecting message for unknown session")
		writeError(w, http.StatusServiceUnavailable, jsonrpc.NewError(codec.ServerError, fmt.Sprintf("no active session: %v", sessionId), nil))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, codec.MaxFrameSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, jsonrpc.NewInvalidRequest("failed to read request body", nil))
		return
	}
	frame := bytes.TrimSpace(body)
	message, err := codec.Decode(frame)
	if err != nil {
		s.log.WithError(err).Warn("rejecting undecodable message payload")
		writeError(w, http.StatusBadRequest, jsonrpc.NewParsingError("invalid JSON-RPC payload", nil))
		return
	}
	if err := s.sink(r.Context(), frame); err != nil {
		s.log.WithError(err).Error("failed to deliver message")
		writeError(w, http.StatusInternalServerError, jsonrpc.NewError(codec.ServerError, "failed to deliver message", nil))
		return
	}
	s.log.WithFields(logrus.Fields{"session": sessionId, "method": message.Method}).Debug("message accepted")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

func (s *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeError(w http.ResponseWriter, status int, rpcErr *jsonrpc.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(codec.ErrorResponse(nil, rpcErr))
}

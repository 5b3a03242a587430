package engine

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/viant/mcp-proxy/codec"
)

func newTestConfig(mode string) *Config {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Config{Mode: mode, Logger: logger}
}

func newTestLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

// readEvent parses one SSE event off the wire, skipping comments and blank
// keep-alive separators.
func readEvent(reader *bufio.Reader) (string, string, error) {
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if data != "" {
				return event, data, nil
			}
			event, data = "", ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

// subscriber is a downstream SSE client attached to an engine under test.
type subscriber struct {
	endpoint string
	messages chan string
	resp     *http.Response
}

// subscribe connects to the engine's SSE path, retrying while the listener
// boots, and starts collecting message events.
func subscribe(t *testing.T, baseURL, ssePath string) *subscriber {
	t.Helper()
	var resp *http.Response
	var err error
	for i := 0; i < 100; i++ {
		resp, err = http.Get(baseURL + ssePath)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	event, data, err := readEvent(reader)
	require.NoError(t, err)
	require.Equal(t, "endpoint", event)

	sub := &subscriber{endpoint: data, messages: make(chan string, 16), resp: resp}
	go func() {
		defer close(sub.messages)
		for {
			event, data, err := readEvent(reader)
			if err != nil {
				return
			}
			if event == "message" {
				sub.messages <- data
			}
		}
	}()
	return sub
}

func (s *subscriber) close() {
	_ = s.resp.Body.Close()
}

// next returns the next broadcast message or fails the test.
func (s *subscriber) next(t *testing.T) string {
	t.Helper()
	select {
	case message, ok := <-s.messages:
		require.True(t, ok, "subscriber stream ended")
		return message
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return ""
	}
}

// post delivers one frame to the engine's message endpoint and returns the
// response status.
func (s *subscriber) post(t *testing.T, baseURL, frame string) int {
	t.Helper()
	resp, err := http.Post(baseURL+s.endpoint, "application/json", strings.NewReader(frame))
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

// upstreamFixture is a scripted SSE MCP server. It answers the initialize
// handshake on its own; every other posted frame is recorded and either
// echoed or failed depending on its method.
type upstreamFixture struct {
	server     *http.Server
	test       *httptest.Server
	url        string
	stream     chan string
	posted     chan []byte
	subscribed chan struct{}
}

func (f *upstreamFixture) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		select {
		case f.subscribed <- struct{}{}:
		default:
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "event: endpoint\ndata: /message?sessionId=up\n\n")
		flusher.Flush()
		for {
			select {
			case frame := <-f.stream:
				_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		message, err := codec.Decode(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch message.Method {
		case "initialize":
			f.stream <- fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":{"protocolVersion":"2024-11-05","capabilities":{},"serverInfo":{"name":"fixture","version":"1.0"}}}`, message.Id)
		case "notifications/initialized":
		case "echo":
			f.posted <- body
			f.stream <- fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":{"echo":true}}`, message.Id)
		case "fail":
			f.posted <- body
			f.stream <- fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32001,"message":"MCP error -32001: boom"}}`, message.Id)
		default:
			f.posted <- body
		}
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

// newUpstreamFixture serves on an ephemeral httptest listener.
func newUpstreamFixture() *upstreamFixture {
	fixture := &upstreamFixture{
		stream:     make(chan string, 16),
		posted:     make(chan []byte, 16),
		subscribed: make(chan struct{}, 4),
	}
	fixture.test = httptest.NewServer(fixture.handler())
	fixture.url = fixture.test.URL
	return fixture
}

// startUpstreamFixture serves on a fixed address so a test can stop it and
// bring a replacement up at the same URL.
func startUpstreamFixture(t *testing.T, addr string) *upstreamFixture {
	t.Helper()
	fixture := &upstreamFixture{
		stream:     make(chan string, 16),
		posted:     make(chan []byte, 16),
		subscribed: make(chan struct{}, 4),
	}
	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	fixture.server = &http.Server{Handler: fixture.handler()}
	go func() {
		_ = fixture.server.Serve(listener)
	}()
	fixture.url = "http://" + addr
	return fixture
}

func (f *upstreamFixture) stop() {
	if f.test != nil {
		f.test.CloseClientConnections()
		f.test.Close()
	}
	if f.server != nil {
		_ = f.server.Close()
	}
}

func (f *upstreamFixture) waitSubscribed(t *testing.T) {
	t.Helper()
	select {
	case <-f.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an upstream subscription")
	}
}

func (f *upstreamFixture) nextPosted(t *testing.T) []byte {
	t.Helper()
	select {
	case body := <-f.posted:
		return body
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a posted frame")
		return nil
	}
}

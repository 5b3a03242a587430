// Package upstream maintains a client connection to a remote SSE endpoint:
// an event stream for inbound messages and a discovered HTTP endpoint for
// outbound ones.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/mcp-proxy/codec"
)

const (
	eventEndpoint = "endpoint"
	eventMessage  = "message"
)

// Conn is an established upstream connection. Inbound message payloads
// arrive on Events; Done closes with Err set when the stream ends.
type Conn struct {
	sseURL   *url.URL
	endpoint string
	client   *http.Client
	cancel   context.CancelFunc
	events   chan []byte
	ready    chan struct{}
	done     chan struct{}
	closing  chan struct{}
	once     sync.Once
	err      error
	log      *logrus.Entry
}

// Dial opens the event stream at sseURL. A single timeout covers the whole
// attempt, from the socket connect through the endpoint handshake event that
// names the message POST URL; when it elapses the half-open attempt is
// cancelled outright so it cannot resolve later. The stream itself is not
// subject to the timeout once Dial has returned.
func Dial(ctx context.Context, log *logrus.Entry, sseURL string, timeout time.Duration) (*Conn, error) {
	parsed, err := url.Parse(sseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %v: %w", sseURL, err)
	}
	streamCtx, cancel := context.WithCancel(ctx)
	conn := &Conn{
		sseURL:  parsed,
		client:  &http.Client{},
		cancel:  cancel,
		events:  make(chan []byte, 32),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		log:     log.WithField("upstream", sseURL),
	}
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, sseURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	attempt := make(chan dialOutcome, 1)
	go func() {
		resp, err := conn.client.Do(req)
		attempt <- dialOutcome{resp: resp, err: err}
	}()
	var resp *http.Response
	select {
	case outcome := <-attempt:
		if outcome.err != nil {
			cancel()
			return nil, fmt.Errorf("failed to connect upstream: %w", outcome.err)
		}
		resp = outcome.resp
	case <-timer.C:
		cancel()
		go drainAttempt(attempt)
		return nil, fmt.Errorf("timed out after %v connecting upstream: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		cancel()
		go drainAttempt(attempt)
		return nil, ctx.Err()
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected status %v from %v", resp.StatusCode, sseURL)}
	}
	if contentType := resp.Header.Get("Content-Type"); !strings.Contains(contentType, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected content type %q from %v", contentType, sseURL)}
	}
	go conn.read(resp.Body)

	select {
	case <-conn.ready:
		conn.log.WithField("endpoint", conn.endpoint).Debug("upstream connected")
		return conn, nil
	case <-timer.C:
		conn.Close()
		return nil, fmt.Errorf("timed out after %v waiting for upstream endpoint event: %w", timeout, context.DeadlineExceeded)
	case <-conn.done:
		err := conn.Err()
		if err == nil {
			err = &ProtocolError{Reason: "stream closed before endpoint event"}
		}
		conn.Close()
		return nil, err
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

type dialOutcome struct {
	resp *http.Response
	err  error
}

// drainAttempt releases the abandoned dial goroutine's response, if the
// cancelled request produced one anyway.
func drainAttempt(attempt <-chan dialOutcome) {
	if outcome := <-attempt; outcome.resp != nil {
		outcome.resp.Body.Close()
	}
}

// Events delivers raw inbound message payloads.
func (c *Conn) Events() <-chan []byte {
	return c.events
}

// Done closes when the stream has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal stream error; valid after Done closes.
func (c *Conn) Err() error {
	<-c.done
	return c.err
}

// Endpoint returns the discovered message POST URL.
func (c *Conn) Endpoint() string {
	return c.endpoint
}

// Send posts one message to the discovered endpoint.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if c.endpoint == "" {
		return &ProtocolError{Reason: "no message endpoint discovered"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post message upstream: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
	if resp.StatusCode >= 300 {
		return &ProtocolError{Reason: fmt.Sprintf("message endpoint returned status %v", resp.StatusCode)}
	}
	return nil
}

// Close aborts the stream; Done still closes once the reader has unwound.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.closing)
		c.cancel()
	})
}

func (c *Conn) read(body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), codec.MaxFrameSize)

	var eventName string
	var data []string
	dispatch := func() {
		if len(data) == 0 {
			eventName = ""
			return
		}
		payload := strings.Join(data, "\n")
		name := eventName
		eventName = ""
		data = nil
		switch name {
		case eventEndpoint:
			c.resolveEndpoint(payload)
		case eventMessage, "":
			select {
			case c.events <- []byte(payload):
			case <-c.closing:
			}
		default:
			c.log.WithField("event", name).Debug("ignoring unknown event")
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch()
		case strings.HasPrefix(line, ":"):
			// SSE comment, typically a keep-alive
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	dispatch()

	err := scanner.Err()
	select {
	case <-c.closing:
		if err == nil {
			err = context.Canceled
		}
	default:
		if err == nil {
			err = io.EOF
		}
	}
	c.err = err
	close(c.done)
	close(c.events)
}

func (c *Conn) resolveEndpoint(payload string) {
	select {
	case <-c.ready:
		// the endpoint is fixed for the lifetime of the connection
		return
	default:
	}
	ref, err := url.Parse(strings.TrimSpace(payload))
	if err != nil {
		c.log.WithError(err).Warn("ignoring malformed endpoint event")
		return
	}
	c.endpoint = c.sseURL.ResolveReference(ref).String()
	close(c.ready)
}

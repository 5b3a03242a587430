// Package session tracks live downstream subscribers and fans messages out
// to them.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// QueueSize bounds the per session outbound buffer; a subscriber that falls
// this far behind is treated as dead.
const QueueSize = 100

var (
	// ErrClosed is returned when sending to a closed session.
	ErrClosed = errors.New("session closed")
	// ErrSaturated is returned when a session queue is full.
	ErrSaturated = errors.New("session queue saturated")
	// ErrNotFound is returned when a session id is not registered.
	ErrNotFound = errors.New("session not found")
)

// Session is one live subscriber with a buffered outbound queue. The serving
// side drains Queue until Done closes.
type Session struct {
	id    string
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

// New returns a session with a fresh uuid identity.
func New() *Session {
	return &Session{
		id:    uuid.New().String(),
		queue: make(chan []byte, QueueSize),
		done:  make(chan struct{}),
	}
}

// Id returns the session identity.
func (s *Session) Id() string {
	return s.id
}

// Queue exposes the outbound message queue.
func (s *Session) Queue() <-chan []byte {
	return s.queue
}

// Done closes when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session dead; it is safe to call repeatedly.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Send enqueues one message without blocking. A closed session or a
// saturated queue count as delivery failures.
func (s *Session) Send(message []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.queue <- message:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrSaturated
	}
}

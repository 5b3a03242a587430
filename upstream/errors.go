package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ProtocolError reports an upstream that answered outside the SSE contract,
// as opposed to one that could not be reached at all.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("upstream protocol error: %v", e.Reason)
}

// Kind labels a connection failure for diagnostics: dns, refused, timeout,
// reset, protocol, or network when nothing more specific applies.
func Kind(err error) string {
	var protocolErr *ProtocolError
	if errors.As(err, &protocolErr) {
		return "protocol"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "refused"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "reset"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "network"
}

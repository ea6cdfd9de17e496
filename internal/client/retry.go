package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// The retry schedule is fixed: three retries at 250ms, 750ms, 2s, four
// attempts in total, all counted per fresh send.
var retryDelays = []time.Duration{
	250 * time.Millisecond,
	750 * time.Millisecond,
	2000 * time.Millisecond,
}

// schedule walks a fixed delay list, then stops.
type schedule struct {
	delays []time.Duration
	next   int
}

func (s *schedule) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

func (s *schedule) Reset() { s.next = 0 }

// transientSignatures are the connection-failure shapes worth retrying:
// resets, timeouts, and generic load failures where the stream just died.
var transientSignatures = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"EOF",
}

// transient classifies a transport failure. Cancellation is never
// transient: an aborted request must not come back as a retry.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := err.Error()
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

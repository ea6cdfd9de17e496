// Package stream reassembles protocol frames from a raw byte stream. One
// Reader serves one connection attempt; retries construct a fresh one.
package stream

import (
	"bufio"
	"io"
	"log/slog"

	"tally/internal/event"
)

const maxLineBytes = 1 << 20

type Reader struct {
	scanner *bufio.Scanner
	pending []event.Event
	done    bool
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: sc}
}

// Next returns the next decoded event, io.EOF at clean end of stream, or
// the transport error that broke the connection. Lines that fail to decode
// are logged and skipped; a line carrying several joined objects yields
// them one by one. A trailing line without its newline still decodes: some
// producers drop the final terminator.
func (r *Reader) Next() (event.Event, error) {
	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return ev, nil
		}
		if r.done {
			return event.Event{}, io.EOF
		}

		if !r.scanner.Scan() {
			r.done = true
			if err := r.scanner.Err(); err != nil {
				return event.Event{}, err
			}
			return event.Event{}, io.EOF
		}

		events, err := event.Decode(r.scanner.Bytes())
		if err != nil {
			slog.Warn("skipping undecodable line", "error", err)
			continue
		}
		r.pending = events
	}
}

package gateway

import (
	"log/slog"
	"net/http"

	"tally/internal/event"
)

// NDJSONWriter streams one JSON object per line over a long-lived chunked
// response, flushing every frame so intermediaries cannot batch them.
type NDJSONWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	broken bool
}

func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Tells nginx-style proxies to pass chunks through untouched.
	w.Header().Set("X-Accel-Buffering", "no")
	return &NDJSONWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// Write sends one event frame. Once the connection breaks further writes
// are dropped silently: the run still finishes server-side either way.
func (n *NDJSONWriter) Write(ev event.Event) {
	if n.broken {
		return
	}
	frame, err := event.Encode(ev)
	if err != nil {
		slog.Warn("skipping unencodable frame", "type", ev.Type, "error", err)
		return
	}
	if _, err := n.w.Write(frame); err != nil {
		slog.Debug("stream write failed", "error", err)
		n.broken = true
		return
	}
	if err := n.rc.Flush(); err != nil {
		slog.Debug("stream flush failed", "error", err)
		n.broken = true
	}
}

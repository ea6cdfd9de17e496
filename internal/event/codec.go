package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"
)

// escapedNewline is the literal two-character sequence a sloppy producer
// leaves between objects when it joins frames with an escaped "\n" instead
// of a real newline.
var escapedNewline = []byte(`\n`)

// typeAliases maps deployment-specific wire names for the text-fragment
// event onto the canonical TEXT_CHUNK, so integrations drifting on type
// strings stay invisible past this package.
var typeAliases = map[Type]Type{
	"TEXT_MESSAGE_CONTENT": TypeTextChunk,
	"TEXT_DELTA":           TypeTextChunk,
}

// DecodeError reports a line (or line fragment) that yielded no events.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding frame %q: %v", shorten(e.Line), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode renders one event as a newline-terminated JSON frame.
func Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", ev.Type, err)
	}
	return append(b, '\n'), nil
}

// Decode parses one wire line into events. A clean line yields exactly one
// event. If the line is not a single object but contains the literal
// escaped-newline sequence, each part between the sequences is decoded
// independently: parts that parse still yield events, parts that do not are
// logged and dropped. Decode fails only when a line yields nothing at all.
func Decode(line []byte) ([]Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	if ev, err := decodeOne(line); err == nil {
		return []Event{ev}, nil
	} else if !bytes.Contains(line, escapedNewline) {
		return nil, &DecodeError{Line: line, Err: err}
	}

	var events []Event
	for _, part := range bytes.Split(line, escapedNewline) {
		part = bytes.TrimSpace(part)
		if len(part) == 0 {
			continue
		}
		ev, err := decodeOne(part)
		if err != nil {
			slog.Warn("dropping undecodable frame part", "part", shorten(part), "error", err)
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, &DecodeError{Line: line, Err: fmt.Errorf("no decodable parts")}
	}
	return events, nil
}

func decodeOne(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("frame has no type")
	}
	return normalize(ev), nil
}

// normalize folds known variant type strings into canonical ones. Variant
// text events carry the fragment under "delta"; rewrite it to the canonical
// {text} shape so downstream folds see one payload form.
func normalize(ev Event) Event {
	canonical, ok := typeAliases[ev.Type]
	if !ok {
		return ev
	}
	ev.Type = canonical
	if delta := gjson.GetBytes(ev.Data, "delta"); delta.Exists() {
		b, err := json.Marshal(TextChunk{Text: delta.String()})
		if err == nil {
			ev.Data = b
		}
	}
	return ev
}

func shorten(b []byte) string {
	const max = 120
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

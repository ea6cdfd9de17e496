package event

import "encoding/json"

type Type string

const (
	TypeRunStarted    Type = "RUN_STARTED"
	TypePlanner       Type = "PLANNER"
	TypeToolCallStart Type = "TOOL_CALL_START"
	TypeToolCallEnd   Type = "TOOL_CALL_END"
	TypeTextChunk     Type = "TEXT_CHUNK"
	TypeSuggestions   Type = "SUGGESTIONS"
	TypeMeta          Type = "META"
	TypeRunFinished   Type = "RUN_FINISHED"
	TypeRunError      Type = "RUN_ERROR"
)

// Event is one frame of the streaming protocol. Data stays raw until a
// consumer asks for the typed payload, so an unknown payload never breaks
// decoding of the envelope itself.
type Event struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Terminal reports whether the event closes a run.
func (e Event) Terminal() bool {
	return e.Type == TypeRunFinished || e.Type == TypeRunError
}

type RunStarted struct {
	TS   int64  `json:"ts"`
	Mode string `json:"mode"`
}

type Planner struct {
	Step  string   `json:"step"`
	Tools []string `json:"tools"`
}

type ToolCallStart struct {
	Name string `json:"name"`
}

type ToolCallEnd struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type TextChunk struct {
	Text string `json:"text"`
}

type Chip struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Source string `json:"source"`
}

type Suggestions struct {
	Chips []Chip `json:"chips"`
}

type Meta struct {
	Fallback bool   `json:"fallback,omitempty"`
	Intent   string `json:"intent,omitempty"`
}

type RunFinished struct {
	TS int64 `json:"ts"`
}

type RunError struct {
	Message string `json:"message"`
}

// New builds an envelope around a typed payload. Payloads in this package
// always marshal, so the error path only exists for callers handing in
// arbitrary values.
func New(t Type, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Data: b}, nil
}

// Payload unmarshals the event data into dst.
func (e Event) Payload(dst any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, dst)
}

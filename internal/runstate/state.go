// Package runstate folds decoded stream events into the client's local view
// of one run. The fold is pure in the sense that it touches nothing outside
// the State: persistence and rendering subscribe to it from the outside.
package runstate

import (
	"log/slog"
	"strings"
	"time"

	"tally/internal/event"
)

type ToolStatus string

const (
	ToolPending ToolStatus = "pending"
	ToolActive  ToolStatus = "active"
	ToolDone    ToolStatus = "done"
	ToolError   ToolStatus = "error"
)

type Tool struct {
	Name      string
	Status    ToolStatus
	StartedAt time.Time
	EndedAt   time.Time
	Err       string
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
	StatusCancelled Status = "cancelled"
)

type chipKey struct {
	action string
	label  string
}

// State is the client projection of one run. A fresh instance is created per
// run (and per retry attempt); instances are never shared across runs.
type State struct {
	Mode        string
	Step        string
	Intent      string
	Fallback    bool
	Highlighted string

	order  []string
	tools  map[string]*Tool
	active map[string]struct{}

	text     strings.Builder
	chips    []event.Chip
	chipSeen map[chipKey]struct{}

	terminal    bool
	status      Status
	unavailable bool
	lastError   string

	now func() time.Time
}

func New() *State {
	return &State{
		tools:    make(map[string]*Tool),
		active:   make(map[string]struct{}),
		chipSeen: make(map[chipKey]struct{}),
		now:      time.Now,
	}
}

// Apply folds one event. After a terminal event the state is frozen: folding
// anything further, including a second terminal, changes nothing.
func (s *State) Apply(ev event.Event) {
	if s.terminal {
		return
	}

	switch ev.Type {
	case event.TypeRunStarted:
		var p event.RunStarted
		if err := ev.Payload(&p); err == nil {
			s.Mode = p.Mode
		}

	case event.TypePlanner:
		var p event.Planner
		if err := ev.Payload(&p); err != nil {
			slog.Warn("bad planner payload", "error", err)
			return
		}
		s.Step = p.Step
		for _, name := range p.Tools {
			s.track(name, ToolPending, time.Time{})
		}

	case event.TypeToolCallStart:
		var p event.ToolCallStart
		if err := ev.Payload(&p); err != nil || p.Name == "" {
			return
		}
		s.track(p.Name, ToolActive, s.now())
		if _, ok := s.active[p.Name]; ok {
			s.Highlighted = p.Name
		}

	case event.TypeToolCallEnd:
		var p event.ToolCallEnd
		if err := ev.Payload(&p); err != nil || p.Name == "" {
			return
		}
		s.end(p.Name, p.OK, p.Error)

	case event.TypeTextChunk:
		var p event.TextChunk
		if err := ev.Payload(&p); err != nil {
			return
		}
		s.text.WriteString(p.Text)

	case event.TypeSuggestions:
		var p event.Suggestions
		if err := ev.Payload(&p); err != nil {
			return
		}
		for _, chip := range p.Chips {
			key := chipKey{action: chip.Action, label: chip.Label}
			if _, seen := s.chipSeen[key]; seen {
				continue
			}
			s.chipSeen[key] = struct{}{}
			s.chips = append(s.chips, chip)
		}

	case event.TypeMeta:
		var p event.Meta
		if err := ev.Payload(&p); err != nil {
			return
		}
		if p.Fallback {
			s.Fallback = true
		}
		if p.Intent != "" {
			s.Intent = p.Intent
		}

	case event.TypeRunFinished:
		s.finish(StatusCompleted)

	case event.TypeRunError:
		var p event.RunError
		if err := ev.Payload(&p); err != nil {
			p.Message = "unknown error"
		}
		if s.text.Len() == 0 {
			// Nothing streamed: the service never really answered.
			s.unavailable = true
			s.lastError = p.Message
			s.finish(StatusErrored)
			return
		}
		// Text already streamed; the partial answer stands.
		slog.Debug("ignoring post-content run error", "message", p.Message)
		s.finish(StatusCompleted)

	default:
		slog.Debug("ignoring unknown event type", "type", ev.Type)
	}
}

// track adds or reactivates a tool. A tool already in a terminal status
// stays there for the remainder of the run.
func (s *State) track(name string, status ToolStatus, startedAt time.Time) {
	t, ok := s.tools[name]
	if !ok {
		t = &Tool{Name: name, Status: status, StartedAt: startedAt}
		s.tools[name] = t
		s.order = append(s.order, name)
		if status == ToolActive {
			s.active[name] = struct{}{}
		}
		return
	}
	if t.Status == ToolDone || t.Status == ToolError {
		return
	}
	if status == ToolActive {
		t.Status = ToolActive
		if t.StartedAt.IsZero() {
			t.StartedAt = startedAt
		}
		s.active[name] = struct{}{}
	}
}

func (s *State) end(name string, ok bool, errMsg string) {
	t, known := s.tools[name]
	if !known {
		t = &Tool{Name: name, StartedAt: s.now()}
		s.tools[name] = t
		s.order = append(s.order, name)
	}
	if t.Status != ToolDone && t.Status != ToolError {
		if ok {
			t.Status = ToolDone
		} else {
			t.Status = ToolError
			t.Err = errMsg
		}
		t.EndedAt = s.now()
	}

	delete(s.active, name)
	s.Highlighted = ""
	for _, candidate := range s.order {
		if _, stillActive := s.active[candidate]; stillActive {
			s.Highlighted = candidate
			break
		}
	}
}

func (s *State) finish(status Status) {
	s.terminal = true
	s.status = status
}

// Cancel marks the run cancelled locally. Like a terminal event it freezes
// the state.
func (s *State) Cancel() {
	if s.terminal {
		return
	}
	s.finish(StatusCancelled)
}

func (s *State) Terminal() bool { return s.terminal }

func (s *State) Status() Status { return s.status }

// Unavailable reports the distinct "service unavailable" condition: the run
// errored before any text arrived.
func (s *State) Unavailable() bool { return s.unavailable }

func (s *State) LastError() string { return s.lastError }

// Text is the append-only concatenation of all TEXT_CHUNK payloads.
func (s *State) Text() string { return s.text.String() }

func (s *State) HasText() bool { return s.text.Len() > 0 }

// Answer is the displayable result: the accumulated text plus a trailing
// note naming tools that failed during the run.
func (s *State) Answer() string {
	var skipped []string
	for _, name := range s.order {
		if s.tools[name].Status == ToolError {
			skipped = append(skipped, name)
		}
	}
	if len(skipped) == 0 {
		return s.text.String()
	}
	note := "skipped: " + strings.Join(skipped, ", ") + " (unavailable)"
	if s.text.Len() == 0 {
		return note
	}
	return s.text.String() + "\n\n" + note
}

// Tools returns the tracked tools in declared order.
func (s *State) Tools() []Tool {
	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.tools[name])
	}
	return out
}

func (s *State) ToolNames() []string {
	return append([]string(nil), s.order...)
}

// ActiveToolNames returns currently active tools in declared order.
func (s *State) ActiveToolNames() []string {
	var out []string
	for _, name := range s.order {
		if _, ok := s.active[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (s *State) Chips() []event.Chip {
	return append([]event.Chip(nil), s.chips...)
}

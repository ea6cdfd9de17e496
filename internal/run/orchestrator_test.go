package run

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tally/internal/config"
	"tally/internal/event"
	"tally/internal/tool"
)

type scriptedCapability struct {
	name   string
	value  json.RawMessage
	err    error
	called *[]string
}

func (c *scriptedCapability) Name() string { return c.name }

func (c *scriptedCapability) Invoke(context.Context, tool.Args) (json.RawMessage, error) {
	if c.called != nil {
		*c.called = append(*c.called, c.name)
	}
	return c.value, c.err
}

func testModes() map[string]*config.ModeConfig {
	return map[string]*config.ModeConfig{
		"overview": {
			Step:  "Reviewing your month",
			Tools: []string{"charts.summary", "kpis"},
			Chips: []config.ChipConfig{{Label: "Show breakdown", Action: "breakdown"}},
		},
		"spending": {
			Step:     "Digging into spending",
			Tools:    []string{"kpis"},
			Keywords: []string{"spend"},
		},
	}
}

func collect(t *testing.T, o *Orchestrator, req Request) []event.Event {
	t.Helper()
	var events []event.Event
	o.Run(context.Background(), req, func(ev event.Event) {
		events = append(events, ev)
	})
	return events
}

func eventTypes(events []event.Event) []event.Type {
	out := make([]event.Type, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	var called []string
	reg := tool.NewRegistry()
	reg.Register(&scriptedCapability{name: "charts.summary", value: json.RawMessage(`{"summary":"August was quiet."}`), called: &called})
	reg.Register(&scriptedCapability{name: "kpis", value: json.RawMessage(`{"total":99}`), called: &called})

	o := NewOrchestrator(tool.NewInvoker(reg), NewPlanner(testModes(), "overview"), WithPacing(0))
	events := collect(t, o, Request{Query: "monthly overview", Mode: "overview"})

	types := eventTypes(events)
	require.Equal(t, event.TypeRunStarted, types[0])
	require.Equal(t, event.TypeRunFinished, types[len(types)-1])

	// Tools run in declared order, exactly once each.
	require.Equal(t, []string{"charts.summary", "kpis"}, called)

	var text strings.Builder
	var starts, ends, terminals int
	for _, ev := range events {
		switch ev.Type {
		case event.TypeToolCallStart:
			starts++
		case event.TypeToolCallEnd:
			ends++
			var p event.ToolCallEnd
			require.NoError(t, ev.Payload(&p))
			require.True(t, p.OK)
		case event.TypeTextChunk:
			var p event.TextChunk
			require.NoError(t, ev.Payload(&p))
			text.WriteString(p.Text)
		case event.TypeRunFinished, event.TypeRunError:
			terminals++
		}
	}
	require.Equal(t, 2, starts)
	require.Equal(t, 2, ends)
	require.Equal(t, 1, terminals)
	require.Contains(t, text.String(), "August was quiet.")
}

func TestRunToolFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	reg := tool.NewRegistry()
	reg.Register(&scriptedCapability{name: "charts.summary", err: errors.New("backend down")})
	reg.Register(&scriptedCapability{name: "kpis", value: json.RawMessage(`{"total":7}`)})

	o := NewOrchestrator(tool.NewInvoker(reg), NewPlanner(testModes(), "overview"), WithPacing(0))
	events := collect(t, o, Request{Query: "q", Mode: "overview"})

	var failedEnd, finished bool
	for _, ev := range events {
		if ev.Type == event.TypeToolCallEnd {
			var p event.ToolCallEnd
			require.NoError(t, ev.Payload(&p))
			if p.Name == "charts.summary" {
				require.False(t, p.OK)
				require.Contains(t, p.Error, "backend down")
				failedEnd = true
			}
		}
		if ev.Type == event.TypeRunFinished {
			finished = true
		}
	}
	require.True(t, failedEnd)
	require.True(t, finished)
}

func TestRunUnknownToolReported(t *testing.T) {
	t.Parallel()

	// Mode declares kpis but nothing registers it.
	o := NewOrchestrator(tool.NewInvoker(tool.NewRegistry()), NewPlanner(testModes(), "overview"), WithPacing(0))
	events := collect(t, o, Request{Query: "spend", Mode: "spending"})

	var sawUnknown bool
	for _, ev := range events {
		if ev.Type != event.TypeToolCallEnd {
			continue
		}
		var p event.ToolCallEnd
		require.NoError(t, ev.Payload(&p))
		require.False(t, p.OK)
		require.Equal(t, "unknown tool", p.Error)
		sawUnknown = true
	}
	require.True(t, sawUnknown)
	require.Equal(t, event.TypeRunFinished, events[len(events)-1].Type)
}

func TestRunEmitsPlannerAndIntent(t *testing.T) {
	t.Parallel()

	reg := tool.NewRegistry()
	reg.Register(&scriptedCapability{name: "kpis", value: json.RawMessage(`{"total":1}`)})

	o := NewOrchestrator(tool.NewInvoker(reg), NewPlanner(testModes(), "overview"), WithPacing(0))
	events := collect(t, o, Request{Query: "how much did I spend"})

	var planner event.Planner
	var meta event.Meta
	for _, ev := range events {
		switch ev.Type {
		case event.TypePlanner:
			require.NoError(t, ev.Payload(&planner))
		case event.TypeMeta:
			var m event.Meta
			require.NoError(t, ev.Payload(&m))
			if m.Intent != "" {
				meta = m
			}
		}
	}
	// Keyword scan resolved the spending branch.
	require.Equal(t, "Digging into spending", planner.Step)
	require.Equal(t, []string{"kpis"}, planner.Tools)
	require.Equal(t, "spending", meta.Intent)
}

func TestRunMergesStaticAndToolChips(t *testing.T) {
	t.Parallel()

	reg := tool.NewRegistry()
	reg.Register(&scriptedCapability{name: "charts.summary", value: json.RawMessage(`{"summary":"ok"}`)})
	reg.Register(&scriptedCapability{name: "kpis", value: json.RawMessage(
		`{"total":1,"chips":[{"label":"Top merchants","action":"merchants"}]}`,
	)})

	o := NewOrchestrator(tool.NewInvoker(reg), NewPlanner(testModes(), "overview"), WithPacing(0))
	events := collect(t, o, Request{Query: "q", Mode: "overview"})

	var sugg event.Suggestions
	for _, ev := range events {
		if ev.Type == event.TypeSuggestions {
			require.NoError(t, ev.Payload(&sugg))
		}
	}
	require.Len(t, sugg.Chips, 2)
	require.Equal(t, "mode", sugg.Chips[0].Source)
	require.Equal(t, "kpis", sugg.Chips[1].Source)
}

func TestRunCancelledMidTools(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	reg := tool.NewRegistry()
	reg.Register(&scriptedCapability{name: "charts.summary", value: json.RawMessage(`{"summary":"ok"}`)})
	// Cancel while the first tool runs: the loop notices before the second.
	reg.Register(&scriptedCapability{name: "kpis", value: json.RawMessage(`{"total":1}`)})

	o := NewOrchestrator(tool.NewInvoker(reg), NewPlanner(testModes(), "overview"), WithPacing(0))

	var events []event.Event
	o.Run(ctx, Request{Query: "q", Mode: "overview"}, func(ev event.Event) {
		events = append(events, ev)
		if ev.Type == event.TypeToolCallEnd {
			cancel()
		}
	})

	last := events[len(events)-1]
	require.Equal(t, event.TypeRunError, last.Type)

	var p event.RunError
	require.NoError(t, last.Payload(&p))
	require.Contains(t, p.Message, "cancelled")

	var terminals int
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	require.Equal(t, 1, terminals)
}

type explodingComposer struct{}

func (explodingComposer) Compose(context.Context, string, []tool.Result) (string, error) {
	return "", errors.New("model offline")
}

func TestRunLLMFailureFallsBackWithMeta(t *testing.T) {
	t.Parallel()

	reg := tool.NewRegistry()
	reg.Register(&scriptedCapability{name: "charts.summary", value: json.RawMessage(`{"summary":"From the template."}`)})
	reg.Register(&scriptedCapability{name: "kpis", value: json.RawMessage(`{"total":1}`)})

	o := NewOrchestrator(tool.NewInvoker(reg), NewPlanner(testModes(), "overview"),
		WithPacing(0), WithLLM(explodingComposer{}))
	events := collect(t, o, Request{Query: "q", Mode: "overview"})

	var fellBack bool
	var text strings.Builder
	for _, ev := range events {
		switch ev.Type {
		case event.TypeMeta:
			var m event.Meta
			require.NoError(t, ev.Payload(&m))
			if m.Fallback {
				fellBack = true
			}
		case event.TypeTextChunk:
			var p event.TextChunk
			require.NoError(t, ev.Payload(&p))
			text.WriteString(p.Text)
		}
	}
	require.True(t, fellBack)
	require.Contains(t, text.String(), "From the template.")
}

func TestPlannerResolution(t *testing.T) {
	t.Parallel()

	p := NewPlanner(testModes(), "overview")

	tests := []struct {
		name   string
		query  string
		forced string
		mode   string
	}{
		{"forced mode wins", "anything", "spending", "spending"},
		{"unknown forced falls through", "monthly summary", "bogus", "overview"},
		{"keyword scan", "what did I spend on food", "", "spending"},
		{"default", "hello there", "", "overview"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.mode, p.Resolve(tt.query, tt.forced).Mode)
		})
	}
}

func TestPlannerKeywordTieIsDeterministic(t *testing.T) {
	t.Parallel()

	modes := map[string]*config.ModeConfig{
		"overview": {Step: "Reviewing"},
		"budgets":  {Step: "Checking budgets", Keywords: []string{"spend"}},
		"spending": {Step: "Digging into spending", Keywords: []string{"spend"}},
	}
	p := NewPlanner(modes, "overview")

	// Both non-default modes match; the first mode name in order wins,
	// every single time.
	for range 20 {
		require.Equal(t, "budgets", p.Resolve("what did I spend", "").Mode)
	}
}

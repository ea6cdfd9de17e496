// Package run owns one streaming run on the server: it sequences tool
// invocations in declared order, composes an answer from whatever
// succeeded, and emits the event protocol with exactly one terminal event.
package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"tally/internal/compose"
	"tally/internal/event"
	"tally/internal/journal"
	"tally/internal/tool"
	"tally/internal/trace"
)

const (
	chunkSize     = 120
	defaultPacing = 30 * time.Millisecond
)

type Request struct {
	Query string
	Month string
	Mode  string
}

type Orchestrator struct {
	invoker  *tool.Invoker
	planner  *Planner
	template *compose.Template
	llm      compose.Composer
	journal  *journal.Store
	pacing   time.Duration
}

type Option func(*Orchestrator)

// WithLLM sets an optional model-backed composer. On any of its failures
// the orchestrator falls back to the template and flags it via META.
func WithLLM(c compose.Composer) Option {
	return func(o *Orchestrator) { o.llm = c }
}

func WithJournal(j *journal.Store) Option {
	return func(o *Orchestrator) { o.journal = j }
}

func WithPacing(d time.Duration) Option {
	return func(o *Orchestrator) { o.pacing = d }
}

func NewOrchestrator(invoker *tool.Invoker, planner *Planner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:  invoker,
		planner:  planner,
		template: compose.NewTemplate(),
		pacing:   defaultPacing,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// emitter enforces the terminal invariant: after one terminal event nothing
// else leaves the run.
type emitter struct {
	emit     func(event.Event)
	terminal bool
}

func (e *emitter) send(t event.Type, payload any) {
	if e.terminal {
		return
	}
	ev, err := event.New(t, payload)
	if err != nil {
		slog.Warn("dropping unencodable event", "type", t, "error", err)
		return
	}
	if ev.Terminal() {
		e.terminal = true
	}
	e.emit(ev)
}

// Run drives one run to its terminal event. It never returns an error: every
// fault inside becomes either a tagged tool failure or the RUN_ERROR event.
func (o *Orchestrator) Run(ctx context.Context, req Request, emit func(event.Event)) {
	runID := uuid.NewString()
	plan := o.planner.Resolve(req.Query, req.Mode)

	truncated := req.Query
	if len(truncated) > 200 {
		truncated = truncated[:200]
	}
	ctx, span := trace.Tracer().Start(ctx, "run",
		oteltrace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.mode", plan.Mode),
			attribute.String("run.query", truncated),
		),
	)
	defer span.End()

	e := &emitter{emit: emit}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("run panicked", "run_id", runID, "panic", r)
			span.SetStatus(codes.Error, "panic")
			e.send(event.TypeRunError, event.RunError{Message: "internal error"})
			o.finishJournal(runID, journal.StatusErrored, "")
		}
	}()

	slog.Info("run started", "run_id", runID, "mode", plan.Mode, "tools", len(plan.Tools))

	e.send(event.TypeRunStarted, event.RunStarted{TS: time.Now().UnixMilli(), Mode: plan.Mode})
	e.send(event.TypePlanner, event.Planner{Step: plan.Step, Tools: plan.Tools})
	e.send(event.TypeMeta, event.Meta{Intent: plan.Mode})

	if o.journal != nil {
		if err := o.journal.Begin(ctx, runID, req.Query, plan.Mode); err != nil {
			slog.Warn("journal write failed", "run_id", runID, "error", err)
		}
	}

	args := tool.Args{Query: req.Query, Month: req.Month}
	results := make([]tool.Result, 0, len(plan.Tools))
	for _, name := range plan.Tools {
		if ctx.Err() != nil {
			o.cancelled(runID, e)
			return
		}
		e.send(event.TypeToolCallStart, event.ToolCallStart{Name: name})
		res := o.invoker.Invoke(ctx, name, args)
		e.send(event.TypeToolCallEnd, event.ToolCallEnd{
			Name:  name,
			OK:    res.OK,
			Error: res.Diagnostic,
		})
		results = append(results, res)
	}

	text, fellBack := o.composeAnswer(ctx, req.Query, results)
	if fellBack {
		e.send(event.TypeMeta, event.Meta{Fallback: true})
	}

	for _, chunk := range splitChunks(text, chunkSize) {
		if ctx.Err() != nil {
			o.cancelled(runID, e)
			return
		}
		e.send(event.TypeTextChunk, event.TextChunk{Text: chunk})
		o.pace(ctx)
	}

	chips := append(append([]event.Chip(nil), plan.Chips...), compose.CollectChips(results)...)
	if len(chips) > 0 {
		e.send(event.TypeSuggestions, event.Suggestions{Chips: chips})
	}

	e.send(event.TypeRunFinished, event.RunFinished{TS: time.Now().UnixMilli()})
	o.finishJournal(runID, journal.StatusCompleted, text)
	slog.Info("run finished", "run_id", runID, "mode", plan.Mode)
}

// composeAnswer tries the LLM composer first when one is configured; any
// failure there drops silently to the template.
func (o *Orchestrator) composeAnswer(ctx context.Context, query string, results []tool.Result) (string, bool) {
	if o.llm != nil {
		text, err := o.llm.Compose(ctx, query, results)
		if err == nil {
			return text, false
		}
		slog.Warn("llm compose failed, using template", "error", err)
		text, _ = o.template.Compose(ctx, query, results)
		return text, true
	}
	text, _ := o.template.Compose(ctx, query, results)
	return text, false
}

// cancelled closes out a run whose client went away. The terminal event
// still goes out; writes into the dead transport are the writer's problem.
func (o *Orchestrator) cancelled(runID string, e *emitter) {
	slog.Info("run cancelled", "run_id", runID)
	e.send(event.TypeRunError, event.RunError{Message: "request cancelled"})
	o.finishJournal(runID, journal.StatusCancelled, "")
}

func (o *Orchestrator) finishJournal(runID string, status journal.Status, answer string) {
	if o.journal == nil {
		return
	}
	// The request context may already be dead here; journaling still counts.
	if err := o.journal.Finish(context.Background(), runID, status, answer); err != nil {
		slog.Warn("journal write failed", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) pace(ctx context.Context) {
	if o.pacing <= 0 {
		return
	}
	t := time.NewTimer(o.pacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Package client consumes the agent stream: it opens the transport, folds
// events into run state, retries transient failures before any content
// arrived, and publishes every observable change to an injected sink.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"tally/internal/event"
	"tally/internal/runstate"
	"tally/internal/snapshot"
	"tally/internal/stream"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role Role
	Text string
}

// State is the observable client state published after every change.
type State struct {
	Messages         []Message
	IsStreaming      bool
	HasReceivedToken bool
	Thinking         *snapshot.Snapshot
	PartialText      string
	Chips            []event.Chip
	Error            string
	Unavailable      bool
}

// Sink receives state updates. It is injected at construction; nothing in
// this package discovers its consumer through shared globals.
type Sink interface {
	Publish(State)
}

type SendOptions struct {
	Month string
	Mode  string
}

// errNoTerminal marks a stream that ended cleanly but never delivered a
// terminal event. With no content yet it reads as a generic load failure.
var errNoTerminal = errors.New("stream ended without terminal event")

type Client struct {
	baseURL  string
	httpc    *http.Client
	sink     Sink
	observer *snapshot.Observer
	delays   []time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	messages []Message
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithPersistence mirrors in-flight run state through the given observer.
func WithPersistence(obs *snapshot.Observer) Option {
	return func(c *Client) { c.observer = obs }
}

func New(baseURL string, sink Sink, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{},
		sink:    sink,
		delays:  retryDelays,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage starts a new run for one user turn. Any run still in flight
// is cancelled and fully torn down before the new one begins folding, so
// two runs never race against the same rendered state.
func (c *Client) SendMessage(text string, opts SendOptions) {
	c.Cancel()

	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancel = cancel
	c.messages = append(c.messages, Message{Role: RoleUser, Text: text})
	messages := append([]Message(nil), c.messages...)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.RunStarting(ctx)
	}
	c.sink.Publish(State{Messages: messages, IsStreaming: true})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, text, opts)
	}()
}

// Cancel aborts the in-flight run, suppresses any pending retry, and waits
// for teardown. Cancellation produces no message at all.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Client) run(ctx context.Context, text string, opts SendOptions) {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		return struct{}{}, c.attempt(ctx, text, opts)
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&schedule{delays: c.delays}),
		backoff.WithMaxTries(uint(len(c.delays))+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("transient stream failure, retrying", "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err == nil {
		return
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		// Cancelled: clear the thinking snapshot and go quiet.
		if c.observer != nil {
			c.observer.RunStarting(context.Background())
		}
		c.sink.Publish(State{Messages: c.snapshotMessages(), IsStreaming: false})
		return
	}

	slog.Warn("run failed", "attempts", attempt, "error", err)
	c.mu.Lock()
	c.messages = append(c.messages, Message{Role: RoleSystem, Text: "Something went wrong fetching that answer. Please try again."})
	messages := append([]Message(nil), c.messages...)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.RunStarting(context.Background())
	}
	c.sink.Publish(State{Messages: messages, Error: err.Error()})
}

// attempt performs one full connect-and-fold pass with a fresh reader and
// fresh run state. Returning a plain error requests a retry; wrapping it in
// backoff.Permanent stops the schedule.
func (c *Client) attempt(ctx context.Context, text string, opts SendOptions) error {
	req, err := c.buildRequest(ctx, text, opts)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(context.Canceled)
		}
		if transient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return backoff.Permanent(errors.New("response has no body"))
	}

	state := runstate.New()
	reader := stream.NewReader(resp.Body)

	for {
		ev, readErr := reader.Next()
		if readErr != nil {
			// Clean EOF here means the stream closed without a terminal
			// event; with nothing folded yet that is a load failure.
			if errors.Is(readErr, io.EOF) {
				readErr = errNoTerminal
			}
			if errors.Is(readErr, context.Canceled) || ctx.Err() != nil {
				return c.cancelled(state)
			}
			if state.HasText() {
				// A partial, possibly acceptable, answer already exists.
				// Retrying now would silently duplicate visible text. The
				// run ends here locally, so the thinking snapshot must go
				// with it or a reload would keep showing "still thinking".
				slog.Warn("stream broke after content, keeping partial answer", "error", readErr)
				state.Cancel()
				if c.observer != nil {
					c.observer.StateChanged(context.Background(), state)
				}
				c.finalize(state)
				return nil
			}
			if errors.Is(readErr, errNoTerminal) || transient(readErr) {
				return readErr
			}
			return backoff.Permanent(readErr)
		}

		state.Apply(ev)
		c.afterFold(ctx, state)

		if state.Terminal() {
			c.finalize(state)
			return nil
		}
	}
}

// cancelled freezes the state, clears persistence, and reports quietly.
func (c *Client) cancelled(state *runstate.State) error {
	state.Cancel()
	if c.observer != nil {
		c.observer.StateChanged(context.Background(), state)
	}
	return backoff.Permanent(context.Canceled)
}

// afterFold runs the side effects of one fold: persistence first, then the
// sink. EOF handling lives in attempt; this only sees applied events.
func (c *Client) afterFold(ctx context.Context, state *runstate.State) {
	if c.observer != nil {
		c.observer.StateChanged(ctx, state)
	}
	if state.Terminal() {
		return
	}
	snap := snapshot.FromState(state)
	c.sink.Publish(State{
		Messages:         c.snapshotMessages(),
		IsStreaming:      true,
		HasReceivedToken: state.HasText(),
		Thinking:         &snap,
		PartialText:      state.Text(),
		Chips:            state.Chips(),
	})
}

// finalize publishes the run's outcome. A run that errored before any text
// surfaces the distinct service-unavailable condition; anything else lands
// as the assistant's answer, partial or not.
func (c *Client) finalize(state *runstate.State) {
	if state.Unavailable() {
		slog.Warn("service unavailable", "error", state.LastError())
		c.sink.Publish(State{
			Messages:    c.snapshotMessages(),
			Error:       "service unavailable",
			Unavailable: true,
		})
		return
	}

	answer := state.Answer()
	c.mu.Lock()
	if answer != "" {
		c.messages = append(c.messages, Message{Role: RoleAssistant, Text: answer})
	}
	messages := append([]Message(nil), c.messages...)
	c.mu.Unlock()

	c.sink.Publish(State{
		Messages:         messages,
		HasReceivedToken: state.HasText(),
		Chips:            state.Chips(),
	})
}

func (c *Client) snapshotMessages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Client) buildRequest(ctx context.Context, text string, opts SendOptions) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/v1/agent/stream")
	if err != nil {
		return nil, fmt.Errorf("building stream url: %w", err)
	}
	q := u.Query()
	q.Set("q", text)
	if opts.Month != "" {
		q.Set("month", opts.Month)
	}
	if opts.Mode != "" {
		q.Set("mode", opts.Mode)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	return req, nil
}

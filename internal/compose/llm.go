package compose

import (
	"context"
	"fmt"
	"strings"

	"tally/internal/llm"
	"tally/internal/tool"
)

const composeSystemPrompt = "You are the assistant of a personal-finance dashboard. " +
	"Write a short, plain answer to the user's question using only the tool data provided. " +
	"Do not invent numbers. Two or three sentences at most."

// LLM composes the answer with a language model. It never talks to the wire
// itself; the orchestrator still chunks and paces whatever comes back.
type LLM struct {
	provider llm.Provider
}

func NewLLM(provider llm.Provider) *LLM {
	return &LLM{provider: provider}
}

func (l *LLM) Compose(ctx context.Context, query string, results []tool.Result) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nTool data:\n", query)
	included := false
	for _, res := range results {
		if !res.OK {
			continue
		}
		included = true
		fmt.Fprintf(&b, "- %s: %s\n", res.Name, res.Value)
	}
	if !included {
		b.WriteString("(no tool succeeded)\n")
	}

	text, err := l.provider.Complete(ctx, composeSystemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("llm compose: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("llm compose: empty completion")
	}
	return text, nil
}

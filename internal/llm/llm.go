package llm

import "context"

type Provider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

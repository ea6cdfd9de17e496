package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/openai/openai-go/v3"
)

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAI(baseURL, apiKey, model string) *OpenAIProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, option.WithHTTPClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}))
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: model}
}

// Complete streams one completion and returns the collected text.
func (o *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(system, "developer"),
				responses.ResponseInputItemParamOfMessage(prompt, "user"),
			},
		},
	}

	stream := o.client.Responses.NewStreaming(ctx, params)

	var b strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "response.output_text.delta":
			b.WriteString(event.Delta)
		case "response.failed":
			return "", fmt.Errorf("response failed: %s", event.Response.Error.Message)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}

	return b.String(), nil
}

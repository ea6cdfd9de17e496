package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	bravesearch "github.com/cnosuke/go-brave-search"
)

// News searches recent web results for the run's query via Brave. It is the
// one bundled capability that is not an HTTP collaborator of our own.
type News struct {
	brave *bravesearch.Client
}

func NewNews(apiKey string) *News {
	client, _ := bravesearch.NewClient(apiKey)
	return &News{brave: client}
}

func (n *News) Name() string { return "news.search" }

func (n *News) Invoke(ctx context.Context, args Args) (json.RawMessage, error) {
	if args.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	slog.Debug("news: searching", "query", args.Query)

	resp, err := n.brave.WebSearch(ctx, args.Query, &bravesearch.WebSearchParams{
		Count: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}

	type result struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
	}
	out := struct {
		Results []result `json:"results"`
	}{Results: []result{}}

	for _, r := range resp.GetWebResults() {
		out.Results = append(out.Results, result{
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
		})
	}

	slog.Debug("news: search done", "query", args.Query, "results", len(out.Results))
	return json.Marshal(out)
}

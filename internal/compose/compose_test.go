package compose

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"tally/internal/tool"
)

func TestTemplateComposesFromDisplayFields(t *testing.T) {
	t.Parallel()

	results := []tool.Result{
		{Name: "charts.summary", OK: true, Value: json.RawMessage(`{"summary":"Spending was flat in August."}`)},
		{Name: "kpis", OK: true, Value: json.RawMessage(`{"total":1234.5}`)},
		{Name: "transactions.top", OK: false, Diagnostic: "unavailable"},
	}

	text, err := NewTemplate().Compose(context.Background(), "how was my month", results)
	require.NoError(t, err)
	require.Contains(t, text, "Spending was flat in August.")
	require.Contains(t, text, "kpis came to 1234.5")
	require.NotContains(t, text, "transactions.top")
}

func TestTemplateFallsBackWhenNothingSucceeded(t *testing.T) {
	t.Parallel()

	text, err := NewTemplate().Compose(context.Background(), "q", []tool.Result{
		{Name: "kpis", Diagnostic: "boom"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, text)
}

func TestTemplateDescribesSearchResults(t *testing.T) {
	t.Parallel()

	results := []tool.Result{
		{Name: "news.search", OK: true, Value: json.RawMessage(
			`{"results":[{"title":"Rates hold"},{"title":"Markets up"}]}`,
		)},
	}

	text, err := NewTemplate().Compose(context.Background(), "q", results)
	require.NoError(t, err)
	require.Contains(t, text, "Rates hold")
	require.Contains(t, text, "Markets up")
}

func TestCollectChips(t *testing.T) {
	t.Parallel()

	results := []tool.Result{
		{Name: "kpis", OK: true, Value: json.RawMessage(
			`{"total":1,"chips":[{"label":"Top merchants","action":"merchants"},{"label":"","action":"x"}]}`,
		)},
		{Name: "down", OK: false, Value: json.RawMessage(`{"chips":[{"label":"no","action":"no"}]}`)},
	}

	chips := CollectChips(results)
	require.Len(t, chips, 1)
	require.Equal(t, "Top merchants", chips[0].Label)
	require.Equal(t, "merchants", chips[0].Action)
	require.Equal(t, "kpis", chips[0].Source)
}

// Package compose turns whatever tools succeeded into the run's answer
// text. Tool payloads are opaque JSON; display fields are probed, never
// schema-bound.
package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"tally/internal/event"
	"tally/internal/tool"
)

type Composer interface {
	Compose(ctx context.Context, query string, results []tool.Result) (string, error)
}

// Template is the deterministic composer. It stitches together whichever
// display fields the successful tool payloads happen to carry.
type Template struct{}

func NewTemplate() *Template {
	return &Template{}
}

func (t *Template) Compose(_ context.Context, _ string, results []tool.Result) (string, error) {
	var parts []string
	for _, res := range results {
		if !res.OK {
			continue
		}
		if part := describe(res); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "I couldn't pull together an answer from the available data this time.", nil
	}
	return strings.Join(parts, " "), nil
}

// describe extracts one displayable sentence from an opaque tool payload.
func describe(res tool.Result) string {
	if summary := gjson.GetBytes(res.Value, "summary"); summary.Type == gjson.String {
		return summary.String()
	}
	if text := gjson.GetBytes(res.Value, "text"); text.Type == gjson.String {
		return text.String()
	}
	if total := gjson.GetBytes(res.Value, "total"); total.Type == gjson.Number {
		return fmt.Sprintf("%s came to %v.", res.Name, total.Value())
	}
	if results := gjson.GetBytes(res.Value, "results"); results.IsArray() {
		var titles []string
		for _, r := range results.Array() {
			if title := r.Get("title"); title.Type == gjson.String {
				titles = append(titles, title.String())
			}
			if len(titles) == 3 {
				break
			}
		}
		if len(titles) > 0 {
			return "Related: " + strings.Join(titles, "; ") + "."
		}
	}
	return ""
}

// CollectChips pulls suggestion chips out of successful tool payloads,
// stamping each with the tool it came from.
func CollectChips(results []tool.Result) []event.Chip {
	var chips []event.Chip
	for _, res := range results {
		if !res.OK {
			continue
		}
		for _, c := range gjson.GetBytes(res.Value, "chips").Array() {
			label := c.Get("label").String()
			action := c.Get("action").String()
			if label == "" || action == "" {
				continue
			}
			chips = append(chips, event.Chip{
				Label:  label,
				Action: action,
				Source: res.Name,
			})
		}
	}
	return chips
}

package run

import (
	"slices"
	"strings"

	"tally/internal/config"
	"tally/internal/event"
)

// Plan is the resolved shape of one run: which branch the answer takes and
// which tools get invoked, in order. Nothing downstream may reorder them.
type Plan struct {
	Mode  string
	Step  string
	Tools []string
	Chips []event.Chip
}

// Planner resolves a request to a configured mode. A forced mode wins when
// it names a known mode, then a keyword scan of the query, then the default.
type Planner struct {
	modes       map[string]*config.ModeConfig
	defaultMode string
}

func NewPlanner(modes map[string]*config.ModeConfig, defaultMode string) *Planner {
	return &Planner{modes: modes, defaultMode: defaultMode}
}

func (p *Planner) Resolve(query, forced string) Plan {
	if mc, ok := p.modes[forced]; ok {
		return p.plan(forced, mc)
	}

	// Scan modes by name so two matching modes always resolve the same way.
	q := strings.ToLower(query)
	names := make([]string, 0, len(p.modes))
	for name := range p.modes {
		if name != p.defaultMode {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		mc := p.modes[name]
		for _, kw := range mc.Keywords {
			if strings.Contains(q, kw) {
				return p.plan(name, mc)
			}
		}
	}

	if mc, ok := p.modes[p.defaultMode]; ok {
		return p.plan(p.defaultMode, mc)
	}
	return Plan{Mode: p.defaultMode, Step: "Thinking"}
}

func (p *Planner) plan(name string, mc *config.ModeConfig) Plan {
	plan := Plan{
		Mode:  name,
		Step:  mc.Step,
		Tools: append([]string(nil), mc.Tools...),
	}
	for _, c := range mc.Chips {
		plan.Chips = append(plan.Chips, event.Chip{
			Label:  c.Label,
			Action: c.Action,
			Source: "mode",
		})
	}
	return plan
}

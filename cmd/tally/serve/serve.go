package serve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"tally/internal/compose"
	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/gateway"
	"tally/internal/journal"
	"tally/internal/llm"
	"tally/internal/run"
	"tally/internal/tool"
	"tally/internal/trace"
)

var addr string

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if addr != "" {
			cfg.Gateway.Addr = addr
		}

		if cfg.Trace.Endpoint != "" {
			shutdown, err := trace.Init(cmd.Context(), trace.Config{
				Endpoint: cfg.Trace.Endpoint,
				URLPath:  cfg.Trace.URLPath,
				APIKey:   cfg.Trace.APIKey,
			})
			if err != nil {
				return fmt.Errorf("initializing tracing: %w", err)
			}
			defer shutdown(context.Background())
		}

		d, err := db.Open(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("opening db: %w", err)
		}
		defer d.Close()
		if err := d.Migrate(); err != nil {
			return fmt.Errorf("migrating db: %w", err)
		}

		registry := buildRegistry(cfg)
		invoker := tool.NewInvoker(registry)
		planner := run.NewPlanner(cfg.Modes, cfg.DefaultMode)
		j := journal.NewStore(d)

		opts := []run.Option{run.WithJournal(j)}
		if cfg.Compose.Model != "" {
			provider := llm.NewOpenAI(cfg.Compose.BaseURL, cfg.Compose.APIKey, cfg.Compose.Model)
			opts = append(opts, run.WithLLM(compose.NewLLM(provider)))
			slog.Info("llm composer enabled", "model", cfg.Compose.Model)
		}

		orchestrator := run.NewOrchestrator(invoker, planner, opts...)
		srv := gateway.NewServer(orchestrator, j)

		slog.Info("starting gateway", "addr", cfg.Gateway.Addr, "tools", len(registry.All()), "modes", len(cfg.Modes))
		return srv.ListenAndServe(cfg.Gateway.Addr)
	},
}

func init() {
	Cmd.Flags().StringVarP(&addr, "addr", "a", "", "override gateway listen address")
}

func buildRegistry(cfg *config.Config) *tool.Registry {
	registry := tool.NewRegistry()
	for name, tc := range cfg.Tools {
		if tc.URL == "" {
			slog.Warn("tool has no url, skipping", "name", name)
			continue
		}
		registry.Register(tool.NewHTTP(name, tc.URL, time.Duration(tc.TimeoutMS)*time.Millisecond))
		slog.Info("tool registered", "name", name, "url", tc.URL)
	}
	if cfg.Services.BraveAPIKey != "" {
		registry.Register(tool.NewNews(cfg.Services.BraveAPIKey))
		slog.Info("tool registered", "name", "news.search")
	}
	return registry
}

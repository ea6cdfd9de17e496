package setup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tally/internal/config"
)

var force bool

const starterConfig = `# tally configuration

default_mode = "overview"

[gateway]
addr = ":8474"

[client]
base_url = "http://localhost:8474"

# Each tool is an independent request/response backend call.
# [tool."charts.summary"]
# url = "http://localhost:9001/charts/summary"
# timeout_ms = 8000

# [tool.kpis]
# url = "http://localhost:9001/kpis"

[mode.overview]
step = "Reviewing your month"
tools = ["charts.summary", "kpis"]
keywords = ["overview", "summary", "month"]

[[mode.overview.chips]]
label = "Show breakdown"
action = "breakdown"

[mode.spending]
step = "Digging into spending"
tools = ["charts.summary", "kpis", "transactions.top"]
keywords = ["spend", "spent", "spending", "transactions"]

# Optional LLM answer composer; the template composer covers failures.
# [compose]
# model = "gpt-4.1-mini"
# api_key = ""

# Optional Brave-backed news.search capability.
# [services]
# brave_api_key = ""

# Optional OTLP tracing.
# [trace]
# endpoint = "localhost:4318"
`

var Cmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Path()
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Println("wrote", path)
		return nil
	},
}

func init() {
	Cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
}

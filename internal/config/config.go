package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DefaultMode string                 `toml:"default_mode"`
	Gateway     GatewayConfig          `toml:"gateway"`
	DB          DBConfig               `toml:"db"`
	Tools       map[string]*ToolConfig `toml:"tool"`
	Modes       map[string]*ModeConfig `toml:"mode"`
	Compose     ComposeConfig          `toml:"compose"`
	Client      ClientConfig           `toml:"client"`
	Services    ServicesConfig         `toml:"services"`
	Trace       TraceConfig            `toml:"trace"`
}

type GatewayConfig struct {
	Addr string `toml:"addr"`
}

type DBConfig struct {
	Path string `toml:"path"`
}

type ToolConfig struct {
	URL       string `toml:"url"`
	TimeoutMS int    `toml:"timeout_ms"`
}

type ModeConfig struct {
	Step     string       `toml:"step"`
	Tools    []string     `toml:"tools"`
	Keywords []string     `toml:"keywords"`
	Chips    []ChipConfig `toml:"chips"`
}

type ChipConfig struct {
	Label  string `toml:"label"`
	Action string `toml:"action"`
}

type ComposeConfig struct {
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

type ClientConfig struct {
	BaseURL string `toml:"base_url"`
	DBPath  string `toml:"db_path"`
}

type ServicesConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

type TraceConfig struct {
	Endpoint string `toml:"endpoint"`
	URLPath  string `toml:"url_path"`
	APIKey   string `toml:"api_key"`
}

func Load() (*Config, error) {
	cfg := &Config{
		DefaultMode: "overview",
		Gateway: GatewayConfig{
			Addr: ":8474",
		},
		DB: DBConfig{
			Path: defaultDBPath("tally.db"),
		},
		Modes: map[string]*ModeConfig{
			"overview": {
				Step:     "Reviewing your month",
				Tools:    []string{"charts.summary", "kpis"},
				Keywords: []string{"overview", "summary", "month"},
				Chips: []ChipConfig{
					{Label: "Show breakdown", Action: "breakdown"},
				},
			},
			"spending": {
				Step:     "Digging into spending",
				Tools:    []string{"charts.summary", "kpis", "transactions.top"},
				Keywords: []string{"spend", "spent", "spending", "transactions"},
			},
		},
		Client: ClientConfig{
			BaseURL: "http://localhost:8474",
			DBPath:  defaultDBPath("tally-client.db"),
		},
	}

	path := Path()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Path returns the config file location.
func Path() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "tally", "config.toml")
}

func defaultDBPath(name string) string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "tally", name)
}

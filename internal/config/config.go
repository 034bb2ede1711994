package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models strikeline.yml.
type Config struct {
	Bot struct {
		Token         string `yaml:"token"`
		FileExtension string `yaml:"file_extension"`
	} `yaml:"bot"`
	MainAdmin struct {
		ID   int64  `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"main_admin"`
	Phone struct {
		DefaultRegion string `yaml:"default_region"`
	} `yaml:"phone"`
	Catalogs struct {
		Airframes []string `yaml:"airframes"`
		Payloads  []string `yaml:"payloads"`
	} `yaml:"catalogs"`
	Server struct {
		Enabled   bool   `yaml:"enabled"`
		Listen    string `yaml:"listen"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
	Export struct {
		Path string `yaml:"path"`
	} `yaml:"export"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one event fan-out target.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Path returns the config file location for the workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".strikeline", "strikeline.yml")
}

// Default returns a config with the stock equipment catalogs.
func Default() *Config {
	cfg := &Config{}
	cfg.Bot.FileExtension = ".ldk"
	cfg.MainAdmin.Name = "Главный админ"
	cfg.Phone.DefaultRegion = "RU"
	cfg.Catalogs.Airframes = []string{"Утка", "Молния"}
	cfg.Catalogs.Payloads = []string{"ОФСП", "ОФБЧ", "СВУ", "Зажигалка", "Кумулятив", "ТМ62"}
	cfg.Server.Listen = "127.0.0.1:8044"
	cfg.Server.BasePath = "/v0"
	cfg.Export.Path = "report.xlsx"
	return cfg
}

// Load reads config from workspace, seeding a default file when missing.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := cfg.Save(workspace); err != nil {
				return nil, fmt.Errorf("seed config %s: %w", path, err)
			}
			return cfg, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// Save writes the config file into the workspace.
func (c *Config) Save(workspace string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Bot.FileExtension != "" && !strings.HasPrefix(c.Bot.FileExtension, ".") {
		return fmt.Errorf("config.bot.file_extension must start with a dot")
	}
	if c.Phone.DefaultRegion != "" && len(c.Phone.DefaultRegion) != 2 {
		return fmt.Errorf("config.phone.default_region must be a two-letter region code")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ProviderConfig 单个行情源的配置段 [provider.<name>]
type ProviderConfig struct {
	Enabled          bool   `toml:"enabled"`
	WsURL            string `toml:"ws_url"`
	RestURL          string `toml:"rest_url"`
	HistoryURL       string `toml:"history_url"`
	APIKey           string `toml:"api_key"`
	ReconnectDelayMs int    `toml:"reconnect_delay_ms"`
	PollIntervalMs   int    `toml:"poll_interval_ms"`
}

func (p ProviderConfig) ReconnectDelay() time.Duration {
	return time.Duration(p.ReconnectDelayMs) * time.Millisecond
}

func (p ProviderConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

type Config struct {
	App struct {
		LogLevel string `toml:"log_level"`
	} `toml:"app"`

	Chart struct {
		Symbols []string `toml:"symbols"`
		Period  string   `toml:"period"`
	} `toml:"chart"`

	Provider map[string]ProviderConfig `toml:"provider"`

	History struct {
		FirstPageSize int `toml:"first_page_size"`
		PageSize      int `toml:"page_size"`
		MaxRetries    int `toml:"max_retries"`
	} `toml:"history"`

	Storage struct {
		SQLite struct {
			Path string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`

		Redis struct {
			Enabled    bool   `toml:"enabled"`
			Addr       string `toml:"addr"`
			Password   string `toml:"password"`
			DB         int    `toml:"db"`
			Prefix     string `toml:"prefix"`
			TTLSeconds int    `toml:"ttl_seconds"`
		} `toml:"redis"`
	} `toml:"storage"`
}

// Load 读取 TOML 配置；同目录或工作目录下的 .env 会先加载，配置值里的 ${VAR} 会被展开
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(os.ExpandEnv(string(raw)))
}

// Parse 解析已展开环境变量的 TOML 文本
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Chart.Period == "" {
		cfg.Chart.Period = "1m"
	}
	if cfg.History.FirstPageSize <= 0 {
		cfg.History.FirstPageSize = 500
	}
	if cfg.History.PageSize <= 0 {
		cfg.History.PageSize = 200
	}
	if cfg.History.MaxRetries < 0 {
		cfg.History.MaxRetries = 0
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = ":memory:"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "tradefeed"
	}
	for name, p := range cfg.Provider {
		if p.ReconnectDelayMs <= 0 {
			p.ReconnectDelayMs = 5000
		}
		if p.PollIntervalMs <= 0 {
			p.PollIntervalMs = 5000
		}
		cfg.Provider[name] = p
	}
}

func validate(cfg *Config) error {
	cfg.Chart.Symbols = normalizeSymbols(cfg.Chart.Symbols)

	if len(cfg.EnabledProviders()) == 0 {
		return errors.New("no provider enabled")
	}
	if cfg.History.PageSize > cfg.History.FirstPageSize {
		return fmt.Errorf("history.page_size %d exceeds first_page_size %d", cfg.History.PageSize, cfg.History.FirstPageSize)
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	return nil
}

// EnabledProviders 已启用的行情源名称，按字母序
func (c *Config) EnabledProviders() []string {
	out := make([]string, 0, len(c.Provider))
	for name, p := range c.Provider {
		if p.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// 规范标识符区分大小写（期权的 C/P、合约后缀），这里只去空白和重复
func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.TrimSpace(s)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

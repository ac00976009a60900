// Package datafeed 行情源工厂注册表与按品种路由
package datafeed

import (
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"tradefeed/internal/application/port"
)

// Options 创建行情源所需的配置
type Options struct {
	Name           string
	WSURL          string
	RESTURL        string
	HistoryURL     string // 历史数据与元数据不在同一个域名时使用（polymarket CLOB）
	APIKey         string
	ReconnectDelay time.Duration
	PollInterval   time.Duration

	FirstPageSize int
	PageSize      int
	MaxRetries    int

	// HTTPClient 为空时使用 10s 超时的默认 client
	HTTPClient *http.Client
}

// Factory 行情源构造函数
type Factory func(opts Options) (port.DatafeedProvider, error)

// registry maps provider names to their factories
var registry = make(map[string]Factory)

// Register 由各行情源包的 init() 调用
func Register(name string, factory Factory) {
	if factory == nil {
		log.Warn().Str("provider", name).Msg("invalid datafeed factory")
		return
	}
	if _, exists := registry[name]; exists {
		log.Warn().Str("provider", name).Msg("datafeed factory already registered, overwriting")
	}
	registry[name] = factory
	log.Debug().Str("provider", name).Msg("datafeed factory registered")
}

// Get 获取已注册的工厂
func Get(name string) (Factory, bool) {
	factory, ok := registry[name]
	return factory, ok
}

// Names 已注册的行情源名称，按字母序
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

package binance

import (
	"tradefeed/internal/application/port"
	"tradefeed/internal/infrastructure/datafeed"
)

// init() 自注册，svc 只需按配置名取工厂
func init() {
	datafeed.Register(Name, func(opts datafeed.Options) (port.DatafeedProvider, error) {
		f, err := New(opts)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

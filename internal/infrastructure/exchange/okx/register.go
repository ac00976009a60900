package okx

import (
	"tradefeed/internal/application/port"
	"tradefeed/internal/infrastructure/datafeed"
)

// init() automatically registers the OKX derivatives datafeed factory
func init() {
	datafeed.Register(Name, func(opts datafeed.Options) (port.DatafeedProvider, error) {
		f, err := New(opts)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

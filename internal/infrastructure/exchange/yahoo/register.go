package yahoo

import (
	"tradefeed/internal/application/port"
	"tradefeed/internal/infrastructure/datafeed"
)

func init() {
	datafeed.Register(Name, func(opts datafeed.Options) (port.DatafeedProvider, error) {
		f, err := New(opts)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

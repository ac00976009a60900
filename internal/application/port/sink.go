package port

import (
	"context"

	"tradefeed/internal/domain/model"
)

type TickSink interface {
	// WriteTick key 为 "identifier|period"
	WriteTick(ctx context.Context, key string, point model.KLinePoint) error
	Close() error
}

package port

import (
	"context"

	"tradefeed/internal/domain/model"
)

// BarStore 会话内的 K 线缓存，key 为 "identifier|period"
type BarStore interface {
	UpsertBars(ctx context.Context, key string, bars []model.KLinePoint) error
	Bars(ctx context.Context, key string, limit int) ([]model.KLinePoint, error)
	Close() error
}

// SymbolCatalog 已解析品种的检索缓存
type SymbolCatalog interface {
	SaveSymbol(ctx context.Context, info model.SymbolInfo) error
	SearchSymbols(ctx context.Context, query string, limit int) ([]model.SymbolInfo, error)
	Close() error
}

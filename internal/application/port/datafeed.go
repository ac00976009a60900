package port

import (
	"context"
	"time"

	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
)

// TickFunc 实时 K 线回调；同一根 K 线在收盘前会被多次推送
type TickFunc func(model.KLinePoint)

// HistoryParams 历史查询参数
// FirstDataRequest 为 true 表示图表首次加载；否则 To 是向前翻页的截止时间（不包含）
type HistoryParams struct {
	From             time.Time
	To               time.Time
	CountBack        int
	FirstDataRequest bool
}

// HistoryResult 历史查询结果；没有数据不是错误
type HistoryResult struct {
	Bars   []model.KLinePoint
	NoData bool
	More   bool
}

// DatafeedProvider 行情源统一契约
//
// 每个阻塞方法恰好给出一个结果；SearchSymbols 失败时返回空列表而不是错误。
type DatafeedProvider interface {
	Name() string
	// OnReady 异步投递一次配置后关闭
	OnReady(ctx context.Context) <-chan model.DatafeedConfig
	SearchSymbols(ctx context.Context, query string) []model.SymbolInfo
	ResolveSymbol(ctx context.Context, ticker string) (model.SymbolInfo, error)
	GetHistoryKLineData(ctx context.Context, inst instrument.Instrument, period model.Period, params HistoryParams) (HistoryResult, error)
	Subscribe(inst instrument.Instrument, period model.Period, onTick TickFunc, listenerID string) error
	Unsubscribe(listenerID string)
	Close() error
}

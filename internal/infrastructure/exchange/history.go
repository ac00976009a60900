package exchange

import (
	"time"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/history"
)

// HistoryRange port 参数转为 history.Range
func HistoryRange(p port.HistoryParams) history.Range {
	return history.Range{
		From:             p.From,
		To:               p.To,
		CountBack:        p.CountBack,
		FirstDataRequest: p.FirstDataRequest,
	}
}

// HistoryResult history.Result 转为 port 结果
func HistoryResult(r history.Result) port.HistoryResult {
	return port.HistoryResult{Bars: r.Bars, NoData: r.NoData, More: r.More}
}

// Ready 异步投递一次配置
func Ready(cfg model.DatafeedConfig) <-chan model.DatafeedConfig {
	ch := make(chan model.DatafeedConfig, 1)
	go func() {
		ch <- cfg
		close(ch)
	}()
	return ch
}

// DefaultResolutions 推送类行情源支持的周期
var DefaultResolutions = []string{"1", "5", "15", "30", "60", "240", "1D", "1W", "1M"}

// MillisOrNow 零值表示当前时刻
func MillisOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

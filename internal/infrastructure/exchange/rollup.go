package exchange

import (
	"sync"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
)

// Rollup 把上游固定周期的 K 线滚动合成更大的周期
// 按 Timestamp 对齐到 bucket；同一根源 K 线重复到达时忽略
type Rollup struct {
	bucket int64 // ms

	mu   sync.Mutex
	cur  model.KLinePoint
	has  bool
	last int64
}

func NewRollup(period model.Period) *Rollup {
	return &Rollup{bucket: period.Duration().Milliseconds()}
}

// Add 合并一根源 K 线，返回目标周期当前这一根
func (r *Rollup) Add(p model.KLinePoint) (model.KLinePoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.has && p.Timestamp <= r.last {
		return model.KLinePoint{}, false
	}
	r.last = p.Timestamp

	start := p.Timestamp - p.Timestamp%r.bucket
	if !r.has || start != r.cur.Timestamp {
		r.cur = model.KLinePoint{
			Timestamp: start,
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			Volume:    p.Volume,
		}
		r.has = true
		return r.cur, true
	}

	r.cur.High = max(r.cur.High, p.High)
	r.cur.Low = min(r.cur.Low, p.Low)
	r.cur.Close = p.Close
	r.cur.Volume += p.Volume
	return r.cur, true
}

// Wrap 返回合成后再回调的 TickFunc
func (r *Rollup) Wrap(onTick port.TickFunc) port.TickFunc {
	return func(p model.KLinePoint) {
		if out, ok := r.Add(p); ok {
			onTick(out)
		}
	}
}

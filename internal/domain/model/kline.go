package model

import "sort"

// KLinePoint 一根 K 线
type KLinePoint struct {
	Timestamp int64    `json:"timestamp"` // epoch ms
	Open      float64  `json:"open"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Close     float64  `json:"close"`
	Volume    float64  `json:"volume"`
	Turnover  *float64 `json:"turnover,omitempty"`
}

// NormalizeBars 按时间升序并去重（同一时间戳保留后出现的一根）
func NormalizeBars(bars []KLinePoint) []KLinePoint {
	if len(bars) < 2 {
		return bars
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })

	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Timestamp == b.Timestamp {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// FillGaps 零成交量的 K 线不是有效的 OHLC 样本：用上一根的收盘价前向填充
// 从左到右扫描，以第一根原始 K 线的收盘价作为初始值；成交量和时间戳不变
func FillGaps(bars []KLinePoint) []KLinePoint {
	if len(bars) == 0 {
		return bars
	}
	carry := bars[0].Close
	for i := range bars {
		if bars[i].Volume == 0 {
			bars[i].Open = carry
			bars[i].High = carry
			bars[i].Low = carry
			bars[i].Close = carry
			continue
		}
		carry = bars[i].Close
	}
	return bars
}

package exchange

import (
	"strconv"
	"strings"

	"tradefeed/internal/domain/instrument"
)

// VenueSymbol 交易所交易对写法
// 例: sep="" -> BTCUSDT, sep="-" -> BTC-USDT
func VenueSymbol(inst instrument.Instrument, sep string) string {
	return strings.ToUpper(inst.BaseSymbol()) + sep + strings.ToUpper(inst.QuoteCurrency())
}

// MatchQuery 搜索时的大小写无关子串匹配
func MatchQuery(query string, fields ...string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToUpper(f), q) {
			return true
		}
	}
	return false
}

// ParseFloat 交易所价格字段多为字符串，解析失败按 0 处理
func ParseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// PriceScale 由最小价格变动推出价格精度，例: "0.01000000" -> 100
func PriceScale(tick string) int {
	tick = strings.TrimSpace(tick)
	_, frac, ok := strings.Cut(tick, ".")
	if !ok {
		return 1
	}
	frac = strings.TrimRight(frac, "0")
	scale := 1
	for range frac {
		scale *= 10
	}
	return scale
}

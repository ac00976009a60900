package instrument

import (
	"strings"
)

// 交易所后缀 -> 展示后缀
var stockSuffixes = []struct {
	suffix string
	label  string
}{
	{".SS", " (SH)"},
	{".SZ", " (SZ)"},
	{".HK", " (HK)"},
}

// DisplayName 面向用户的名称，只依赖 Instrument 字段
func (i Instrument) DisplayName() string {
	switch i.assetClass {
	case AssetPrediction:
		return humanize(i.baseSymbol) + "? " + i.productType.Outcome()
	case AssetCNStock, AssetHKStock:
		for _, s := range stockSuffixes {
			if strings.HasSuffix(i.baseSymbol, s.suffix) {
				return strings.TrimSuffix(i.baseSymbol, s.suffix) + s.label
			}
		}
		return i.baseSymbol
	}

	switch i.productType {
	case ProductSpot, ProductPerp:
		if i.assetClass == AssetUSStock {
			return i.baseSymbol
		}
		return i.baseSymbol + "/" + i.quote
	case ProductFutures:
		name := i.baseSymbol + "-" + i.quote
		if i.hasExpiry {
			name += " " + formatExpiry(i)
		}
		return name
	case ProductOption:
		if !i.hasStrike || !i.hasExpiry || i.optionType == "" {
			return i.underlying
		}
		return i.baseSymbol + " " + i.strike.String() + " " + i.optionType.String() + " " + formatExpiry(i)
	}
	return i.underlying
}

// Ticker 交易所侧代码
// CRYPTO PERP: BTC-USDT-SWAP；其他 CRYPTO: BTC-USDT；非加密资产直接用 baseSymbol
func (i Instrument) Ticker() string {
	if i.assetClass != AssetCrypto {
		return i.baseSymbol
	}
	if i.productType == ProductPerp {
		return i.baseSymbol + "-" + i.quote + "-SWAP"
	}
	return i.baseSymbol + "-" + i.quote
}

// formatExpiry 月份简写 + 两位日期，例如 "Mar 29"
func formatExpiry(i Instrument) string {
	return i.expiry.Format("Jan 02")
}

func humanize(slug string) string {
	s := strings.ReplaceAll(slug, "-", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Package instrument 解析与编码规范化的品种标识符。
//
// 标识符格式：
//
//	ASSET_CLASS ":" underlying ["." MARKET] "@" QUOTE "_" PRODUCT_TYPE
//
// 例如 CRYPTO:BTC@USDT_SPOT、US_STOCK:AAPL@USD_SPOT、HK_STOCK:0700.HK@HKD_SPOT、
// CRYPTO:BTC-240329-50000-C@USD_OPTION、PREDICTION:will-btc-hit-100k@USD_OUTCOME_YES。
//
// Parse 是全函数：任何输入都会得到一个 Instrument，格式错误时退化为
// UNKNOWN/UNKNOWN，不会返回错误。
package instrument

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// underlying 非贪婪匹配，market 只有在紧挨 "@" 前的 "." 之后才会被消费
var identifierRe = regexp.MustCompile(`^([A-Z_]+):(.+?)(?:\.([A-Z]+))?@([A-Z]+)_([A-Z_]+)$`)

const defaultQuote = "USD"

// Instrument 不可变的品种值，只能由 Parse 产生
type Instrument struct {
	identifier  string
	assetClass  AssetClass
	underlying  string
	baseSymbol  string
	market      string
	quote       string
	productType ProductType
	expiry      time.Time
	hasExpiry   bool
	strike      decimal.Decimal
	hasStrike   bool
	optionType  OptionType
}

// Parse 解析标识符，永不失败
func Parse(identifier string) Instrument {
	m := identifierRe.FindStringSubmatch(identifier)
	if m == nil {
		return Instrument{
			identifier:  identifier,
			assetClass:  AssetUnknown,
			underlying:  identifier,
			baseSymbol:  identifier,
			quote:       defaultQuote,
			productType: ProductUnknown,
		}
	}

	inst := Instrument{
		identifier:  identifier,
		assetClass:  parseAssetClass(m[1]),
		underlying:  m[2],
		market:      m[3],
		quote:       m[4],
		productType: parseProductType(m[5]),
	}
	inst.baseSymbol = inst.deriveBaseSymbol()

	switch inst.productType {
	case ProductOption, ProductFutures:
		inst.parseDerivativeDetails()
	}
	return inst
}

// Encode 返回原始标识符；对 Parse 的结果是恒等映射
func Encode(i Instrument) string {
	return i.identifier
}

// Build 由各字段组装规范标识符并解析
func Build(asset AssetClass, underlying, market, quote string, product ProductType) Instrument {
	var b strings.Builder
	b.WriteString(string(asset))
	b.WriteByte(':')
	b.WriteString(underlying)
	if market != "" {
		b.WriteByte('.')
		b.WriteString(market)
	}
	b.WriteByte('@')
	b.WriteString(quote)
	b.WriteByte('_')
	b.WriteString(string(product))
	return Parse(b.String())
}

func (i Instrument) deriveBaseSymbol() string {
	switch {
	case i.assetClass.IsStock():
		if i.market != "" {
			return i.underlying + "." + i.market
		}
		return i.underlying
	case i.productType.IsDerivative():
		base, _, _ := strings.Cut(i.underlying, "-")
		return base
	default:
		return i.underlying
	}
}

// parseDerivativeDetails 提取到期日、行权价、期权方向；任何失败都吞掉，顶层字段保持有效
func (i *Instrument) parseDerivativeDetails() {
	parts := strings.Split(i.underlying, "-")

	switch i.productType {
	case ProductOption:
		if len(parts) < 4 {
			return
		}
		expiry, ok := parseExpiry(parts[1])
		if !ok {
			return
		}
		strike, err := decimal.NewFromString(parts[2])
		if err != nil {
			return
		}
		side := OptionType(parts[3])
		if side != OptionCall && side != OptionPut {
			return
		}
		i.expiry, i.hasExpiry = expiry, true
		i.strike, i.hasStrike = strike, true
		i.optionType = side

	case ProductFutures:
		if len(parts) < 2 {
			return
		}
		if expiry, ok := parseExpiry(parts[1]); ok {
			i.expiry, i.hasExpiry = expiry, true
		}
	}
}

// parseExpiry 6 位 YYMMDD（固定 2000 世纪）或 8 位 YYYYMMDD
func parseExpiry(s string) (time.Time, bool) {
	var year, month, day int
	var err error
	switch len(s) {
	case 6:
		year, err = strconv.Atoi(s[0:2])
		year += 2000
	case 8:
		year, err = strconv.Atoi(s[0:4])
	default:
		return time.Time{}, false
	}
	if err != nil {
		return time.Time{}, false
	}
	tail := s[len(s)-4:]
	if month, err = strconv.Atoi(tail[0:2]); err != nil {
		return time.Time{}, false
	}
	if day, err = strconv.Atoi(tail[2:4]); err != nil {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date 会把 13 月、2 月 30 日等归一化，归一化过的视为非法
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func (i Instrument) String() string               { return i.identifier }
func (i Instrument) Identifier() string           { return i.identifier }
func (i Instrument) AssetClass() AssetClass       { return i.assetClass }
func (i Instrument) UnderlyingIdentifier() string { return i.underlying }
func (i Instrument) BaseSymbol() string           { return i.baseSymbol }
func (i Instrument) Market() string               { return i.market }
func (i Instrument) QuoteCurrency() string        { return i.quote }
func (i Instrument) ProductType() ProductType     { return i.productType }

// Expiry 仅 FUTURES / OPTION 解析成功时存在
func (i Instrument) Expiry() (time.Time, bool) { return i.expiry, i.hasExpiry }

// Strike 仅 OPTION
func (i Instrument) Strike() (decimal.Decimal, bool) { return i.strike, i.hasStrike }

// OptionType 仅 OPTION，未设置时为空串
func (i Instrument) OptionType() OptionType { return i.optionType }

// IsValid 资产大类已知
func (i Instrument) IsValid() bool {
	return i.assetClass != AssetUnknown
}

// Equal 按规范标识符比较
func (i Instrument) Equal(u Instrument) bool {
	return i.identifier == u.identifier
}

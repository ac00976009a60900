package instrument

import "strings"

// AssetClass 资产大类
type AssetClass string

const (
	AssetCrypto     AssetClass = "CRYPTO"
	AssetUSStock    AssetClass = "US_STOCK"
	AssetHKStock    AssetClass = "HK_STOCK"
	AssetCNStock    AssetClass = "CN_STOCK"
	AssetPrediction AssetClass = "PREDICTION"
	AssetUnknown    AssetClass = "UNKNOWN"
)

var knownAssetClasses = map[AssetClass]struct{}{
	AssetCrypto:     {},
	AssetUSStock:    {},
	AssetHKStock:    {},
	AssetCNStock:    {},
	AssetPrediction: {},
}

func parseAssetClass(s string) AssetClass {
	if _, ok := knownAssetClasses[AssetClass(s)]; ok {
		return AssetClass(s)
	}
	return AssetUnknown
}

// IsStock 股票类资产（代码保留交易所后缀）
func (a AssetClass) IsStock() bool {
	return a == AssetUSStock || a == AssetHKStock || a == AssetCNStock
}

// ProductType 产品类型
// 预测市场的 OUTCOME_* 类型按原样保留
type ProductType string

const (
	ProductSpot    ProductType = "SPOT"
	ProductPerp    ProductType = "PERP"
	ProductFutures ProductType = "FUTURES"
	ProductOption  ProductType = "OPTION"
	ProductBinary  ProductType = "BINARY"
	ProductUnknown ProductType = "UNKNOWN"

	outcomePrefix = "OUTCOME_"
)

func parseProductType(s string) ProductType {
	switch p := ProductType(s); p {
	case ProductSpot, ProductPerp, ProductFutures, ProductOption, ProductBinary:
		return p
	}
	if strings.HasPrefix(s, outcomePrefix) && len(s) > len(outcomePrefix) {
		return ProductType(s)
	}
	return ProductUnknown
}

// IsDerivative PERP / FUTURES / OPTION
func (p ProductType) IsDerivative() bool {
	return p == ProductPerp || p == ProductFutures || p == ProductOption
}

// IsOutcome 预测市场结果类型，例如 OUTCOME_YES
func (p ProductType) IsOutcome() bool {
	return strings.HasPrefix(string(p), outcomePrefix)
}

// Outcome 去掉 OUTCOME_ 前缀后的结果名
func (p ProductType) Outcome() string {
	return strings.TrimPrefix(string(p), outcomePrefix)
}

// OptionType 期权方向
type OptionType string

const (
	OptionCall OptionType = "C"
	OptionPut  OptionType = "P"
)

func (o OptionType) String() string {
	switch o {
	case OptionCall:
		return "Call"
	case OptionPut:
		return "Put"
	}
	return ""
}

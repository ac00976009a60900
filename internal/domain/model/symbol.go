package model

import "tradefeed/internal/domain/instrument"

// SymbolInfo ResolveSymbol / SearchSymbols 的结果
type SymbolInfo struct {
	Ticker               string                `json:"ticker"` // 规范标识符
	Name                 string                `json:"name"`
	Description          string                `json:"description"`
	Exchange             string                `json:"exchange"`
	AssetClass           instrument.AssetClass `json:"asset_class"`
	Type                 string                `json:"type"`
	Timezone             string                `json:"timezone"`
	Session              string                `json:"session"`
	PriceScale           int                   `json:"pricescale"`
	SupportedResolutions []string              `json:"supported_resolutions"`
	Provider             string                `json:"provider"`
}

// Instrument 由规范标识符解析
func (s SymbolInfo) Instrument() instrument.Instrument {
	return instrument.Parse(s.Ticker)
}

// NewSymbolInfo 用 Instrument 填充公共字段
func NewSymbolInfo(inst instrument.Instrument, provider, exchange string) SymbolInfo {
	return SymbolInfo{
		Ticker:      inst.Identifier(),
		Name:        inst.DisplayName(),
		Description: inst.DisplayName(),
		Exchange:    exchange,
		AssetClass:  inst.AssetClass(),
		Type:        string(inst.ProductType()),
		Timezone:    "Etc/UTC",
		Session:     "24x7",
		PriceScale:  100,
		Provider:    provider,
	}
}

// Exchange 交易所描述
type Exchange struct {
	Value string `json:"value"`
	Name  string `json:"name"`
	Desc  string `json:"desc"`
}

// DatafeedConfig OnReady 下发的静态配置
type DatafeedConfig struct {
	SupportedResolutions []string   `json:"supported_resolutions"`
	Exchanges            []Exchange `json:"exchanges"`
}

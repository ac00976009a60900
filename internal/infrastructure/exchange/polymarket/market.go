package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
)

// market gamma 接口返回的市场；outcomes 和 clobTokenIds 是 JSON 编码过的字符串
type market struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	Slug         string `json:"slug"`
	Outcomes     string `json:"outcomes"`
	ClobTokenIDs string `json:"clobTokenIds"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
}

// outcome 一个结果对应一个 CLOB token
type outcome struct {
	Name    string
	TokenID string
}

func (m market) outcomes() ([]outcome, error) {
	var names, tokens []string
	if err := json.Unmarshal([]byte(m.Outcomes), &names); err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokens); err != nil {
		return nil, fmt.Errorf("clobTokenIds: %w", err)
	}
	if len(names) != len(tokens) {
		return nil, fmt.Errorf("outcomes/tokens mismatch: %d vs %d", len(names), len(tokens))
	}
	out := make([]outcome, len(names))
	for i := range names {
		out[i] = outcome{Name: names[i], TokenID: tokens[i]}
	}
	return out, nil
}

// OutcomeProduct 结果名 -> 产品类型，例: "Yes" -> OUTCOME_YES，"Donald Trump" -> OUTCOME_DONALD_TRUMP
func OutcomeProduct(name string) instrument.ProductType {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return instrument.ProductType("OUTCOME_" + b.String())
}

func outcomeInstrument(slug, name string) instrument.Instrument {
	return instrument.Build(instrument.AssetPrediction, slug, "", "USD", OutcomeProduct(name))
}

func symbolInfo(m market, o outcome) model.SymbolInfo {
	info := model.NewSymbolInfo(outcomeInstrument(m.Slug, o.Name), Name, "POLYMARKET")
	info.Description = m.Question
	info.Type = "prediction"
	info.PriceScale = 1000
	info.SupportedResolutions = resolutions
	return info
}

// marketBySlug GET /markets?slug=
func (f *Feed) marketBySlug(ctx context.Context, slug string) (market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	var markets []market
	if err := f.gamma.GetJSON(ctx, "/markets", params, &markets); err != nil {
		return market{}, err
	}
	if len(markets) == 0 {
		return market{}, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, slug)
	}
	return markets[0], nil
}

// tokenFor 标识符 -> CLOB token id，结果缓存
func (f *Feed) tokenFor(ctx context.Context, inst instrument.Instrument) (string, market, error) {
	key := inst.Identifier()

	f.mu.Lock()
	tok, ok := f.tokens[key]
	f.mu.Unlock()
	if ok {
		return tok.tokenID, tok.market, nil
	}

	m, err := f.marketBySlug(ctx, inst.UnderlyingIdentifier())
	if err != nil {
		return "", market{}, err
	}
	outcomes, err := m.outcomes()
	if err != nil {
		return "", market{}, &feederr.UpstreamError{Provider: Name, Status: 200, Message: err.Error()}
	}
	for _, o := range outcomes {
		if OutcomeProduct(o.Name) == inst.ProductType() {
			f.mu.Lock()
			f.tokens[key] = cachedToken{tokenID: o.TokenID, market: m}
			f.mu.Unlock()
			return o.TokenID, m, nil
		}
	}
	return "", market{}, fmt.Errorf("%w: outcome %s of %s", feederr.ErrSymbolNotFound, inst.ProductType().Outcome(), m.Slug)
}

type searchResponse struct {
	Events []struct {
		Title   string   `json:"title"`
		Markets []market `json:"markets"`
	} `json:"events"`
}

// search GET /public-search?q=
func (f *Feed) search(ctx context.Context, query string) ([]market, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit_per_type", "10")

	var resp searchResponse
	if err := f.gamma.GetJSON(ctx, "/public-search", params, &resp); err != nil {
		return nil, err
	}
	var out []market
	for _, e := range resp.Events {
		for _, m := range e.Markets {
			if m.Active && !m.Closed {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

package datafeed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/feederr"
	"tradefeed/internal/domain/instrument"
	"tradefeed/internal/domain/model"
)

// Capability 行情源声明自己负责哪些品种
type Capability interface {
	Supports(inst instrument.Instrument) bool
}

const searchCatalogLimit = 20

// ErrNoProviders 配置里没有启用任何行情源
var ErrNoProviders = errors.New("no datafeed providers enabled")

// Router 按品种把调用分发给具体行情源，本身也实现 DatafeedProvider
type Router struct {
	providers []port.DatafeedProvider
	catalog   port.SymbolCatalog // 可为空

	mu     sync.Mutex
	owners map[string]port.DatafeedProvider // listenerID -> provider
}

var _ port.DatafeedProvider = (*Router)(nil)

// NewRouter 按传入顺序匹配，先声明支持的行情源优先
func NewRouter(catalog port.SymbolCatalog, providers ...port.DatafeedProvider) *Router {
	return &Router{
		providers: providers,
		catalog:   catalog,
		owners:    make(map[string]port.DatafeedProvider),
	}
}

func (r *Router) Name() string { return "router" }

// Providers 路由中的行情源
func (r *Router) Providers() []port.DatafeedProvider {
	return r.providers
}

// ProviderFor 找到负责该品种的行情源
func (r *Router) ProviderFor(inst instrument.Instrument) (port.DatafeedProvider, error) {
	if !inst.IsValid() {
		return nil, fmt.Errorf("%w: %s", feederr.ErrSymbolNotFound, inst.Identifier())
	}
	for _, p := range r.providers {
		if c, ok := p.(Capability); ok && c.Supports(inst) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no provider for %s", feederr.ErrUnsupported, inst.Identifier())
}

// OnReady 合并所有行情源的配置
func (r *Router) OnReady(ctx context.Context) <-chan model.DatafeedConfig {
	out := make(chan model.DatafeedConfig, 1)
	go func() {
		defer close(out)

		merged := model.DatafeedConfig{}
		seenRes := make(map[string]bool)
		seenEx := make(map[string]bool)
		for _, p := range r.providers {
			select {
			case cfg, ok := <-p.OnReady(ctx):
				if !ok {
					continue
				}
				for _, res := range cfg.SupportedResolutions {
					if !seenRes[res] {
						seenRes[res] = true
						merged.SupportedResolutions = append(merged.SupportedResolutions, res)
					}
				}
				for _, ex := range cfg.Exchanges {
					if !seenEx[ex.Value] {
						seenEx[ex.Value] = true
						merged.Exchanges = append(merged.Exchanges, ex)
					}
				}
			case <-ctx.Done():
				return
			}
		}
		out <- merged
	}()
	return out
}

// SearchSymbols 并发查询所有行情源和本地目录，按行情源顺序合并去重
func (r *Router) SearchSymbols(ctx context.Context, query string) []model.SymbolInfo {
	results := make([][]model.SymbolInfo, len(r.providers)+1)

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range r.providers {
		g.Go(func() error {
			results[i] = p.SearchSymbols(gctx, query)
			return nil
		})
	}
	if r.catalog != nil {
		g.Go(func() error {
			found, err := r.catalog.SearchSymbols(gctx, query, searchCatalogLimit)
			if err != nil {
				log.Warn().Err(err).Str("query", query).Msg("symbol catalog search failed")
				return nil
			}
			results[len(r.providers)] = found
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	out := make([]model.SymbolInfo, 0)
	for _, group := range results {
		for _, info := range group {
			if seen[info.Ticker] {
				continue
			}
			seen[info.Ticker] = true
			out = append(out, info)
		}
	}
	return out
}

// ResolveSymbol 解析成功的品种写入目录
func (r *Router) ResolveSymbol(ctx context.Context, ticker string) (model.SymbolInfo, error) {
	p, err := r.ProviderFor(instrument.Parse(ticker))
	if err != nil {
		return model.SymbolInfo{}, err
	}
	info, err := p.ResolveSymbol(ctx, ticker)
	if err != nil {
		return model.SymbolInfo{}, err
	}
	if r.catalog != nil {
		if err := r.catalog.SaveSymbol(ctx, info); err != nil {
			log.Warn().Err(err).Str("symbol", info.Ticker).Msg("save symbol failed")
		}
	}
	return info, nil
}

func (r *Router) GetHistoryKLineData(ctx context.Context, inst instrument.Instrument, period model.Period, params port.HistoryParams) (port.HistoryResult, error) {
	p, err := r.ProviderFor(inst)
	if err != nil {
		return port.HistoryResult{}, err
	}
	return p.GetHistoryKLineData(ctx, inst, period, params)
}

// Subscribe 记录 listenerID 归属，以便退订路由到同一行情源
func (r *Router) Subscribe(inst instrument.Instrument, period model.Period, onTick port.TickFunc, listenerID string) error {
	p, err := r.ProviderFor(inst)
	if err != nil {
		return err
	}

	// 订阅失败时不记录归属，原有订阅保持不变
	if err := p.Subscribe(inst, period, onTick, listenerID); err != nil {
		return err
	}

	r.mu.Lock()
	prev, had := r.owners[listenerID]
	r.owners[listenerID] = p
	r.mu.Unlock()

	// 监听者换了行情源，从旧的上面释放
	if had && prev != p {
		prev.Unsubscribe(listenerID)
	}
	return nil
}

func (r *Router) Unsubscribe(listenerID string) {
	r.mu.Lock()
	p, ok := r.owners[listenerID]
	delete(r.owners, listenerID)
	r.mu.Unlock()

	if ok {
		p.Unsubscribe(listenerID)
	}
}

// Close 关闭所有行情源，返回第一个错误
func (r *Router) Close() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return firstErr
}

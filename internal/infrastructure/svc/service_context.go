package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tradefeed/internal/application/port"
	"tradefeed/internal/application/usecase/chart"
	"tradefeed/internal/domain/model"
	"tradefeed/internal/infrastructure/config"
	"tradefeed/internal/infrastructure/datafeed"
	"tradefeed/internal/infrastructure/storage/composite"
	pgrepo "tradefeed/internal/infrastructure/storage/postgres"
	redisrepo "tradefeed/internal/infrastructure/storage/redis"
	sqliterepo "tradefeed/internal/infrastructure/storage/sqlite"
	"tradefeed/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	redisClient *redisclient.Client
	barStore    port.BarStore
	catalog     port.SymbolCatalog
	sinks       []port.TickSink

	// 输出端口
	Sink port.TickSink

	// 行情源
	providers []port.DatafeedProvider
	Router    *datafeed.Router

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化：存储 -> 行情源 -> 路由
func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}
	if err := sc.initializeProviders(); err != nil {
		return err
	}

	sc.Router = datafeed.NewRouter(sc.catalog, sc.providers...)
	// 路由关闭时关闭全部行情源
	sc.closerChain = append(sc.closerChain, sc.Router.Close)

	log.Info().
		Int("providers", len(sc.providers)).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage SQLite 会话缓存必选，Postgres 目录和 Redis 推送可选
func (sc *ServiceContext) initializeStorage() error {
	if err := sc.initSQLite(); err != nil {
		return fmt.Errorf("sqlite initialization failed: %w", err)
	}
	if sc.Config.Storage.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
	}
	if sc.Config.Storage.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}

	sc.sinks = append([]port.TickSink{console.NewSink()}, sc.sinks...)
	sc.Sink = composite.New(sc.sinks...)
	return nil
}

// initSQLite 初始化会话 K 线缓存
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.Storage.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.barStore = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.Storage.SQLite.Path).
		Msg("✓ SQLite initialized")
	return nil
}

// initPostgres 初始化品种目录
func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.catalog = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	rc := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisClient = rdb
	ttl := time.Duration(rc.TTLSeconds) * time.Second
	sc.sinks = append(sc.sinks, redisrepo.New(rdb, rc.Prefix, ttl))

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", rc.Addr).
		Int("db", rc.DB).
		Msg("✓ Redis initialized")
	return nil
}

// initializeProviders 按配置创建已启用的行情源
func (sc *ServiceContext) initializeProviders() error {
	for _, name := range sc.Config.EnabledProviders() {
		factory, ok := datafeed.Get(name)
		if !ok {
			return fmt.Errorf("%w: %s (registered: %v)", ErrUnknownProvider, name, datafeed.Names())
		}

		pc := sc.Config.Provider[name]
		p, err := factory(datafeed.Options{
			Name:           name,
			WSURL:          pc.WsURL,
			RESTURL:        pc.RestURL,
			HistoryURL:     pc.HistoryURL,
			APIKey:         pc.APIKey,
			ReconnectDelay: pc.ReconnectDelay(),
			PollInterval:   pc.PollInterval(),
			FirstPageSize:  sc.Config.History.FirstPageSize,
			PageSize:       sc.Config.History.PageSize,
			MaxRetries:     sc.Config.History.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		sc.providers = append(sc.providers, p)
		log.Info().Str("provider", name).Msg("✓ Datafeed provider initialized")
	}

	if len(sc.providers) == 0 {
		return ErrNoFeedsEnabled
	}
	return nil
}

// BarStore 会话 K 线缓存
func (sc *ServiceContext) BarStore() port.BarStore {
	return sc.barStore
}

// BuildChartServiceDeps 构建图表会话所需的全部依赖
func (sc *ServiceContext) BuildChartServiceDeps() (chart.ServiceDeps, error) {
	period, err := model.ParsePeriod(sc.Config.Chart.Period)
	if err != nil {
		return chart.ServiceDeps{}, fmt.Errorf("chart.period: %w", err)
	}
	return chart.ServiceDeps{
		Provider:    sc.Router,
		Symbols:     sc.Config.Chart.Symbols,
		Period:      period,
		Store:       sc.barStore,
		Sink:        sc.Sink,
		StatusEvery: time.Minute,
	}, nil
}

// Close 按照相反的顺序关闭所有资源
// 应该在应用退出时调用
func (sc *ServiceContext) Close() error {
	if sc.Router == nil {
		// 路由未建立时行情源需要单独关闭
		for _, p := range sc.providers {
			if err := p.Close(); err != nil {
				log.Error().Err(err).Str("provider", p.Name()).Msg("error closing provider")
			}
		}
	}

	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}

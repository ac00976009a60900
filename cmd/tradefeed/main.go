package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"tradefeed/internal/application/usecase/chart"
	"tradefeed/internal/infrastructure/config"
	"tradefeed/internal/infrastructure/datafeed"
	"tradefeed/internal/infrastructure/logger"
	"tradefeed/internal/infrastructure/svc"

	// 行情源通过 init() 注册
	_ "tradefeed/internal/infrastructure/exchange/binance"
	_ "tradefeed/internal/infrastructure/exchange/okx"
	_ "tradefeed/internal/infrastructure/exchange/polygon"
	_ "tradefeed/internal/infrastructure/exchange/polymarket"
	_ "tradefeed/internal/infrastructure/exchange/yahoo"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Strs("registered", datafeed.Names()).Msg("service init failed")
	}
	defer sc.Close()

	deps, err := sc.BuildChartServiceDeps()
	if err != nil {
		log.Fatal().Err(err).Msg("chart config invalid")
	}

	log.Info().
		Str("config", *configPath).
		Strs("providers", cfg.EnabledProviders()).
		Int("symbols", len(cfg.Chart.Symbols)).
		Str("period", deps.Period.String()).
		Msg("tradefeed started")

	if err := chart.NewService(deps).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("chart service exited")
	}
}

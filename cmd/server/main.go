package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/approval"
	"github.com/sicko7947/campaignflow/httpapi"
	"github.com/sicko7947/campaignflow/metrics"
	"github.com/sicko7947/campaignflow/query"
	"github.com/sicko7947/campaignflow/service"
	"github.com/sicko7947/campaignflow/signaller"
	"github.com/sicko7947/campaignflow/store"
)

func main() {
	cfg, cfgErr := campaignflow.LoadConfig()
	logger := campaignflow.NewLogger(cfg.LogLevel, cfg.LogPretty)
	log.Logger = logger
	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("Failed to load env file")
	}

	ctx := context.Background()

	ddb, err := store.NewClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create DynamoDB client")
	}
	sfnClient, err := signaller.NewClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Step Functions client")
	}

	collector := metrics.NewCollector()
	entityStore := store.NewDynamoDBStore(
		store.NewResilientClient(ddb, store.DefaultReadRetryConfig()),
		cfg.TableName,
	)
	queries := query.NewEngine(entityStore,
		query.WithLogger(logger),
		query.WithMetrics(collector),
	)
	engineSignaller := signaller.NewStepFunctions(sfnClient,
		signaller.WithTimeout(cfg.SignalTimeout),
		signaller.WithLogger(logger),
	)

	serviceOpts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(collector),
	}
	server := httpapi.NewServer(
		service.NewCampaignService(entityStore, queries, serviceOpts...),
		service.NewPostService(entityStore, queries, serviceOpts...),
		approval.NewBridge(entityStore, engineSignaller,
			approval.WithLogger(logger),
			approval.WithMetrics(collector),
		),
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(collector),
		httpapi.WithTenantHeader(cfg.TenantHeader),
		httpapi.WithHealthDetails(func() fiber.Map {
			return fiber.Map{"signaller": engineSignaller.BreakerState()}
		}),
	)
	app := server.App()

	log.Info().
		Str("table", cfg.TableName).
		Str("region", cfg.AWSRegion).
		Msg("Campaign service initialized")

	// Start server in a goroutine
	go func() {
		log.Info().Str("address", cfg.ListenAddr).Msg("Starting HTTP server")
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

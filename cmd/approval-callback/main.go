package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/approval"
	"github.com/sicko7947/campaignflow/lambdaapi"
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

	entityStore := store.NewDynamoDBStore(
		store.NewResilientClient(ddb, store.DefaultReadRetryConfig()),
		cfg.TableName,
	)
	bridge := approval.NewBridge(entityStore,
		signaller.NewStepFunctions(sfnClient,
			signaller.WithTimeout(cfg.SignalTimeout),
			signaller.WithLogger(logger),
		),
		approval.WithLogger(logger),
	)

	handler := lambdaapi.NewHandler(bridge, logger)
	lambda.Start(handler.HandleApproval)
}

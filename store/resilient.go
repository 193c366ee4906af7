package store

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ReadRetryConfig configures retries of idempotent reads
type ReadRetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultReadRetryConfig returns the retry settings used by the binaries
func DefaultReadRetryConfig() ReadRetryConfig {
	return ReadRetryConfig{
		MaxRetries: 2,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   time.Second,
	}
}

// ResilientClient retries GetItem and Query through a failsafe retry
// policy. Writes pass straight through: a retried conditional write
// could report its own earlier success as a conflict.
type ResilientClient struct {
	DynamoDBClient
	getExecutor   failsafe.Executor[*dynamodb.GetItemOutput]
	queryExecutor failsafe.Executor[*dynamodb.QueryOutput]
}

// NewResilientClient wraps client with read retries
func NewResilientClient(client DynamoDBClient, cfg ReadRetryConfig) *ResilientClient {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 50 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	return &ResilientClient{
		DynamoDBClient: client,
		getExecutor:    failsafe.With(newReadRetryPolicy[*dynamodb.GetItemOutput](cfg)),
		queryExecutor:  failsafe.With(newReadRetryPolicy[*dynamodb.QueryOutput](cfg)),
	}
}

func newReadRetryPolicy[R any](cfg ReadRetryConfig) retrypolicy.RetryPolicy[R] {
	return retrypolicy.NewBuilder[R]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ R, err error) bool {
			return isRetryableRead(err)
		}).
		ReturnLastFailure().
		Build()
}

// retryableCodes are the client-fault API errors worth another attempt
var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"LimitExceededException":                 true,
	"TransactionInProgressException":         true,
}

// isRetryableRead reports whether a read failed for a transient reason.
// Errors without an API response are transport failures and are retried;
// API errors are retried only for server faults and throttling.
func isRetryableRead(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultServer || retryableCodes[apiErr.ErrorCode()]
}

func (c *ResilientClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return c.getExecutor.WithContext(ctx).Get(func() (*dynamodb.GetItemOutput, error) {
		return c.DynamoDBClient.GetItem(ctx, params, optFns...)
	})
}

func (c *ResilientClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return c.queryExecutor.WithContext(ctx).Get(func() (*dynamodb.QueryOutput, error) {
		return c.DynamoDBClient.Query(ctx, params, optFns...)
	})
}

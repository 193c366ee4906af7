// Package signaller delivers approval decisions to AWS Step Functions
// executions parked on a task token.
package signaller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/rs/zerolog"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/approval"
)

// SFNClient is the part of the Step Functions API the signaller uses
type SFNClient interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
}

var _ SFNClient = (*sfn.Client)(nil)

// BreakerConfig configures the circuit breaker around the engine
type BreakerConfig struct {
	// FailureThreshold failures out of FailureWindow calls open the breaker
	FailureThreshold uint
	FailureWindow    uint
	// Delay is how long the breaker stays open before probing again
	Delay time.Duration
	// SuccessThreshold probes must succeed before the breaker closes
	SuccessThreshold uint
}

// DefaultBreakerConfig returns the breaker settings used by the binaries
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		FailureWindow:    10,
		Delay:            15 * time.Second,
		SuccessThreshold: 1,
	}
}

// StepFunctions implements approval.Signaller with SendTaskSuccess
type StepFunctions struct {
	client   SFNClient
	breaker  circuitbreaker.CircuitBreaker[*sfn.SendTaskSuccessOutput]
	executor failsafe.Executor[*sfn.SendTaskSuccessOutput]
	timeout  time.Duration
	logger   zerolog.Logger
}

var _ approval.Signaller = (*StepFunctions)(nil)

// Option configures the signaller
type Option func(*settings)

type settings struct {
	breaker BreakerConfig
	timeout time.Duration
	logger  zerolog.Logger
}

// WithBreaker replaces the circuit breaker settings
func WithBreaker(cfg BreakerConfig) Option {
	return func(s *settings) {
		s.breaker = cfg
	}
}

// WithTimeout bounds each call to the engine
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

// WithLogger sets the signaller logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// NewStepFunctions creates a signaller over client
func NewStepFunctions(client SFNClient, opts ...Option) *StepFunctions {
	cfg := settings{
		breaker: DefaultBreakerConfig(),
		timeout: campaignflow.DefaultConfig.SignalTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	breaker := circuitbreaker.NewBuilder[*sfn.SendTaskSuccessOutput]().
		WithFailureThresholdRatio(cfg.breaker.FailureThreshold, cfg.breaker.FailureWindow).
		WithDelay(cfg.breaker.Delay).
		WithSuccessThreshold(cfg.breaker.SuccessThreshold).
		HandleIf(func(_ *sfn.SendTaskSuccessOutput, err error) bool {
			// A rejected token is an answer, not an outage
			return err != nil && !isTokenRejected(err)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.Warn().
				Str("circuit_breaker", "step_functions").
				Str("from_state", stateName(event.OldState)).
				Str("to_state", stateName(event.NewState)).
				Msg("Circuit breaker state change")
		}).
		Build()

	return &StepFunctions{
		client:   client,
		breaker:  breaker,
		executor: failsafe.With[*sfn.SendTaskSuccessOutput](breaker),
		timeout:  cfg.timeout,
		logger:   cfg.logger,
	}
}

// NewClient builds a Step Functions client from the default AWS credential chain
func NewClient(ctx context.Context, cfg campaignflow.Config) (*sfn.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sfn.NewFromConfig(awsCfg), nil
}

// SendDecision completes the task waiting on callbackID with result as its output
func (s *StepFunctions) SendDecision(ctx context.Context, callbackID string, result []byte) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.executor.WithContext(ctx).Get(func() (*sfn.SendTaskSuccessOutput, error) {
		return s.client.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
			TaskToken: aws.String(callbackID),
			Output:    aws.String(string(result)),
		})
	})
	if err == nil {
		return nil
	}

	if isTokenRejected(err) {
		return fmt.Errorf("task token rejected: %w: %w", approval.ErrExpired, err)
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		s.logger.Warn().Msg("Workflow engine circuit open; decision not sent")
	}
	return campaignflow.NewExternalServiceError("signal workflow engine", err)
}

// BreakerState reports the breaker state for health checks
func (s *StepFunctions) BreakerState() string {
	return stateName(s.breaker.State())
}

// isTokenRejected reports whether the engine no longer waits on the token
func isTokenRejected(err error) bool {
	var (
		timedOut *types.TaskTimedOut
		invalid  *types.InvalidToken
		missing  *types.TaskDoesNotExist
	)
	return errors.As(err, &timedOut) || errors.As(err, &invalid) || errors.As(err, &missing)
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

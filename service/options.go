// Package service implements the campaign and post operations on top of
// the entity store, the transition guard and the query engine.
//
// Every state-changing operation reads the entity, consults the guard,
// and writes with the version it read. A lost race surfaces as a
// Conflict; the services never retry a write.
package service

import (
	"github.com/rs/zerolog"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/metrics"
)

// Option configures a service
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics *metrics.Collector
	clock   campaignflow.Clock
	newID   func() string
}

func defaultOptions() options {
	return options{
		logger: zerolog.Nop(),
		clock:  campaignflow.SystemClock,
		newID:  campaignflow.NewID,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets a custom logger for the service
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock sets the clock used for createdAt and deletedAt stamps
func WithClock(clock campaignflow.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithIDGenerator replaces the generator of new campaign and post ids
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

// checkKey fails fast on a missing tenant, then on malformed identifiers
func checkKey(key campaignflow.EntityKey) error {
	if err := campaignflow.RequireTenant(key.TenantID); err != nil {
		return err
	}
	return key.Validate()
}

// recordWriteError logs and counts a failed conditional write
func recordWriteError(o options, logger zerolog.Logger, key campaignflow.EntityKey, expected int64, err error) {
	switch {
	case campaignflow.IsConflict(err):
		campaignflow.LogVersionConflict(logger, key, expected)
		o.metrics.WriteConflict(string(key.Kind()))
	case campaignflow.IsNotFound(err):
	default:
		campaignflow.LogPersistenceError(logger, "update "+string(key.Kind()), err)
	}
}

// recordDenied logs and counts a transition the guard refused
func recordDenied(o options, logger zerolog.Logger, kind campaignflow.EntityKind, from, to string, t campaignflow.Transition) {
	campaignflow.LogTransitionDenied(logger, from, to, t.Reason)
	o.metrics.TransitionDenied(string(kind), from, to)
}

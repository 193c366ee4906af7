package campaignflow

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	// Entity events
	EventEntityCreated    = "entity_created"
	EventEntityUpdated    = "entity_updated"
	EventVersionConflict  = "version_conflict"
	EventTransitionDenied = "transition_denied"
	EventEntityDeleted    = "entity_deleted"

	// Approval events
	EventDecisionSignalled = "decision_signalled"
	EventDecisionRejected  = "decision_rejected"

	// Backend events
	EventPersistenceError = "persistence_error"
	EventSignalError      = "signal_error"
)

// NewLogger builds the default logger: pretty console output when
// pretty is true, JSON otherwise.
func NewLogger(level zerolog.Level, pretty bool) zerolog.Logger {
	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.With().Timestamp().Logger().Level(level)
}

// EntityLogger creates a logger enriched with entity context
func EntityLogger(baseLogger zerolog.Logger, key EntityKey) zerolog.Logger {
	ctx := baseLogger.With().
		Str("tenant_id", key.TenantID).
		Str("campaign_id", key.CampaignID)
	if key.IsPost() {
		ctx = ctx.Str("post_id", key.PostID)
	}
	return ctx.Logger()
}

// LogEntityUpdated logs a successful conditional write
func LogEntityUpdated(logger zerolog.Logger, key EntityKey, version int64) {
	logger.Info().
		Str("event", EventEntityUpdated).
		Str("kind", string(key.Kind())).
		Int64("version", version).
		Msg("Entity updated")
}

// LogVersionConflict logs a conditional write lost to a concurrent writer
func LogVersionConflict(logger zerolog.Logger, key EntityKey, expected int64) {
	logger.Warn().
		Str("event", EventVersionConflict).
		Str("kind", string(key.Kind())).
		Int64("expected_version", expected).
		Msg("Version conflict")
}

// LogTransitionDenied logs a status change rejected by the guard
func LogTransitionDenied(logger zerolog.Logger, from, to, reason string) {
	logger.Warn().
		Str("event", EventTransitionDenied).
		Str("from", from).
		Str("to", to).
		Str("reason", reason).
		Msg("Status transition denied")
}

// LogPersistenceError logs errors during persistence operations
func LogPersistenceError(logger zerolog.Logger, operation string, err error) {
	logger.Error().
		Str("event", EventPersistenceError).
		Str("operation", operation).
		Err(err).
		Msg("Persistence error")
}

// LogDecisionRejected logs why an approval decision was refused.
// The reason is never returned to the caller.
func LogDecisionRejected(logger zerolog.Logger, reason string) {
	logger.Warn().
		Str("event", EventDecisionRejected).
		Str("reason", reason).
		Msg("Approval decision rejected")
}

// LogDecisionSignalled logs a decision forwarded to the workflow engine
func LogDecisionSignalled(logger zerolog.Logger, decision string) {
	logger.Info().
		Str("event", EventDecisionSignalled).
		Str("decision", decision).
		Msg("Approval decision signalled")
}

// LogSignalError logs a failed call to the workflow engine
func LogSignalError(logger zerolog.Logger, err error) {
	logger.Error().
		Str("event", EventSignalError).
		Err(err).
		Msg("Failed to signal workflow engine")
}

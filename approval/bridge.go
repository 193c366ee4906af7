// Package approval correlates human approval decisions with campaigns
// waiting in pending_approval, and forwards each accepted decision to
// the workflow engine that parked the campaign.
//
// The bridge never writes campaign status; the engine's continuation
// does. Two decisions submitted at nearly the same time against a
// still-pending campaign both pass the status gate and both are
// signalled. The engine accepts only the first use of a task token,
// but nothing here closes that window.
package approval

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/metrics"
)

// MaxCommentsLength bounds the free-text comments of a decision, in characters
const MaxCommentsLength = 2000

// Decision is the reviewer's verdict
type Decision string

const (
	DecisionApproved      Decision = "approved"
	DecisionRejected      Decision = "rejected"
	DecisionNeedsRevision Decision = "needs_revision"
)

// IsValid reports whether d is one of the known decisions
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionNeedsRevision:
		return true
	}
	return false
}

// Internal rejection reasons; logged and counted, never returned
const (
	ReasonMissing       = "missing"
	ReasonDeleted       = "deleted"
	ReasonNotPending    = "not_pending"
	ReasonTokenMismatch = "token_mismatch"
	ReasonEngineExpired = "engine_expired"
)

// ErrExpired is the single answer to every decision the bridge will not
// forward, whatever the internal reason.
var ErrExpired = campaignflow.NewNotFoundError("approval request not found or expired")

// Signaller forwards a decision to the workflow engine waiting on callbackID.
// An engine that no longer knows the token reports an error wrapping ErrExpired.
type Signaller interface {
	SendDecision(ctx context.Context, callbackID string, result []byte) error
}

// Payload is the decision body a reviewer submits
type Payload struct {
	Decision Decision `json:"decision"`
	Comments *string  `json:"comments,omitempty"`
}

// Validate checks the payload against the decision schema
func (p Payload) Validate() error {
	var fields []campaignflow.FieldError
	switch {
	case p.Decision == "":
		fields = append(fields, campaignflow.FieldError{Field: "decision", Reason: "is required"})
	case !p.Decision.IsValid():
		fields = append(fields, campaignflow.FieldError{Field: "decision", Reason: "must be one of approved, rejected, needs_revision"})
	}
	if p.Comments != nil && utf8.RuneCountInString(*p.Comments) > MaxCommentsLength {
		fields = append(fields, campaignflow.FieldError{Field: "comments", Reason: "must be at most 2000 characters"})
	}
	if len(fields) > 0 {
		return campaignflow.NewValidationError("invalid decision", fields...)
	}
	return nil
}

// Submission is one decision presented for a campaign
type Submission struct {
	TenantID   string
	CampaignID string
	CallbackID string
	Payload    Payload
}

// Result reports an accepted decision
type Result struct {
	CampaignID string   `json:"campaignId"`
	Decision   Decision `json:"decision"`
	Status     string   `json:"status"`
}

// Bridge verifies decisions and signals the workflow engine
type Bridge struct {
	store     campaignflow.EntityStore
	signaller Signaller
	logger    zerolog.Logger
	metrics   *metrics.Collector
}

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the bridge logger
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// NewBridge creates an approval bridge
func NewBridge(store campaignflow.EntityStore, signaller Signaller, opts ...Option) *Bridge {
	b := &Bridge{
		store:     store,
		signaller: signaller,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit verifies the submission and, when the campaign is waiting on
// exactly this token, signals the decision once.
func (b *Bridge) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := campaignflow.RequireTenant(sub.TenantID); err != nil {
		return nil, err
	}

	key := campaignflow.CampaignKey(sub.TenantID, sub.CampaignID)
	if err := validateSubmission(key, sub); err != nil {
		return nil, err
	}

	logger := campaignflow.EntityLogger(b.logger, key)

	campaign, err := b.store.GetCampaign(ctx, key)
	if err != nil && !campaignflow.IsNotFound(err) {
		campaignflow.LogPersistenceError(logger, "load campaign for approval", err)
		return nil, err
	}

	if reason := rejectReason(campaign, sub.CallbackID); reason != "" {
		b.reject(logger, reason)
		return nil, ErrExpired
	}

	result, err := json.Marshal(sub.Payload)
	if err != nil {
		return nil, campaignflow.NewExternalServiceError("encode decision", err)
	}

	if err := b.signaller.SendDecision(ctx, campaign.CallbackID, result); err != nil {
		if campaignflow.IsNotFound(err) {
			b.reject(logger, ReasonEngineExpired)
			return nil, ErrExpired
		}
		campaignflow.LogSignalError(logger, err)
		b.metrics.SignalFailed()
		return nil, campaignflow.AsError(err)
	}

	campaignflow.LogDecisionSignalled(logger, string(sub.Payload.Decision))
	b.metrics.ApprovalDecision(string(sub.Payload.Decision))

	return &Result{
		CampaignID: sub.CampaignID,
		Decision:   sub.Payload.Decision,
		Status:     "accepted",
	}, nil
}

func (b *Bridge) reject(logger zerolog.Logger, reason string) {
	campaignflow.LogDecisionRejected(logger, reason)
	b.metrics.ApprovalRejected(reason)
}

// validateSubmission checks everything that needs no stored state
func validateSubmission(key campaignflow.EntityKey, sub Submission) error {
	var fields []campaignflow.FieldError
	if err := key.Validate(); err != nil {
		fields = append(fields, campaignflow.AsError(err).Fields...)
	}
	if strings.TrimSpace(sub.CallbackID) == "" {
		fields = append(fields, campaignflow.FieldError{Field: "callbackId", Reason: "is required"})
	}
	if err := sub.Payload.Validate(); err != nil {
		fields = append(fields, campaignflow.AsError(err).Fields...)
	}
	if len(fields) > 0 {
		return campaignflow.NewValidationError("invalid decision", fields...)
	}
	return nil
}

// rejectReason returns why a decision may not be forwarded, or "" when
// the campaign is pending approval under exactly this token.
func rejectReason(campaign *campaignflow.Campaign, token string) string {
	switch {
	case campaign == nil:
		return ReasonMissing
	case campaign.IsDeleted():
		return ReasonDeleted
	case campaign.Status != campaignflow.CampaignStatusPendingApproval:
		return ReasonNotPending
	case subtle.ConstantTimeCompare([]byte(campaign.CallbackID), []byte(token)) != 1:
		return ReasonTokenMismatch
	}
	return ""
}

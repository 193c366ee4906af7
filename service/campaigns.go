package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/query"
)

// CreateCampaignInput is the payload of a new campaign
type CreateCampaignInput struct {
	Name         string                    `json:"name"`
	BrandID      string                    `json:"brandId"`
	Participants campaignflow.Participants `json:"participants"`
}

// Validate checks the payload against the campaign schema
func (in CreateCampaignInput) Validate() error {
	var fields []campaignflow.FieldError
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, campaignflow.FieldError{Field: "name", Reason: "is required"})
	}
	for _, id := range in.Participants.PersonaIDs {
		if strings.TrimSpace(id) == "" {
			fields = append(fields, campaignflow.FieldError{Field: "participants.personaIds", Reason: "must not contain empty ids"})
			break
		}
	}
	if len(fields) > 0 {
		return campaignflow.NewValidationError("invalid campaign", fields...)
	}
	return nil
}

// CampaignService implements the campaign operations
type CampaignService struct {
	store   campaignflow.EntityStore
	queries *query.Engine
	opts    options
}

// NewCampaignService creates a campaign service
func NewCampaignService(store campaignflow.EntityStore, queries *query.Engine, opts ...Option) *CampaignService {
	return &CampaignService{
		store:   store,
		queries: queries,
		opts:    applyOptions(opts),
	}
}

func (s *CampaignService) logger(key campaignflow.EntityKey) zerolog.Logger {
	return campaignflow.EntityLogger(s.opts.logger, key)
}

// Create stores a new campaign in planned status at the initial version
func (s *CampaignService) Create(ctx context.Context, tenantID string, in CreateCampaignInput) (*campaignflow.Campaign, error) {
	if err := campaignflow.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.opts.clock()
	campaign := &campaignflow.Campaign{
		TenantID:     tenantID,
		CampaignID:   s.opts.newID(),
		Name:         strings.TrimSpace(in.Name),
		BrandID:      in.BrandID,
		Participants: in.Participants,
		Status:       campaignflow.CampaignStatusPlanned,
		Version:      campaignflow.InitialVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := campaign.Key().Validate(); err != nil {
		return nil, err
	}

	logger := s.logger(campaign.Key())
	if err := s.store.CreateCampaign(ctx, campaign); err != nil {
		campaignflow.LogPersistenceError(logger, "create campaign", err)
		return nil, err
	}

	logger.Info().
		Str("event", campaignflow.EventEntityCreated).
		Str("kind", string(campaignflow.EntityKindCampaign)).
		Msg("Campaign created")

	return campaign, nil
}

// Get returns a live campaign. Soft-deleted campaigns are not found.
func (s *CampaignService) Get(ctx context.Context, key campaignflow.EntityKey) (*campaignflow.Campaign, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if key.IsPost() {
		return nil, campaignflow.NewValidationError("invalid entity key",
			campaignflow.FieldError{Field: "postId", Reason: "must be empty for a campaign"})
	}

	campaign, err := s.store.GetCampaign(ctx, key)
	if err != nil {
		return nil, err
	}
	if campaign.IsDeleted() {
		return nil, campaignflow.EntityNotFound(key)
	}
	return campaign, nil
}

// List returns one page of the tenant's campaigns
func (s *CampaignService) List(ctx context.Context, tenantID string, filter query.CampaignFilter, pageSize int, cursor campaignflow.Cursor) (*query.Page[*campaignflow.Campaign], error) {
	return s.queries.ListCampaigns(ctx, tenantID, filter, pageSize, cursor)
}

// Update applies patch when the campaign is still at expectedVersion and
// the guard allows any requested status change.
func (s *CampaignService) Update(ctx context.Context, key campaignflow.EntityKey, patch campaignflow.CampaignPatch, expectedVersion int64) (*campaignflow.Campaign, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, campaignflow.NewValidationError("invalid campaign update",
			campaignflow.FieldError{Field: "patch", Reason: "names no fields"})
	}

	current, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, current, patch, expectedVersion)
}

// AwaitApproval parks the campaign in pending_approval under callbackID,
// the task token the workflow engine waits on.
func (s *CampaignService) AwaitApproval(ctx context.Context, key campaignflow.EntityKey, callbackID string, expectedVersion int64) (*campaignflow.Campaign, error) {
	patch := campaignflow.CampaignPatch{
		Status:     campaignflow.Set(campaignflow.CampaignStatusPendingApproval),
		CallbackID: campaignflow.Set(callbackID),
	}
	return s.Update(ctx, key, patch, expectedVersion)
}

// Cancel moves the campaign to cancelled. A campaign in generation
// cannot be cancelled until generation finishes.
func (s *CampaignService) Cancel(ctx context.Context, key campaignflow.EntityKey, expectedVersion int64) (*campaignflow.Campaign, error) {
	patch := campaignflow.CampaignPatch{Status: campaignflow.Set(campaignflow.CampaignStatusCancelled)}
	return s.Update(ctx, key, patch, expectedVersion)
}

// Delete soft-deletes the campaign: it is cancelled and stamped with
// deletedAt in one conditional write at the version just read.
func (s *CampaignService) Delete(ctx context.Context, key campaignflow.EntityKey) error {
	if err := checkKey(key); err != nil {
		return err
	}

	current, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	patch := campaignflow.CampaignPatch{
		Status:    campaignflow.Set(campaignflow.CampaignStatusCancelled),
		DeletedAt: campaignflow.Set(s.opts.clock()),
	}
	deleted, err := s.write(ctx, current, patch, current.Version)
	if err != nil {
		return err
	}

	logger := s.logger(key)
	logger.Info().
		Str("event", campaignflow.EventEntityDeleted).
		Str("kind", string(campaignflow.EntityKindCampaign)).
		Int64("version", deleted.Version).
		Msg("Campaign deleted")
	return nil
}

func (s *CampaignService) write(ctx context.Context, current *campaignflow.Campaign, patch campaignflow.CampaignPatch, expectedVersion int64) (*campaignflow.Campaign, error) {
	key := current.Key()
	logger := s.logger(key)

	// A stale version fails before the guard judges a status it may not hold
	if current.Version != expectedVersion {
		recordWriteError(s.opts, logger, key, expectedVersion, campaignflow.ErrConflict)
		return nil, campaignflow.VersionConflict(key, expectedVersion)
	}

	if requested, ok := patch.Status.Value(); ok {
		t := campaignflow.CheckCampaignTransition(current.Status, requested)
		if !t.Allowed {
			recordDenied(s.opts, logger, campaignflow.EntityKindCampaign, string(current.Status), string(requested), t)
			return nil, t.Err()
		}
	}

	updated, err := s.store.UpdateCampaign(ctx, key, patch.Normalized(), expectedVersion)
	if err != nil {
		recordWriteError(s.opts, logger, key, expectedVersion, err)
		return nil, err
	}

	campaignflow.LogEntityUpdated(logger, key, updated.Version)
	return updated, nil
}

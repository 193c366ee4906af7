package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/query"
)

// CreatePostInput is the payload of a new post
type CreatePostInput struct {
	PersonaID string `json:"personaId"`
	Platform  string `json:"platform"`
}

// Validate checks the payload against the post schema
func (in CreatePostInput) Validate() error {
	var fields []campaignflow.FieldError
	if strings.TrimSpace(in.PersonaID) == "" {
		fields = append(fields, campaignflow.FieldError{Field: "personaId", Reason: "is required"})
	}
	if strings.TrimSpace(in.Platform) == "" {
		fields = append(fields, campaignflow.FieldError{Field: "platform", Reason: "is required"})
	}
	if len(fields) > 0 {
		return campaignflow.NewValidationError("invalid post", fields...)
	}
	return nil
}

// PostService implements the social post operations
type PostService struct {
	store   campaignflow.EntityStore
	queries *query.Engine
	opts    options
}

// NewPostService creates a post service
func NewPostService(store campaignflow.EntityStore, queries *query.Engine, opts ...Option) *PostService {
	return &PostService{
		store:   store,
		queries: queries,
		opts:    applyOptions(opts),
	}
}

func (s *PostService) logger(key campaignflow.EntityKey) zerolog.Logger {
	return campaignflow.EntityLogger(s.opts.logger, key)
}

// Create plans a new post inside a live campaign
func (s *PostService) Create(ctx context.Context, tenantID, campaignID string, in CreatePostInput) (*campaignflow.SocialPost, error) {
	campaignKey := campaignflow.CampaignKey(tenantID, campaignID)
	if err := checkKey(campaignKey); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	campaign, err := s.store.GetCampaign(ctx, campaignKey)
	if err != nil {
		return nil, err
	}
	if campaign.IsDeleted() {
		return nil, campaignflow.EntityNotFound(campaignKey)
	}

	now := s.opts.clock()
	post := &campaignflow.SocialPost{
		TenantID:   tenantID,
		CampaignID: campaignID,
		PostID:     s.opts.newID(),
		PersonaID:  in.PersonaID,
		Platform:   in.Platform,
		Status:     campaignflow.PostStatusPlanned,
		Version:    campaignflow.InitialVersion,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := post.Key().Validate(); err != nil {
		return nil, err
	}

	logger := s.logger(post.Key())
	if err := s.store.CreatePost(ctx, post); err != nil {
		campaignflow.LogPersistenceError(logger, "create post", err)
		return nil, err
	}

	logger.Info().
		Str("event", campaignflow.EventEntityCreated).
		Str("kind", string(campaignflow.EntityKindPost)).
		Msg("Post created")

	return post, nil
}

// Get returns a live post. Soft-deleted posts are not found.
func (s *PostService) Get(ctx context.Context, key campaignflow.EntityKey) (*campaignflow.SocialPost, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if !key.IsPost() {
		return nil, campaignflow.NewValidationError("invalid entity key",
			campaignflow.FieldError{Field: "postId", Reason: "is required"})
	}

	post, err := s.store.GetPost(ctx, key)
	if err != nil {
		return nil, err
	}
	if post.IsDeleted() {
		return nil, campaignflow.EntityNotFound(key)
	}
	return post, nil
}

// List returns one page of a campaign's posts
func (s *PostService) List(ctx context.Context, tenantID, campaignID string, filter query.PostFilter, pageSize int, cursor campaignflow.Cursor) (*query.Page[*campaignflow.SocialPost], error) {
	return s.queries.ListPosts(ctx, tenantID, campaignID, filter, pageSize, cursor)
}

// Update applies patch when the post is still at expectedVersion.
// Setting a status other than failed without a lastError clears the
// stored error; content only changes when the patch names it.
func (s *PostService) Update(ctx context.Context, key campaignflow.EntityKey, patch campaignflow.PostPatch, expectedVersion int64) (*campaignflow.SocialPost, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, campaignflow.NewValidationError("invalid post update",
			campaignflow.FieldError{Field: "patch", Reason: "names no fields"})
	}

	current, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, current, patch, expectedVersion)
}

// Delete soft-deletes the post at the version just read. Planned, failed
// and needs_review posts move to skipped; completed and skipped posts
// keep their status. A post in generation cannot be deleted.
func (s *PostService) Delete(ctx context.Context, key campaignflow.EntityKey) error {
	current, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	if current.Status == campaignflow.PostStatusGenerating {
		t := campaignflow.Transition{
			Reason:     "post generation in progress; delete after generation finishes",
			InProgress: true,
		}
		recordDenied(s.opts, s.logger(key), campaignflow.EntityKindPost, string(current.Status), "deleted", t)
		return t.Err()
	}

	patch := campaignflow.PostPatch{DeletedAt: campaignflow.Set(s.opts.clock())}
	if campaignflow.CheckPostTransition(current.Status, campaignflow.PostStatusSkipped).Allowed {
		patch.Status = campaignflow.Set(campaignflow.PostStatusSkipped)
	}

	deleted, err := s.write(ctx, current, patch, current.Version)
	if err != nil {
		return err
	}

	logger := s.logger(key)
	logger.Info().
		Str("event", campaignflow.EventEntityDeleted).
		Str("kind", string(campaignflow.EntityKindPost)).
		Int64("version", deleted.Version).
		Msg("Post deleted")
	return nil
}

func (s *PostService) write(ctx context.Context, current *campaignflow.SocialPost, patch campaignflow.PostPatch, expectedVersion int64) (*campaignflow.SocialPost, error) {
	key := current.Key()
	logger := s.logger(key)

	if current.Version != expectedVersion {
		recordWriteError(s.opts, logger, key, expectedVersion, campaignflow.ErrConflict)
		return nil, campaignflow.VersionConflict(key, expectedVersion)
	}

	if requested, ok := patch.Status.Value(); ok {
		t := campaignflow.CheckPostTransition(current.Status, requested)
		if !t.Allowed {
			recordDenied(s.opts, logger, campaignflow.EntityKindPost, string(current.Status), string(requested), t)
			return nil, t.Err()
		}
	}

	updated, err := s.store.UpdatePost(ctx, key, patch.Normalized(), expectedVersion)
	if err != nil {
		recordWriteError(s.opts, logger, key, expectedVersion, err)
		return nil, err
	}

	campaignflow.LogEntityUpdated(logger, key, updated.Version)
	return updated, nil
}

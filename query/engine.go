// Package query turns list requests into secondary-index range queries.
//
// A status filter selects the status index, anything else reads the
// recency index. Brand, persona and platform filters are applied in
// memory after the fetch, and soft-deleted items are always dropped,
// so a page may hold fewer items than the page size while a cursor is
// still returned. Callers follow NextCursor until it is absent.
package query

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/metrics"
)

// Filter reasons reported to metrics
const (
	reasonDeleted  = "deleted"
	reasonBrand    = "brand"
	reasonPersona  = "persona"
	reasonPlatform = "platform"
)

// CampaignFilter narrows a campaign listing
type CampaignFilter struct {
	Status    campaignflow.CampaignStatus
	BrandID   string
	PersonaID string
}

// PostFilter narrows a post listing within one campaign
type PostFilter struct {
	Status    campaignflow.PostStatus
	PersonaID string
	Platform  string
}

// Page is one page of a listing
type Page[T any] struct {
	Items      []T                 `json:"items"`
	NextCursor campaignflow.Cursor `json:"nextCursor"`
}

// Engine runs list queries against an entity store
type Engine struct {
	store   campaignflow.EntityStore
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a query engine over store
func NewEngine(store campaignflow.EntityStore, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListCampaigns returns one page of a tenant's campaigns, newest first
func (e *Engine) ListCampaigns(ctx context.Context, tenantID string, filter CampaignFilter, pageSize int, cursor campaignflow.Cursor) (*Page[*campaignflow.Campaign], error) {
	if err := campaignflow.RequireTenant(tenantID); err != nil {
		return nil, err
	}

	var fields []campaignflow.FieldError
	limit, field := resolvePageSize(pageSize)
	fields = appendField(fields, field)
	fields = appendField(fields, checkIdentifier("tenantId", tenantID))
	if filter.Status != "" && !filter.Status.IsValid() {
		fields = append(fields, campaignflow.FieldError{Field: "status", Reason: "is not a campaign status"})
	}
	if len(fields) > 0 {
		return nil, campaignflow.NewValidationError("invalid list request", fields...)
	}

	q := campaignflow.IndexQuery{
		Index:    campaignflow.IndexRecency,
		TenantID: tenantID,
		Limit:    limit,
		After:    cursor,
	}
	if filter.Status != "" {
		q.Index = campaignflow.IndexStatus
		q.Status = string(filter.Status)
	}

	page, err := e.store.QueryCampaigns(ctx, q)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	items := make([]*campaignflow.Campaign, 0, len(page.Items))
	for _, c := range page.Items {
		switch {
		case c.IsDeleted():
			counts[reasonDeleted]++
		case filter.BrandID != "" && c.BrandID != filter.BrandID:
			counts[reasonBrand]++
		case filter.PersonaID != "" && !c.Participants.HasPersona(filter.PersonaID):
			counts[reasonPersona]++
		default:
			items = append(items, c)
		}
	}
	e.recordFiltered(campaignflow.EntityKindCampaign, counts)

	e.logger.Debug().
		Str("tenant_id", tenantID).
		Str("index", string(q.Index)).
		Int("fetched", len(page.Items)).
		Int("returned", len(items)).
		Bool("has_more", !page.Next.IsZero()).
		Msg("Listed campaigns")

	return &Page[*campaignflow.Campaign]{Items: items, NextCursor: page.Next}, nil
}

// ListPosts returns one page of a campaign's posts, newest first
func (e *Engine) ListPosts(ctx context.Context, tenantID, campaignID string, filter PostFilter, pageSize int, cursor campaignflow.Cursor) (*Page[*campaignflow.SocialPost], error) {
	if err := campaignflow.RequireTenant(tenantID); err != nil {
		return nil, err
	}

	var fields []campaignflow.FieldError
	limit, field := resolvePageSize(pageSize)
	fields = appendField(fields, field)
	if err := campaignflow.CampaignKey(tenantID, campaignID).Validate(); err != nil {
		fields = append(fields, campaignflow.AsError(err).Fields...)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		fields = append(fields, campaignflow.FieldError{Field: "status", Reason: "is not a post status"})
	}
	if len(fields) > 0 {
		return nil, campaignflow.NewValidationError("invalid list request", fields...)
	}

	q := campaignflow.IndexQuery{
		Index:      campaignflow.IndexRecency,
		TenantID:   tenantID,
		CampaignID: campaignID,
		Limit:      limit,
		After:      cursor,
	}
	if filter.Status != "" {
		q.Index = campaignflow.IndexStatus
		q.Status = string(filter.Status)
	}

	page, err := e.store.QueryPosts(ctx, q)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	items := make([]*campaignflow.SocialPost, 0, len(page.Items))
	for _, p := range page.Items {
		switch {
		case p.IsDeleted():
			counts[reasonDeleted]++
		case filter.PersonaID != "" && p.PersonaID != filter.PersonaID:
			counts[reasonPersona]++
		case filter.Platform != "" && p.Platform != filter.Platform:
			counts[reasonPlatform]++
		default:
			items = append(items, p)
		}
	}
	e.recordFiltered(campaignflow.EntityKindPost, counts)

	return &Page[*campaignflow.SocialPost]{Items: items, NextCursor: page.Next}, nil
}

func (e *Engine) recordFiltered(kind campaignflow.EntityKind, counts map[string]int) {
	for reason, n := range counts {
		e.metrics.ItemsFiltered(string(kind), reason, n)
	}
}

// resolvePageSize applies the default and the upper bound
func resolvePageSize(pageSize int) (int32, *campaignflow.FieldError) {
	switch {
	case pageSize == 0:
		return campaignflow.DefaultPageSize, nil
	case pageSize < 0:
		return 0, &campaignflow.FieldError{Field: "pageSize", Reason: "must be positive"}
	case pageSize > campaignflow.MaxPageSize:
		return 0, &campaignflow.FieldError{Field: "pageSize", Reason: "must be at most 100"}
	default:
		return int32(pageSize), nil
	}
}

func checkIdentifier(name, value string) *campaignflow.FieldError {
	if strings.Contains(value, "#") {
		return &campaignflow.FieldError{Field: name, Reason: "must not contain '#'"}
	}
	return nil
}

func appendField(fields []campaignflow.FieldError, f *campaignflow.FieldError) []campaignflow.FieldError {
	if f == nil {
		return fields
	}
	return append(fields, *f)
}

package campaignflow

import "context"

// EntityStore defines the persistence interface for campaigns and posts.
// Every method is scoped by the tenant carried in the key or query.
type EntityStore interface {
	// Campaigns
	CreateCampaign(ctx context.Context, campaign *Campaign) error
	GetCampaign(ctx context.Context, key EntityKey) (*Campaign, error)
	UpdateCampaign(ctx context.Context, key EntityKey, patch CampaignPatch, expectedVersion int64) (*Campaign, error)
	QueryCampaigns(ctx context.Context, q IndexQuery) (*CampaignPage, error)

	// Social posts
	CreatePost(ctx context.Context, post *SocialPost) error
	GetPost(ctx context.Context, key EntityKey) (*SocialPost, error)
	UpdatePost(ctx context.Context, key EntityKey, patch PostPatch, expectedVersion int64) (*SocialPost, error)
	QueryPosts(ctx context.Context, q IndexQuery) (*PostPage, error)
}

// IndexName selects the secondary index a query reads
type IndexName string

const (
	// IndexRecency orders a tenant's entities newest first
	IndexRecency IndexName = "recency"
	// IndexStatus orders a tenant's entities of one status newest first
	IndexStatus IndexName = "status"
)

// IndexQuery is a single range query against a secondary index.
// Limit bounds the number of index entries read, before any filtering.
type IndexQuery struct {
	Index    IndexName
	TenantID string
	// CampaignID scopes a post query to one campaign; ignored for campaigns
	CampaignID string
	// Status is the partition value of the status index
	Status string
	Limit  int32
	// After is the position to resume from; zero starts at the newest entry
	After Cursor
}

// CampaignPage is one index page of campaigns. Next is zero when the
// index holds no further entries.
type CampaignPage struct {
	Items []*Campaign
	Next  Cursor
}

// PostPage is one index page of posts
type PostPage struct {
	Items []*SocialPost
	Next  Cursor
}

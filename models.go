package campaignflow

import "time"

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusPlanned         CampaignStatus = "planned"
	CampaignStatusGenerating      CampaignStatus = "generating"
	CampaignStatusPendingApproval CampaignStatus = "pending_approval"
	CampaignStatusCompleted       CampaignStatus = "completed"
	CampaignStatusCancelled       CampaignStatus = "cancelled"
	CampaignStatusFailed          CampaignStatus = "failed"
)

// IsValid reports whether s is one of the known campaign statuses
func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignStatusPlanned, CampaignStatusGenerating, CampaignStatusPendingApproval,
		CampaignStatusCompleted, CampaignStatusCancelled, CampaignStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a final state
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

// String returns the string representation
func (s CampaignStatus) String() string {
	return string(s)
}

// PostStatus represents the generation state of a social post
type PostStatus string

const (
	PostStatusPlanned     PostStatus = "planned"
	PostStatusGenerating  PostStatus = "generating"
	PostStatusCompleted   PostStatus = "completed"
	PostStatusFailed      PostStatus = "failed"
	PostStatusSkipped     PostStatus = "skipped"
	PostStatusNeedsReview PostStatus = "needs_review"
)

// IsValid reports whether s is one of the known post statuses
func (s PostStatus) IsValid() bool {
	switch s {
	case PostStatusPlanned, PostStatusGenerating, PostStatusCompleted,
		PostStatusFailed, PostStatusSkipped, PostStatusNeedsReview:
		return true
	}
	return false
}

// String returns the string representation
func (s PostStatus) String() string {
	return string(s)
}

// InitialVersion is the version every entity carries right after creation
const InitialVersion int64 = 1

// Participants lists who a campaign produces content for
type Participants struct {
	PersonaIDs []string `json:"personaIds" dynamodbav:"persona_ids,stringset,omitempty"`
}

// HasPersona reports whether personaID takes part in the campaign
func (p Participants) HasPersona(personaID string) bool {
	for _, id := range p.PersonaIDs {
		if id == personaID {
			return true
		}
	}
	return false
}

// Campaign is a tenant-owned content campaign
type Campaign struct {
	// Identity
	TenantID   string `json:"tenantId" dynamodbav:"tenant_id"`
	CampaignID string `json:"campaignId" dynamodbav:"campaign_id"`

	Name         string       `json:"name" dynamodbav:"name"`
	BrandID      string       `json:"brandId,omitempty" dynamodbav:"brand_id,omitempty"`
	Participants Participants `json:"participants" dynamodbav:"participants"`

	// Status
	Status  CampaignStatus `json:"status" dynamodbav:"status"`
	Version int64          `json:"version" dynamodbav:"version"`

	// Present only while Status is pending_approval
	CallbackID string `json:"-" dynamodbav:"callback_id,omitempty"`

	// Timing
	CreatedAt time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" dynamodbav:"deleted_at,omitempty"`
}

// Key returns the composite key of the campaign
func (c *Campaign) Key() EntityKey {
	return CampaignKey(c.TenantID, c.CampaignID)
}

// IsDeleted reports whether the campaign has been soft-deleted
func (c *Campaign) IsDeleted() bool {
	return c.DeletedAt != nil
}

// PostError captures the last generation failure of a post
type PostError struct {
	Code      string    `json:"code" dynamodbav:"code"`
	Message   string    `json:"message" dynamodbav:"message"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
	Retryable bool      `json:"retryable" dynamodbav:"retryable"`
}

// PostContent is the generated copy of a post
type PostContent struct {
	Text        string    `json:"text" dynamodbav:"text"`
	Hashtags    []string  `json:"hashtags,omitempty" dynamodbav:"hashtags,omitempty"`
	Mentions    []string  `json:"mentions,omitempty" dynamodbav:"mentions,omitempty"`
	GeneratedAt time.Time `json:"generatedAt" dynamodbav:"generated_at"`
}

// SocialPost is a single post planned within a campaign
type SocialPost struct {
	// Identity
	TenantID   string `json:"tenantId" dynamodbav:"tenant_id"`
	CampaignID string `json:"campaignId" dynamodbav:"campaign_id"`
	PostID     string `json:"postId" dynamodbav:"post_id"`

	PersonaID string `json:"personaId,omitempty" dynamodbav:"persona_id,omitempty"`
	Platform  string `json:"platform,omitempty" dynamodbav:"platform,omitempty"`

	// Status
	Status  PostStatus `json:"status" dynamodbav:"status"`
	Version int64      `json:"version" dynamodbav:"version"`

	LastError *PostError   `json:"lastError,omitempty" dynamodbav:"last_error,omitempty"`
	Content   *PostContent `json:"content,omitempty" dynamodbav:"content,omitempty"`

	// Timing
	CreatedAt time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" dynamodbav:"deleted_at,omitempty"`
}

// Key returns the composite key of the post
func (p *SocialPost) Key() EntityKey {
	return PostKey(p.TenantID, p.CampaignID, p.PostID)
}

// IsDeleted reports whether the post has been soft-deleted
func (p *SocialPost) IsDeleted() bool {
	return p.DeletedAt != nil
}

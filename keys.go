package campaignflow

import "strings"

// EntityKey identifies a stored entity within a tenant.
// A key with an empty PostID addresses a campaign, otherwise the post
// PostID of campaign CampaignID. Storage encodings of the key live in
// the store package only.
type EntityKey struct {
	TenantID   string
	CampaignID string
	PostID     string
}

// CampaignKey builds the key of a campaign
func CampaignKey(tenantID, campaignID string) EntityKey {
	return EntityKey{TenantID: tenantID, CampaignID: campaignID}
}

// PostKey builds the key of a post within a campaign
func PostKey(tenantID, campaignID, postID string) EntityKey {
	return EntityKey{TenantID: tenantID, CampaignID: campaignID, PostID: postID}
}

// IsPost reports whether the key addresses a social post
func (k EntityKey) IsPost() bool {
	return k.PostID != ""
}

// Kind returns the kind of entity the key addresses
func (k EntityKey) Kind() EntityKind {
	if k.IsPost() {
		return EntityKindPost
	}
	return EntityKindCampaign
}

// Campaign returns the key of the owning campaign
func (k EntityKey) Campaign() EntityKey {
	return CampaignKey(k.TenantID, k.CampaignID)
}

// Validate checks that every identifier the key needs is present and
// free of the storage key separator.
func (k EntityKey) Validate() error {
	var fields []FieldError
	check := func(name, value string, required bool) {
		switch {
		case value == "" && required:
			fields = append(fields, FieldError{Field: name, Reason: "is required"})
		case strings.Contains(value, "#"):
			fields = append(fields, FieldError{Field: name, Reason: "must not contain '#'"})
		}
	}
	check("tenantId", k.TenantID, true)
	check("campaignId", k.CampaignID, true)
	check("postId", k.PostID, false)

	if len(fields) > 0 {
		return NewValidationError("invalid entity key", fields...)
	}
	return nil
}

// String returns a human readable form for logs
func (k EntityKey) String() string {
	if k.IsPost() {
		return k.TenantID + "/" + k.CampaignID + "/" + k.PostID
	}
	return k.TenantID + "/" + k.CampaignID
}

// EntityKind names the two entity kinds kept in the store
type EntityKind string

const (
	EntityKindCampaign EntityKind = "campaign"
	EntityKindPost     EntityKind = "post"
)

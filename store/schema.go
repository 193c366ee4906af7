package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/sicko7947/campaignflow"
)

// DynamoDB schema constants for single-table design
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrGSI1PK     = "GSI1PK"
	AttrGSI1SK     = "GSI1SK"
	AttrGSI2PK     = "GSI2PK"
	AttrGSI2SK     = "GSI2SK"
	AttrEntityType = "entity_type"
	AttrVersion    = "version"
	AttrUpdatedAt  = "updated_at"
	AttrStatus     = "status"

	// Entity types
	EntityTypeCampaign = "Campaign"
	EntityTypePost     = "SocialPost"

	// Index names
	IndexRecencyIndex = "GSI1"
	IndexStatusIndex  = "GSI2"
)

// sortTimeLayout is fixed width so index sort keys order lexically by time
const sortTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Key builders for single-table design. This file is the only place
// composite keys are turned into strings and back.
//
//	Campaign: PK=TENANT#{t}#CAMPAIGN#{c}  SK=CAMPAIGN
//	Post:     PK=TENANT#{t}#CAMPAIGN#{c}  SK=POST#{p}
//	GSI1 (recency): GSI1PK=TENANT#{t}#CAMPAIGNS | TENANT#{t}#CAMPAIGN#{c}#POSTS
//	GSI2 (status):  GSI2PK=<GSI1PK>#STATUS#{s}
//	GSI1SK = GSI2SK = {createdAt}#{id}

func primaryPK(key campaignflow.EntityKey) string {
	return fmt.Sprintf("TENANT#%s#CAMPAIGN#%s", key.TenantID, key.CampaignID)
}

func primarySK(key campaignflow.EntityKey) string {
	if key.IsPost() {
		return fmt.Sprintf("POST#%s", key.PostID)
	}
	return "CAMPAIGN"
}

// recencyPartition is the GSI1 partition holding every entity the key's
// kind lists alongside: all campaigns of a tenant, or all posts of a campaign.
func recencyPartition(key campaignflow.EntityKey) string {
	if key.IsPost() {
		return postsPartition(key.TenantID, key.CampaignID)
	}
	return campaignsPartition(key.TenantID)
}

func campaignsPartition(tenantID string) string {
	return fmt.Sprintf("TENANT#%s#CAMPAIGNS", tenantID)
}

func postsPartition(tenantID, campaignID string) string {
	return fmt.Sprintf("TENANT#%s#CAMPAIGN#%s#POSTS", tenantID, campaignID)
}

func statusPartition(recency, status string) string {
	return fmt.Sprintf("%s#STATUS#%s", recency, status)
}

func recencySortKey(createdAt time.Time, id string) string {
	return fmt.Sprintf("%s#%s", createdAt.UTC().Format(sortTimeLayout), id)
}

// entityID is the identifier a key ends in
func entityID(key campaignflow.EntityKey) string {
	if key.IsPost() {
		return key.PostID
	}
	return key.CampaignID
}

// parsePrimaryKey decodes PK/SK back into a typed key
func parsePrimaryKey(pk, sk string) (campaignflow.EntityKey, error) {
	rest, ok := strings.CutPrefix(pk, "TENANT#")
	if !ok {
		return campaignflow.EntityKey{}, fmt.Errorf("malformed partition key %q", pk)
	}
	tenantID, campaignID, ok := strings.Cut(rest, "#CAMPAIGN#")
	if !ok || tenantID == "" || campaignID == "" {
		return campaignflow.EntityKey{}, fmt.Errorf("malformed partition key %q", pk)
	}

	switch {
	case sk == "CAMPAIGN":
		return campaignflow.CampaignKey(tenantID, campaignID), nil
	case strings.HasPrefix(sk, "POST#") && len(sk) > len("POST#"):
		return campaignflow.PostKey(tenantID, campaignID, strings.TrimPrefix(sk, "POST#")), nil
	default:
		return campaignflow.EntityKey{}, fmt.Errorf("malformed sort key %q", sk)
	}
}

// indexKeys returns the GSI attributes an entity carries
func indexKeys(key campaignflow.EntityKey, status string, createdAt time.Time) map[string]string {
	sortKey := recencySortKey(createdAt, entityID(key))
	return map[string]string{
		AttrGSI1PK: recencyPartition(key),
		AttrGSI1SK: sortKey,
		AttrGSI2PK: statusPartition(recencyPartition(key), status),
		AttrGSI2SK: sortKey,
	}
}

// indexTarget resolves an IndexQuery to a physical index and partition
type indexTarget struct {
	indexName string
	pkAttr    string
	skAttr    string
	partition string
}

func resolveIndex(q campaignflow.IndexQuery, kind campaignflow.EntityKind) (indexTarget, error) {
	recency := campaignsPartition(q.TenantID)
	if kind == campaignflow.EntityKindPost {
		if q.CampaignID == "" {
			return indexTarget{}, campaignflow.NewValidationError("invalid post query",
				campaignflow.FieldError{Field: "campaignId", Reason: "is required"})
		}
		recency = postsPartition(q.TenantID, q.CampaignID)
	}

	switch q.Index {
	case campaignflow.IndexRecency:
		return indexTarget{
			indexName: IndexRecencyIndex,
			pkAttr:    AttrGSI1PK,
			skAttr:    AttrGSI1SK,
			partition: recency,
		}, nil
	case campaignflow.IndexStatus:
		if q.Status == "" {
			return indexTarget{}, campaignflow.NewValidationError("invalid query",
				campaignflow.FieldError{Field: "status", Reason: "is required for the status index"})
		}
		return indexTarget{
			indexName: IndexStatusIndex,
			pkAttr:    AttrGSI2PK,
			skAttr:    AttrGSI2SK,
			partition: statusPartition(recency, q.Status),
		}, nil
	default:
		return indexTarget{}, campaignflow.NewValidationError("invalid query",
			campaignflow.FieldError{Field: "index", Reason: fmt.Sprintf("unknown index %q", q.Index)})
	}
}

// keyAttrs lists the attributes of a position on this index: the table
// key plus the index key, exactly what DynamoDB returns as LastEvaluatedKey
func (t indexTarget) keyAttrs() []string {
	return []string{AttrPK, AttrSK, t.pkAttr, t.skAttr}
}

// checkPosition verifies a decoded cursor belongs to the queried
// partition and tenant, so a cursor never moves a query across tenants.
func (t indexTarget) checkPosition(position map[string]string, tenantID string) error {
	invalid := campaignflow.NewValidationError("invalid cursor",
		campaignflow.FieldError{Field: "cursor", Reason: "does not belong to this listing"})

	if len(position) != len(t.keyAttrs()) {
		return invalid
	}
	for _, attr := range t.keyAttrs() {
		if position[attr] == "" {
			return invalid
		}
	}
	if position[t.pkAttr] != t.partition {
		return invalid
	}
	key, err := parsePrimaryKey(position[AttrPK], position[AttrSK])
	if err != nil || key.TenantID != tenantID {
		return invalid
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sicko7947/campaignflow"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCampaign(tenantID, campaignID string, offset time.Duration) *campaignflow.Campaign {
	return &campaignflow.Campaign{
		TenantID:   tenantID,
		CampaignID: campaignID,
		Name:       "Campaign " + campaignID,
		BrandID:    "brand-1",
		Participants: campaignflow.Participants{
			PersonaIDs: []string{"persona-1"},
		},
		Status:    campaignflow.CampaignStatusPlanned,
		Version:   campaignflow.InitialVersion,
		CreatedAt: baseTime.Add(offset),
		UpdatedAt: baseTime.Add(offset),
	}
}

func newTestPost(tenantID, campaignID, postID string, offset time.Duration) *campaignflow.SocialPost {
	return &campaignflow.SocialPost{
		TenantID:   tenantID,
		CampaignID: campaignID,
		PostID:     postID,
		PersonaID:  "persona-1",
		Platform:   "linkedin",
		Status:     campaignflow.PostStatusPlanned,
		Version:    campaignflow.InitialVersion,
		CreatedAt:  baseTime.Add(offset),
		UpdatedAt:  baseTime.Add(offset),
	}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	require.NotNil(t, store)

	var _ campaignflow.EntityStore = store
}

func TestMemoryStore_CreateCampaign(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	campaign := newTestCampaign("t1", "c1", 0)
	require.NoError(t, store.CreateCampaign(ctx, campaign))

	retrieved, err := store.GetCampaign(ctx, campaign.Key())
	require.NoError(t, err)
	assert.Equal(t, campaign, retrieved)

	// Mutating the returned copy never reaches the store
	retrieved.Participants.PersonaIDs[0] = "changed"
	again, err := store.GetCampaign(ctx, campaign.Key())
	require.NoError(t, err)
	assert.Equal(t, "persona-1", again.Participants.PersonaIDs[0])
}

func TestMemoryStore_CreateCampaign_Duplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	campaign := newTestCampaign("t1", "c1", 0)
	require.NoError(t, store.CreateCampaign(ctx, campaign))

	err := store.CreateCampaign(ctx, campaign)
	assert.True(t, campaignflow.IsConflict(err))
}

func TestMemoryStore_GetCampaign_NotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetCampaign(context.Background(), campaignflow.CampaignKey("t1", "missing"))
	assert.True(t, campaignflow.IsNotFound(err))
}

func TestMemoryStore_GetCampaign_TenantIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateCampaign(ctx, newTestCampaign("t1", "c1", 0)))

	_, err := store.GetCampaign(ctx, campaignflow.CampaignKey("t2", "c1"))
	assert.True(t, campaignflow.IsNotFound(err))
}

func TestMemoryStore_UpdateCampaign(t *testing.T) {
	later := baseTime.Add(time.Hour)
	store := NewMemoryStore().WithClock(func() time.Time { return later })
	ctx := context.Background()

	campaign := newTestCampaign("t1", "c1", 0)
	require.NoError(t, store.CreateCampaign(ctx, campaign))

	patch := campaignflow.CampaignPatch{
		Status:  campaignflow.Set(campaignflow.CampaignStatusGenerating),
		BrandID: campaignflow.Null[string](),
	}
	updated, err := store.UpdateCampaign(ctx, campaign.Key(), patch, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, campaignflow.CampaignStatusGenerating, updated.Status)
	assert.Empty(t, updated.BrandID)
	assert.Equal(t, campaign.Name, updated.Name)
	assert.Equal(t, later, updated.UpdatedAt)
	assert.Equal(t, campaign.CreatedAt, updated.CreatedAt)
}

func TestMemoryStore_UpdateCampaign_StaleVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	campaign := newTestCampaign("t1", "c1", 0)
	require.NoError(t, store.CreateCampaign(ctx, campaign))

	patch := campaignflow.CampaignPatch{Name: campaignflow.Set("renamed")}
	_, err := store.UpdateCampaign(ctx, campaign.Key(), patch, 1)
	require.NoError(t, err)

	_, err = store.UpdateCampaign(ctx, campaign.Key(), patch, 1)
	assert.True(t, campaignflow.IsConflict(err))
	assert.False(t, campaignflow.IsNotFound(err))

	stored, err := store.GetCampaign(ctx, campaign.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestMemoryStore_UpdateCampaign_NotFound(t *testing.T) {
	store := NewMemoryStore()

	patch := campaignflow.CampaignPatch{Name: campaignflow.Set("renamed")}
	_, err := store.UpdateCampaign(context.Background(), campaignflow.CampaignKey("t1", "missing"), patch, 1)
	assert.True(t, campaignflow.IsNotFound(err))
	assert.False(t, campaignflow.IsConflict(err))
}

func TestMemoryStore_UpdateCampaign_ConcurrentWriters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	campaign := newTestCampaign("t1", "c1", 0)
	require.NoError(t, store.CreateCampaign(ctx, campaign))

	const writers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			patch := campaignflow.CampaignPatch{Name: campaignflow.Set(fmt.Sprintf("writer-%d", i))}
			_, err := store.UpdateCampaign(ctx, campaign.Key(), patch, 1)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if campaignflow.IsConflict(err) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)

	stored, err := store.GetCampaign(ctx, campaign.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestMemoryStore_QueryCampaigns_Recency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateCampaign(ctx, newTestCampaign("t1", fmt.Sprintf("c%d", i), time.Duration(i)*time.Minute)))
	}
	require.NoError(t, store.CreateCampaign(ctx, newTestCampaign("t2", "other", time.Hour)))

	page, err := store.QueryCampaigns(ctx, campaignflow.IndexQuery{
		Index:    campaignflow.IndexRecency,
		TenantID: "t1",
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	assert.True(t, page.Next.IsZero())

	for i, c := range page.Items {
		assert.Equal(t, "t1", c.TenantID)
		assert.Equal(t, fmt.Sprintf("c%d", 4-i), c.CampaignID)
	}
}

func TestMemoryStore_QueryCampaigns_Pagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateCampaign(ctx, newTestCampaign("t1", fmt.Sprintf("c%d", i), time.Duration(i)*time.Minute)))
	}

	q := campaignflow.IndexQuery{Index: campaignflow.IndexRecency, TenantID: "t1", Limit: 2}

	var seen []string
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5, "pagination did not terminate")

		page, err := store.QueryCampaigns(ctx, q)
		require.NoError(t, err)
		for _, c := range page.Items {
			seen = append(seen, c.CampaignID)
		}
		if page.Next.IsZero() {
			break
		}
		q.After = page.Next
	}

	assert.Equal(t, []string{"c4", "c3", "c2", "c1", "c0"}, seen)
}

func TestMemoryStore_QueryCampaigns_StatusIndex(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.CreateCampaign(ctx, newTestCampaign("t1", fmt.Sprintf("c%d", i), time.Duration(i)*time.Minute)))
	}

	patch := campaignflow.CampaignPatch{Status: campaignflow.Set(campaignflow.CampaignStatusGenerating)}
	_, err := store.UpdateCampaign(ctx, campaignflow.CampaignKey("t1", "c1"), patch, 1)
	require.NoError(t, err)

	page, err := store.QueryCampaigns(ctx, campaignflow.IndexQuery{
		Index:    campaignflow.IndexStatus,
		TenantID: "t1",
		Status:   string(campaignflow.CampaignStatusGenerating),
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c1", page.Items[0].CampaignID)

	planned, err := store.QueryCampaigns(ctx, campaignflow.IndexQuery{
		Index:    campaignflow.IndexStatus,
		TenantID: "t1",
		Status:   string(campaignflow.CampaignStatusPlanned),
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Len(t, planned.Items, 3)
}

func TestMemoryStore_QueryCampaigns_ForeignCursor(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateCampaign(ctx, newTestCampaign("t1", fmt.Sprintf("c%d", i), time.Duration(i)*time.Minute)))
	}

	page, err := store.QueryCampaigns(ctx, campaignflow.IndexQuery{Index: campaignflow.IndexRecency, TenantID: "t1", Limit: 1})
	require.NoError(t, err)
	require.False(t, page.Next.IsZero())

	_, err = store.QueryCampaigns(ctx, campaignflow.IndexQuery{
		Index:    campaignflow.IndexRecency,
		TenantID: "t2",
		Limit:    1,
		After:    page.Next,
	})
	assert.True(t, campaignflow.IsValidation(err))
}

func TestMemoryStore_Posts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreatePost(ctx, newTestPost("t1", "c1", fmt.Sprintf("p%d", i), time.Duration(i)*time.Minute)))
	}
	require.NoError(t, store.CreatePost(ctx, newTestPost("t1", "c2", "p9", time.Hour)))

	key := campaignflow.PostKey("t1", "c1", "p1")
	patch := campaignflow.PostPatch{
		Status: campaignflow.Set(campaignflow.PostStatusFailed),
		LastError: campaignflow.Set(campaignflow.PostError{
			Code:    "RATE_LIMITED",
			Message: "model rate limited",
		}),
	}
	updated, err := store.UpdatePost(ctx, key, patch, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	require.NotNil(t, updated.LastError)
	assert.Equal(t, "RATE_LIMITED", updated.LastError.Code)

	page, err := store.QueryPosts(ctx, campaignflow.IndexQuery{
		Index:      campaignflow.IndexRecency,
		TenantID:   "t1",
		CampaignID: "c1",
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "p2", page.Items[0].PostID)

	failed, err := store.QueryPosts(ctx, campaignflow.IndexQuery{
		Index:      campaignflow.IndexStatus,
		TenantID:   "t1",
		CampaignID: "c1",
		Status:     string(campaignflow.PostStatusFailed),
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, failed.Items, 1)
	assert.Equal(t, "p1", failed.Items[0].PostID)
}

func TestMemoryStore_QueryPosts_RequiresCampaign(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.QueryPosts(context.Background(), campaignflow.IndexQuery{
		Index:    campaignflow.IndexRecency,
		TenantID: "t1",
		Limit:    10,
	})
	assert.True(t, campaignflow.IsValidation(err))
}

func TestMemoryStore_UpdatePost_StaleVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	post := newTestPost("t1", "c1", "p1", 0)
	require.NoError(t, store.CreatePost(ctx, post))

	patch := campaignflow.PostPatch{Status: campaignflow.Set(campaignflow.PostStatusGenerating)}
	_, err := store.UpdatePost(ctx, post.Key(), patch, 7)
	assert.True(t, campaignflow.IsConflict(err))

	_, err = store.UpdatePost(ctx, campaignflow.PostKey("t1", "c1", "missing"), patch, 1)
	assert.True(t, campaignflow.IsNotFound(err))
}

package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sicko7947/campaignflow"
)

// MemoryStore implements campaignflow.EntityStore using in-memory storage (for testing).
// It keeps the DynamoDB key layout so cursors and index ordering behave
// the same way against either backend.
type MemoryStore struct {
	campaigns map[string]*campaignflow.Campaign   // PK -> campaign
	posts     map[string]*campaignflow.SocialPost // PK|SK -> post
	clock     campaignflow.Clock
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory entity store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: make(map[string]*campaignflow.Campaign),
		posts:     make(map[string]*campaignflow.SocialPost),
		clock:     campaignflow.SystemClock,
	}
}

// WithClock replaces the clock used to stamp updated_at
func (s *MemoryStore) WithClock(clock campaignflow.Clock) *MemoryStore {
	s.clock = clock
	return s
}

var _ campaignflow.EntityStore = (*MemoryStore)(nil)

func memoryKey(key campaignflow.EntityKey) string {
	return primaryPK(key) + "|" + primarySK(key)
}

// Campaign operations

func (s *MemoryStore) CreateCampaign(ctx context.Context, campaign *campaignflow.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := campaign.Key()
	if _, exists := s.campaigns[memoryKey(key)]; exists {
		return campaignflow.NewConflictError(fmt.Sprintf("%s %s already exists", key.Kind(), key))
	}

	s.campaigns[memoryKey(key)] = cloneCampaign(campaign)
	return nil
}

func (s *MemoryStore) GetCampaign(ctx context.Context, key campaignflow.EntityKey) (*campaignflow.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign, exists := s.campaigns[memoryKey(key)]
	if !exists {
		return nil, campaignflow.EntityNotFound(key)
	}
	return cloneCampaign(campaign), nil
}

func (s *MemoryStore) UpdateCampaign(ctx context.Context, key campaignflow.EntityKey, patch campaignflow.CampaignPatch, expectedVersion int64) (*campaignflow.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.campaigns[memoryKey(key)]
	if !exists {
		return nil, campaignflow.EntityNotFound(key)
	}
	if current.Version != expectedVersion {
		return nil, campaignflow.VersionConflict(key, expectedVersion)
	}

	updated := patch.Apply(*cloneCampaign(current))
	updated.Version = current.Version + 1
	updated.UpdatedAt = s.clock()
	s.campaigns[memoryKey(key)] = &updated

	return cloneCampaign(&updated), nil
}

func (s *MemoryStore) QueryCampaigns(ctx context.Context, q campaignflow.IndexQuery) (*campaignflow.CampaignPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]indexEntry[*campaignflow.Campaign], 0, len(s.campaigns))
	for _, campaign := range s.campaigns {
		entries = append(entries, newIndexEntry(campaign.Key(), string(campaign.Status), campaign.CreatedAt, campaign))
	}

	items, next, err := queryEntries(q, campaignflow.EntityKindCampaign, entries)
	if err != nil {
		return nil, err
	}

	page := &campaignflow.CampaignPage{Items: make([]*campaignflow.Campaign, 0, len(items)), Next: next}
	for _, campaign := range items {
		page.Items = append(page.Items, cloneCampaign(campaign))
	}
	return page, nil
}

// Social post operations

func (s *MemoryStore) CreatePost(ctx context.Context, post *campaignflow.SocialPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := post.Key()
	if _, exists := s.posts[memoryKey(key)]; exists {
		return campaignflow.NewConflictError(fmt.Sprintf("%s %s already exists", key.Kind(), key))
	}

	s.posts[memoryKey(key)] = clonePost(post)
	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, key campaignflow.EntityKey) (*campaignflow.SocialPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[memoryKey(key)]
	if !exists {
		return nil, campaignflow.EntityNotFound(key)
	}
	return clonePost(post), nil
}

func (s *MemoryStore) UpdatePost(ctx context.Context, key campaignflow.EntityKey, patch campaignflow.PostPatch, expectedVersion int64) (*campaignflow.SocialPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.posts[memoryKey(key)]
	if !exists {
		return nil, campaignflow.EntityNotFound(key)
	}
	if current.Version != expectedVersion {
		return nil, campaignflow.VersionConflict(key, expectedVersion)
	}

	updated := patch.Apply(*clonePost(current))
	updated.Version = current.Version + 1
	updated.UpdatedAt = s.clock()
	s.posts[memoryKey(key)] = &updated

	return clonePost(&updated), nil
}

func (s *MemoryStore) QueryPosts(ctx context.Context, q campaignflow.IndexQuery) (*campaignflow.PostPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]indexEntry[*campaignflow.SocialPost], 0, len(s.posts))
	for _, post := range s.posts {
		entries = append(entries, newIndexEntry(post.Key(), string(post.Status), post.CreatedAt, post))
	}

	items, next, err := queryEntries(q, campaignflow.EntityKindPost, entries)
	if err != nil {
		return nil, err
	}

	page := &campaignflow.PostPage{Items: make([]*campaignflow.SocialPost, 0, len(items)), Next: next}
	for _, post := range items {
		page.Items = append(page.Items, clonePost(post))
	}
	return page, nil
}

// Index emulation

// indexEntry is one item as it appears in the secondary indexes
type indexEntry[T any] struct {
	attrs map[string]string
	item  T
}

func newIndexEntry[T any](key campaignflow.EntityKey, status string, createdAt time.Time, item T) indexEntry[T] {
	attrs := indexKeys(key, status, createdAt)
	attrs[AttrPK] = primaryPK(key)
	attrs[AttrSK] = primarySK(key)
	return indexEntry[T]{attrs: attrs, item: item}
}

// position is the LastEvaluatedKey DynamoDB would report for the entry
func (e indexEntry[T]) position(t indexTarget) map[string]string {
	return map[string]string{
		AttrPK:   e.attrs[AttrPK],
		AttrSK:   e.attrs[AttrSK],
		t.pkAttr: e.attrs[t.pkAttr],
		t.skAttr: e.attrs[t.skAttr],
	}
}

// compareDesc orders index entries newest first, breaking ties on the
// table key so the order is total.
func compareDesc(skAttr string, a, b map[string]string) int {
	if c := cmp.Compare(b[skAttr], a[skAttr]); c != 0 {
		return c
	}
	if c := cmp.Compare(b[AttrPK], a[AttrPK]); c != 0 {
		return c
	}
	return cmp.Compare(b[AttrSK], a[AttrSK])
}

func queryEntries[T any](q campaignflow.IndexQuery, kind campaignflow.EntityKind, all []indexEntry[T]) ([]T, campaignflow.Cursor, error) {
	target, err := resolveIndex(q, kind)
	if err != nil {
		return nil, campaignflow.Cursor{}, err
	}

	position, err := q.After.Position()
	if err != nil {
		return nil, campaignflow.Cursor{}, err
	}
	if position != nil {
		if err := target.checkPosition(position, q.TenantID); err != nil {
			return nil, campaignflow.Cursor{}, err
		}
	}

	var matched []indexEntry[T]
	for _, entry := range all {
		if entry.attrs[target.pkAttr] != target.partition {
			continue
		}
		if position != nil && compareDesc(target.skAttr, position, entry.attrs) >= 0 {
			continue
		}
		matched = append(matched, entry)
	}
	slices.SortFunc(matched, func(a, b indexEntry[T]) int {
		return compareDesc(target.skAttr, a.attrs, b.attrs)
	})

	var next campaignflow.Cursor
	if q.Limit > 0 && len(matched) > int(q.Limit) {
		matched = matched[:q.Limit]
		next, err = campaignflow.NewCursor(matched[len(matched)-1].position(target))
		if err != nil {
			return nil, campaignflow.Cursor{}, err
		}
	}

	items := make([]T, 0, len(matched))
	for _, entry := range matched {
		items = append(items, entry.item)
	}
	return items, next, nil
}

// Copies, so callers never share state with the store

func cloneCampaign(c *campaignflow.Campaign) *campaignflow.Campaign {
	out := *c
	out.Participants.PersonaIDs = slices.Clone(c.Participants.PersonaIDs)
	if c.DeletedAt != nil {
		out.DeletedAt = campaignflow.ToPtr(*c.DeletedAt)
	}
	return &out
}

func clonePost(p *campaignflow.SocialPost) *campaignflow.SocialPost {
	out := *p
	if p.LastError != nil {
		out.LastError = campaignflow.ToPtr(*p.LastError)
	}
	if p.Content != nil {
		content := *p.Content
		content.Hashtags = slices.Clone(p.Content.Hashtags)
		content.Mentions = slices.Clone(p.Content.Mentions)
		out.Content = &content
	}
	if p.DeletedAt != nil {
		out.DeletedAt = campaignflow.ToPtr(*p.DeletedAt)
	}
	return &out
}

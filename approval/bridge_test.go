package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/metrics"
	"github.com/sicko7947/campaignflow/store"
)

type signalCall struct {
	callbackID string
	result     string
}

// recordingSignaller captures every decision it is asked to send
type recordingSignaller struct {
	mu    sync.Mutex
	calls []signalCall
	err   error
}

func (s *recordingSignaller) SendDecision(ctx context.Context, callbackID string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, signalCall{callbackID: callbackID, result: string(result)})
	return s.err
}

func (s *recordingSignaller) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// seedPending stores campaign C1 at version 3, pending approval under cb-42
func seedPending(t *testing.T, s *store.MemoryStore) *campaignflow.Campaign {
	t.Helper()
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	c := &campaignflow.Campaign{
		TenantID:   "tenant-1",
		CampaignID: "C1",
		Name:       "Launch",
		Status:     campaignflow.CampaignStatusPendingApproval,
		Version:    3,
		CallbackID: "cb-42",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.CreateCampaign(context.Background(), c))
	return c
}

func approved(tenantID, campaignID, token string) Submission {
	return Submission{
		TenantID:   tenantID,
		CampaignID: campaignID,
		CallbackID: token,
		Payload:    Payload{Decision: DecisionApproved},
	}
}

func TestBridge_ApprovedThenResubmittedAfterCompletion(t *testing.T) {
	s := store.NewMemoryStore()
	c := seedPending(t, s)
	signaller := &recordingSignaller{}
	bridge := NewBridge(s, signaller)
	ctx := context.Background()

	result, err := bridge.Submit(ctx, approved("tenant-1", "C1", "cb-42"))
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, result.Decision)

	require.Equal(t, 1, signaller.count())
	assert.Equal(t, "cb-42", signaller.calls[0].callbackID)
	assert.JSONEq(t, `{"decision":"approved"}`, signaller.calls[0].result)

	// The bridge itself never moves the campaign
	stored, err := s.GetCampaign(ctx, c.Key())
	require.NoError(t, err)
	assert.Equal(t, campaignflow.CampaignStatusPendingApproval, stored.Status)
	assert.Equal(t, int64(3), stored.Version)

	// The engine's continuation completes the campaign
	_, err = s.UpdateCampaign(ctx, c.Key(), campaignflow.CampaignPatch{
		Status: campaignflow.Set(campaignflow.CampaignStatusCompleted),
	}.Normalized(), 3)
	require.NoError(t, err)

	_, err = bridge.Submit(ctx, approved("tenant-1", "C1", "cb-42"))
	assert.Same(t, ErrExpired, err)
	assert.Equal(t, 1, signaller.count())
}

func TestBridge_UniformRejection(t *testing.T) {
	s := store.NewMemoryStore()
	seedPending(t, s)
	ctx := context.Background()

	deletedAt := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	for _, c := range []*campaignflow.Campaign{
		{TenantID: "tenant-1", CampaignID: "planned", Status: campaignflow.CampaignStatusPlanned, Version: 1},
		{TenantID: "tenant-1", CampaignID: "gone", Status: campaignflow.CampaignStatusPendingApproval, Version: 2, CallbackID: "cb-7", DeletedAt: &deletedAt},
	} {
		require.NoError(t, s.CreateCampaign(ctx, c))
	}

	tests := []struct {
		name       string
		submission Submission
		reason     string
	}{
		{name: "unknown campaign", submission: approved("tenant-1", "nope", "cb-42"), reason: ReasonMissing},
		{name: "wrong token", submission: approved("tenant-1", "C1", "cb-43"), reason: ReasonTokenMismatch},
		{name: "not pending", submission: approved("tenant-1", "planned", "cb-42"), reason: ReasonNotPending},
		{name: "deleted", submission: approved("tenant-1", "gone", "cb-7"), reason: ReasonDeleted},
		{name: "other tenant", submission: approved("tenant-2", "C1", "cb-42"), reason: ReasonMissing},
	}

	var shapes []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signaller := &recordingSignaller{}
			collector := metrics.NewCollector()
			bridge := NewBridge(s, signaller, WithMetrics(collector))

			result, err := bridge.Submit(ctx, tt.submission)
			assert.Nil(t, result)
			require.True(t, campaignflow.IsNotFound(err))
			assert.Zero(t, signaller.count())

			shapes = append(shapes, err.Error())
		})
	}

	for _, shape := range shapes {
		assert.Equal(t, shapes[0], shape)
	}
}

func TestRejectReason(t *testing.T) {
	deletedAt := time.Now()
	pending := &campaignflow.Campaign{Status: campaignflow.CampaignStatusPendingApproval, CallbackID: "cb-42"}

	assert.Equal(t, ReasonMissing, rejectReason(nil, "cb-42"))
	assert.Equal(t, ReasonTokenMismatch, rejectReason(pending, "cb-4"))
	assert.Equal(t, ReasonTokenMismatch, rejectReason(pending, "cb-420"))
	assert.Equal(t, ReasonNotPending, rejectReason(&campaignflow.Campaign{Status: campaignflow.CampaignStatusCompleted}, ""))
	assert.Equal(t, ReasonDeleted, rejectReason(&campaignflow.Campaign{
		Status: campaignflow.CampaignStatusPendingApproval, CallbackID: "cb-42", DeletedAt: &deletedAt,
	}, "cb-42"))
	assert.Empty(t, rejectReason(pending, "cb-42"))
}

func TestBridge_ValidationBeforeStore(t *testing.T) {
	signaller := &recordingSignaller{}
	// A nil store would panic if the bridge reached it
	bridge := NewBridge(nil, signaller)
	ctx := context.Background()
	long := strings.Repeat("x", MaxCommentsLength+1)

	tests := []struct {
		name   string
		sub    Submission
		fields []string
	}{
		{
			name:   "unknown decision",
			sub:    Submission{TenantID: "tenant-1", CampaignID: "C1", CallbackID: "cb", Payload: Payload{Decision: "maybe"}},
			fields: []string{"decision"},
		},
		{
			name:   "missing decision and token",
			sub:    Submission{TenantID: "tenant-1", CampaignID: "C1"},
			fields: []string{"callbackId", "decision"},
		},
		{
			name:   "comments too long",
			sub:    Submission{TenantID: "tenant-1", CampaignID: "C1", CallbackID: "cb", Payload: Payload{Decision: DecisionRejected, Comments: &long}},
			fields: []string{"comments"},
		},
		{
			name:   "missing campaign id",
			sub:    Submission{TenantID: "tenant-1", CallbackID: "cb", Payload: Payload{Decision: DecisionApproved}},
			fields: []string{"campaignId"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bridge.Submit(ctx, tt.sub)
			require.True(t, campaignflow.IsValidation(err))

			var got []string
			for _, f := range campaignflow.AsError(err).Fields {
				got = append(got, f.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}

	_, err := bridge.Submit(ctx, Submission{CampaignID: "C1", CallbackID: "cb", Payload: Payload{Decision: DecisionApproved}})
	assert.ErrorIs(t, err, campaignflow.ErrUnauthorized)
	assert.Zero(t, signaller.count())
}

func TestBridge_CommentsForwarded(t *testing.T) {
	s := store.NewMemoryStore()
	seedPending(t, s)
	signaller := &recordingSignaller{}
	bridge := NewBridge(s, signaller)

	comments := "tighten the second post"
	_, err := bridge.Submit(context.Background(), Submission{
		TenantID:   "tenant-1",
		CampaignID: "C1",
		CallbackID: "cb-42",
		Payload:    Payload{Decision: DecisionNeedsRevision, Comments: &comments},
	})
	require.NoError(t, err)
	require.Equal(t, 1, signaller.count())
	assert.JSONEq(t, `{"decision":"needs_revision","comments":"tighten the second post"}`, signaller.calls[0].result)
}

func TestBridge_SignalFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		notFound  bool
		retryable bool
	}{
		{
			name:      "engine unavailable",
			err:       campaignflow.NewExternalServiceError("signal workflow engine", errors.New("503")),
			retryable: true,
		},
		{
			name:     "token expired at the engine",
			err:      fmt.Errorf("task timed out: %w", ErrExpired),
			notFound: true,
		},
		{
			name:      "cancelled",
			err:       context.Canceled,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			seedPending(t, s)
			bridge := NewBridge(s, &recordingSignaller{err: tt.err})

			_, err := bridge.Submit(context.Background(), approved("tenant-1", "C1", "cb-42"))
			require.Error(t, err)
			assert.Equal(t, tt.notFound, campaignflow.IsNotFound(err))
			assert.Equal(t, tt.retryable, campaignflow.IsRetryable(err))
		})
	}
}

// Two decisions racing against a still-pending campaign both reach the
// engine; only a status change by the engine closes the gate.
func TestBridge_ConcurrentDecisionsBothSignal(t *testing.T) {
	s := store.NewMemoryStore()
	seedPending(t, s)
	signaller := &recordingSignaller{}
	bridge := NewBridge(s, signaller)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = bridge.Submit(context.Background(), approved("tenant-1", "C1", "cb-42"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, signaller.count())
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.WriteConflict("campaign")
	c.WriteConflict("campaign")
	c.ApprovalRejected("token_mismatch")
	c.ApprovalDecision("approved")
	c.ItemsFiltered("post", "deleted", 3)
	c.ItemsFiltered("post", "deleted", 0)
	c.SignalFailed()

	body := scrape(t, c)
	assert.Contains(t, body, `campaignflow_write_conflicts_total{kind="campaign"} 2`)
	assert.Contains(t, body, `campaignflow_approval_rejections_total{reason="token_mismatch"} 1`)
	assert.Contains(t, body, `campaignflow_approval_decisions_total{decision="approved"} 1`)
	assert.Contains(t, body, `campaignflow_list_filtered_items_total{kind="post",reason="deleted"} 3`)
	assert.Contains(t, body, `campaignflow_signal_failures_total 1`)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.WriteConflict("campaign")
		c.TransitionDenied("campaign", "generating", "cancelled")
		c.ApprovalDecision("approved")
		c.ApprovalRejected("missing")
		c.ItemsFiltered("campaign", "brand", 2)
		c.SignalFailed()
		c.ObserveRequest("GET", "/health", 200, time.Millisecond)
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_ObserveRequest(t *testing.T) {
	c := NewCollector()
	c.ObserveRequest("GET", "/v1/campaigns", http.StatusOK, 5*time.Millisecond)
	c.ObserveRequest("GET", "", http.StatusNotFound, time.Millisecond)

	body := scrape(t, c)
	assert.Contains(t, body, `campaignflow_http_requests_total{method="GET",route="/v1/campaigns",status="200"} 1`)
	assert.Contains(t, body, `campaignflow_http_requests_total{method="GET",route="unknown",status="404"} 1`)
}

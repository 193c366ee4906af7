package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/approval"
	"github.com/sicko7947/campaignflow/metrics"
	"github.com/sicko7947/campaignflow/query"
	"github.com/sicko7947/campaignflow/service"
	"github.com/sicko7947/campaignflow/store"
)

type recordingSignaller struct {
	mu      sync.Mutex
	results []string
}

func (s *recordingSignaller) SendDecision(ctx context.Context, callbackID string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, callbackID+" "+string(result))
	return nil
}

type testServer struct {
	app       *fiber.App
	signaller *recordingSignaller
	metrics   *metrics.Collector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := store.NewMemoryStore()
	engine := query.NewEngine(s)
	collector := metrics.NewCollector()
	signaller := &recordingSignaller{}

	server := NewServer(
		service.NewCampaignService(s, engine),
		service.NewPostService(s, engine),
		approval.NewBridge(s, signaller),
		WithMetrics(collector),
		WithHealthDetails(func() fiber.Map { return fiber.Map{"signaller": "closed"} }),
	)
	return &testServer{app: server.App(), signaller: signaller, metrics: collector}
}

// do sends a request as tenant and decodes a JSON response into out
func (ts *testServer) do(t *testing.T, method, path, tenant, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set("X-Tenant-Id", tenant)
	}

	resp, err := ts.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error struct {
		Kind    string                    `json:"kind"`
		Message string                    `json:"message"`
		Fields  []campaignflow.FieldError `json:"fields"`
	} `json:"error"`
}

func (ts *testServer) createCampaign(t *testing.T, tenant string) campaignflow.Campaign {
	t.Helper()
	var c campaignflow.Campaign
	status := ts.do(t, http.MethodPost, "/v1/campaigns", tenant,
		`{"name":"Launch","brandId":"brand-1","participants":{"personaIds":["p1"]}}`, &c)
	require.Equal(t, http.StatusCreated, status)
	return c
}

func TestServer_MissingTenant(t *testing.T) {
	ts := newTestServer(t)

	var body errorBody
	status := ts.do(t, http.MethodGet, "/v1/campaigns", "", "", &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, campaignflow.ErrCodeUnauthorized, body.Error.Kind)
}

func TestServer_CampaignLifecycle(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCampaign(t, "tenant-1")
	assert.Equal(t, campaignflow.CampaignStatusPlanned, c.Status)
	assert.Equal(t, campaignflow.InitialVersion, c.Version)

	var got campaignflow.Campaign
	status := ts.do(t, http.MethodGet, "/v1/campaigns/"+c.CampaignID, "tenant-1", "", &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Launch", got.Name)

	var updated campaignflow.Campaign
	status = ts.do(t, http.MethodPatch, "/v1/campaigns/"+c.CampaignID, "tenant-1",
		`{"patch":{"name":"Relaunch"},"expectedVersion":1}`, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Relaunch", updated.Name)
	assert.Equal(t, int64(2), updated.Version)

	var conflict errorBody
	status = ts.do(t, http.MethodPatch, "/v1/campaigns/"+c.CampaignID, "tenant-1",
		`{"patch":{"name":"Stale"},"expectedVersion":1}`, &conflict)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, campaignflow.ErrCodeConflict, conflict.Error.Kind)

	status = ts.do(t, http.MethodDelete, "/v1/campaigns/"+c.CampaignID, "tenant-1", "", nil)
	assert.Equal(t, http.StatusNoContent, status)

	var missing errorBody
	status = ts.do(t, http.MethodGet, "/v1/campaigns/"+c.CampaignID, "tenant-1", "", &missing)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, campaignflow.ErrCodeNotFound, missing.Error.Kind)
}

func TestServer_TenantIsolation(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCampaign(t, "tenant-1")

	status := ts.do(t, http.MethodGet, "/v1/campaigns/"+c.CampaignID, "tenant-2", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	var page query.Page[*campaignflow.Campaign]
	status = ts.do(t, http.MethodGet, "/v1/campaigns", "tenant-2", "", &page)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, page.Items)
}

func TestServer_StoredIDsSurviveLaterRequests(t *testing.T) {
	ts := newTestServer(t)
	c1 := ts.createCampaign(t, "tenant-1")

	base := "/v1/campaigns/" + c1.CampaignID + "/posts"
	var p campaignflow.SocialPost
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base, "tenant-1",
		`{"personaId":"p1","platform":"linkedin"}`, &p))

	// Same-length values so a reused request buffer would overwrite them in place.
	c2 := ts.createCampaign(t, "tenant-2")
	ts.do(t, http.MethodGet, "/v1/campaigns/"+c2.CampaignID, "tenant-2", "", nil)
	ts.do(t, http.MethodGet, "/v1/campaigns/"+c2.CampaignID+"/posts/"+p.PostID, "tenant-2", "", nil)

	var page query.Page[*campaignflow.Campaign]
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/v1/campaigns", "tenant-1", "", &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "tenant-1", page.Items[0].TenantID)
	assert.Equal(t, c1.CampaignID, page.Items[0].CampaignID)

	var got campaignflow.SocialPost
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"/"+p.PostID, "tenant-1", "", &got))
	assert.Equal(t, "tenant-1", got.TenantID)
	assert.Equal(t, c1.CampaignID, got.CampaignID)

	var other query.Page[*campaignflow.Campaign]
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/v1/campaigns", "tenant-2", "", &other))
	require.Len(t, other.Items, 1)
	assert.Equal(t, "tenant-2", other.Items[0].TenantID)
}

func TestServer_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCampaign(t, "tenant-1")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		field  string
	}{
		{name: "page size too large", method: http.MethodGet, path: "/v1/campaigns?pageSize=101", field: "pageSize"},
		{name: "page size not a number", method: http.MethodGet, path: "/v1/campaigns?pageSize=ten", field: "pageSize"},
		{name: "bad cursor", method: http.MethodGet, path: "/v1/campaigns?cursor=%25%25", field: "cursor"},
		{name: "unknown status", method: http.MethodGet, path: "/v1/campaigns?status=archived", field: "status"},
		{name: "missing name", method: http.MethodPost, path: "/v1/campaigns", body: `{"brandId":"b"}`, field: "name"},
		{name: "missing version", method: http.MethodPatch, path: "/v1/campaigns/" + c.CampaignID, body: `{"patch":{"name":"x"}}`, field: "expectedVersion"},
		{name: "malformed body", method: http.MethodPost, path: "/v1/campaigns", body: `{"name":`, field: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			status := ts.do(t, tt.method, tt.path, "tenant-1", tt.body, &body)
			require.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, campaignflow.ErrCodeValidation, body.Error.Kind)

			var fields []string
			for _, f := range body.Error.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestServer_CancelWhileGenerating(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCampaign(t, "tenant-1")

	status := ts.do(t, http.MethodPatch, "/v1/campaigns/"+c.CampaignID, "tenant-1",
		`{"patch":{"status":"generating"},"expectedVersion":1}`, nil)
	require.Equal(t, http.StatusOK, status)

	var body errorBody
	status = ts.do(t, http.MethodPost, "/v1/campaigns/"+c.CampaignID+"/cancel", "tenant-1",
		`{"expectedVersion":2}`, &body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body.Error.Message, "generation in progress")
}

func TestServer_ApprovalFlow(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCampaign(t, "tenant-1")
	base := "/v1/campaigns/" + c.CampaignID

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, base, "tenant-1",
		`{"patch":{"status":"generating"},"expectedVersion":1}`, nil))

	var pending campaignflow.Campaign
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/await-approval", "tenant-1",
		`{"callbackId":"cb-42","expectedVersion":2}`, &pending))
	assert.Equal(t, campaignflow.CampaignStatusPendingApproval, pending.Status)

	var wrong errorBody
	status := ts.do(t, http.MethodPost, base+"/approval?callbackId=cb-43", "tenant-1",
		`{"decision":"approved"}`, &wrong)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, approval.ErrExpired.Message, wrong.Error.Message)

	var result approval.Result
	status = ts.do(t, http.MethodPost, base+"/approval?callbackId=cb-42", "tenant-1",
		`{"decision":"approved"}`, &result)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, approval.DecisionApproved, result.Decision)
	assert.Equal(t, []string{`cb-42 {"decision":"approved"}`}, ts.signaller.results)

	// The token may travel in the body instead of the query
	status = ts.do(t, http.MethodPost, base+"/approval", "tenant-1",
		`{"decision":"rejected","comments":"no","callbackId":"cb-42"}`, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, ts.signaller.results, 2)

	var invalid errorBody
	status = ts.do(t, http.MethodPost, base+"/approval?callbackId=cb-42", "tenant-1",
		`{"decision":"maybe"}`, &invalid)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_Posts(t *testing.T) {
	ts := newTestServer(t)
	c := ts.createCampaign(t, "tenant-1")
	base := "/v1/campaigns/" + c.CampaignID + "/posts"

	var p campaignflow.SocialPost
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base, "tenant-1",
		`{"personaId":"p1","platform":"linkedin"}`, &p))
	ts.do(t, http.MethodPost, base, "tenant-1", `{"personaId":"p2","platform":"x"}`, nil)

	var page query.Page[*campaignflow.SocialPost]
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"?personaId=p1", "tenant-1", "", &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, p.PostID, page.Items[0].PostID)

	var updated campaignflow.SocialPost
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, base+"/"+p.PostID, "tenant-1",
		`{"patch":{"status":"generating"},"expectedVersion":1}`, &updated))
	assert.Equal(t, campaignflow.PostStatusGenerating, updated.Status)

	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodDelete, base+"/"+p.PostID, "tenant-1", "", nil))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, base+"/"+p.PostID, "tenant-1",
		`{"patch":{"status":"failed","lastError":{"code":"MODEL_TIMEOUT","message":"timed out"}},"expectedVersion":2}`, &updated))
	require.NotNil(t, updated.LastError)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, base+"/"+p.PostID, "tenant-1", "", nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, base+"/"+p.PostID, "tenant-1", "", nil))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", "", &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "closed", health["signaller"])

	ts.do(t, http.MethodGet, "/v1/campaigns", "tenant-1", "", nil)

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `campaignflow_http_requests_total{method="GET",route="/v1/campaigns`)
}

func TestStatusCode(t *testing.T) {
	key := campaignflow.CampaignKey("t", "c")
	assert.Equal(t, http.StatusNotFound, StatusCode(campaignflow.EntityNotFound(key)))
	assert.Equal(t, http.StatusConflict, StatusCode(campaignflow.VersionConflict(key, 2)))
	assert.Equal(t, http.StatusBadRequest, StatusCode(campaignflow.NewValidationError("bad")))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(campaignflow.ErrMissingTenant))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(context.DeadlineExceeded))
}

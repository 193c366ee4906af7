// Package httpapi exposes the campaign, post and approval operations over
// HTTP with fiber.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/approval"
	"github.com/sicko7947/campaignflow/metrics"
	"github.com/sicko7947/campaignflow/service"
)

const (
	localTenantID  = "tenantId"
	localRequestID = "requestId"

	headerRequestID = "X-Request-Id"
)

// Server holds the handlers' dependencies
type Server struct {
	campaigns    *service.CampaignService
	posts        *service.PostService
	bridge       *approval.Bridge
	logger       zerolog.Logger
	metrics      *metrics.Collector
	tenantHeader string
	health       func() fiber.Map
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics enables request metrics and the /metrics endpoint
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTenantHeader names the header carrying the authenticated tenant id
func WithTenantHeader(header string) Option {
	return func(s *Server) {
		if header != "" {
			s.tenantHeader = header
		}
	}
}

// WithHealthDetails adds fields to the /health response
func WithHealthDetails(details func() fiber.Map) Option {
	return func(s *Server) {
		s.health = details
	}
}

// NewServer creates a server over the given services
func NewServer(campaigns *service.CampaignService, posts *service.PostService, bridge *approval.Bridge, opts ...Option) *Server {
	s := &Server{
		campaigns:    campaigns,
		posts:        posts,
		bridge:       bridge,
		logger:       zerolog.Nop(),
		tenantHeader: campaignflow.DefaultConfig.TenantHeader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// App builds the fiber application with every route registered
func (s *Server) App() *fiber.App {
	// Params and headers end up in stored entities, so they must not
	// alias fasthttp's reused request buffers.
	app := fiber.New(fiber.Config{
		AppName:      "campaignflow",
		ErrorHandler: s.handleError,
		Immutable:    true,
	})

	app.Use(s.requestContext)
	s.registerRoutes(app)

	return app
}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes(app *fiber.App) {
	app.Get("/health", s.handleHealth)
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	v1 := app.Group("/v1", s.requireTenant)

	campaigns := v1.Group("/campaigns")
	campaigns.Post("", s.handleCreateCampaign)
	campaigns.Get("", s.handleListCampaigns)
	campaigns.Get("/:campaignId", s.handleGetCampaign)
	campaigns.Patch("/:campaignId", s.handleUpdateCampaign)
	campaigns.Delete("/:campaignId", s.handleDeleteCampaign)
	campaigns.Post("/:campaignId/cancel", s.handleCancelCampaign)
	campaigns.Post("/:campaignId/await-approval", s.handleAwaitApproval)
	campaigns.Post("/:campaignId/approval", s.handleApprovalDecision)

	posts := campaigns.Group("/:campaignId/posts")
	posts.Post("", s.handleCreatePost)
	posts.Get("", s.handleListPosts)
	posts.Get("/:postId", s.handleGetPost)
	posts.Patch("/:postId", s.handleUpdatePost)
	posts.Delete("/:postId", s.handleDeletePost)
}

// requestContext tags the request with an id and records its outcome
func (s *Server) requestContext(c fiber.Ctx) error {
	start := time.Now()

	requestID := c.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Locals(localRequestID, requestID)
	c.Set(headerRequestID, requestID)

	if err := c.Next(); err != nil {
		if herr := s.handleError(c, err); herr != nil {
			return herr
		}
	}

	s.metrics.ObserveRequest(c.Method(), c.Route().Path, c.Response().StatusCode(), time.Since(start))
	return nil
}

// requireTenant rejects requests without a tenant id
func (s *Server) requireTenant(c fiber.Ctx) error {
	tenantID := c.Get(s.tenantHeader)
	if err := campaignflow.RequireTenant(tenantID); err != nil {
		return err
	}
	c.Locals(localTenantID, tenantID)
	return c.Next()
}

func tenantID(c fiber.Ctx) string {
	id, _ := c.Locals(localTenantID).(string)
	return id
}

func (s *Server) requestLogger(c fiber.Ctx) zerolog.Logger {
	requestID, _ := c.Locals(localRequestID).(string)
	return s.logger.With().
		Str("request_id", requestID).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Logger()
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	body := fiber.Map{
		"status":  "healthy",
		"service": "campaignflow",
	}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	return c.JSON(body)
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error *campaignflow.Error `json:"error"`
}

// handleError maps core errors to status codes and the error body
func (s *Server) handleError(c fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: &campaignflow.Error{
			Code:    codeForStatus(fe.Code),
			Message: fe.Message,
		}})
	}

	e := campaignflow.AsError(err)
	status := StatusCode(e)
	if status >= http.StatusInternalServerError {
		logger := s.requestLogger(c)
		logger.Error().
			Err(err).
			Bool("retryable", e.Retryable).
			Msg("Request failed")
	}
	return c.Status(status).JSON(errorResponse{Error: e})
}

// StatusCode maps an error to its HTTP status
func StatusCode(err error) int {
	switch e := campaignflow.AsError(err); {
	case e == nil:
		return http.StatusOK
	case e.Code == campaignflow.ErrCodeNotFound:
		return http.StatusNotFound
	case e.Code == campaignflow.ErrCodeConflict:
		return http.StatusConflict
	case e.Code == campaignflow.ErrCodeValidation:
		return http.StatusBadRequest
	case e.Code == campaignflow.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		return campaignflow.ErrCodeNotFound
	case status == http.StatusUnauthorized:
		return campaignflow.ErrCodeUnauthorized
	case status < http.StatusInternalServerError:
		return campaignflow.ErrCodeValidation
	default:
		return campaignflow.ErrCodeExternalService
	}
}

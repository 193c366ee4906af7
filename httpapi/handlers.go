package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/approval"
	"github.com/sicko7947/campaignflow/query"
	"github.com/sicko7947/campaignflow/service"
)

// updateCampaignRequest is the body of PATCH /v1/campaigns/:campaignId
type updateCampaignRequest struct {
	Patch           campaignflow.CampaignPatch `json:"patch"`
	ExpectedVersion *int64                     `json:"expectedVersion"`
}

// updatePostRequest is the body of PATCH /v1/campaigns/:campaignId/posts/:postId
type updatePostRequest struct {
	Patch           campaignflow.PostPatch `json:"patch"`
	ExpectedVersion *int64                 `json:"expectedVersion"`
}

type versionRequest struct {
	ExpectedVersion *int64 `json:"expectedVersion"`
}

type awaitApprovalRequest struct {
	CallbackID      string `json:"callbackId"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// approvalRequest carries the decision; the token may also come in the query
type approvalRequest struct {
	approval.Payload
	CallbackID string `json:"callbackId"`
}

func (s *Server) handleCreateCampaign(c fiber.Ctx) error {
	var in service.CreateCampaignInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	campaign, err := s.campaigns.Create(c.Context(), tenantID(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(campaign)
}

func (s *Server) handleListCampaigns(c fiber.Ctx) error {
	pageSize, cursor, err := pagination(c)
	if err != nil {
		return err
	}

	filter := query.CampaignFilter{
		Status:    campaignflow.CampaignStatus(c.Query("status")),
		BrandID:   c.Query("brandId"),
		PersonaID: c.Query("personaId"),
	}
	page, err := s.campaigns.List(c.Context(), tenantID(c), filter, pageSize, cursor)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) handleGetCampaign(c fiber.Ctx) error {
	campaign, err := s.campaigns.Get(c.Context(), campaignKey(c))
	if err != nil {
		return err
	}
	return c.JSON(campaign)
}

func (s *Server) handleUpdateCampaign(c fiber.Ctx) error {
	var req updateCampaignRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	version, err := requireVersion(req.ExpectedVersion)
	if err != nil {
		return err
	}

	campaign, err := s.campaigns.Update(c.Context(), campaignKey(c), req.Patch, version)
	if err != nil {
		return err
	}
	return c.JSON(campaign)
}

func (s *Server) handleDeleteCampaign(c fiber.Ctx) error {
	if err := s.campaigns.Delete(c.Context(), campaignKey(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCancelCampaign(c fiber.Ctx) error {
	var req versionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	version, err := requireVersion(req.ExpectedVersion)
	if err != nil {
		return err
	}

	campaign, err := s.campaigns.Cancel(c.Context(), campaignKey(c), version)
	if err != nil {
		return err
	}
	return c.JSON(campaign)
}

func (s *Server) handleAwaitApproval(c fiber.Ctx) error {
	var req awaitApprovalRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	version, err := requireVersion(req.ExpectedVersion)
	if err != nil {
		return err
	}

	campaign, err := s.campaigns.AwaitApproval(c.Context(), campaignKey(c), req.CallbackID, version)
	if err != nil {
		return err
	}
	return c.JSON(campaign)
}

func (s *Server) handleApprovalDecision(c fiber.Ctx) error {
	var req approvalRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	callbackID := c.Query("callbackId")
	if callbackID == "" {
		callbackID = req.CallbackID
	}

	result, err := s.bridge.Submit(c.Context(), approval.Submission{
		TenantID:   tenantID(c),
		CampaignID: c.Params("campaignId"),
		CallbackID: callbackID,
		Payload:    req.Payload,
	})
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) handleCreatePost(c fiber.Ctx) error {
	var in service.CreatePostInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	post, err := s.posts.Create(c.Context(), tenantID(c), c.Params("campaignId"), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (s *Server) handleListPosts(c fiber.Ctx) error {
	pageSize, cursor, err := pagination(c)
	if err != nil {
		return err
	}

	filter := query.PostFilter{
		Status:    campaignflow.PostStatus(c.Query("status")),
		PersonaID: c.Query("personaId"),
		Platform:  c.Query("platform"),
	}
	page, err := s.posts.List(c.Context(), tenantID(c), c.Params("campaignId"), filter, pageSize, cursor)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) handleGetPost(c fiber.Ctx) error {
	post, err := s.posts.Get(c.Context(), postKey(c))
	if err != nil {
		return err
	}
	return c.JSON(post)
}

func (s *Server) handleUpdatePost(c fiber.Ctx) error {
	var req updatePostRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	version, err := requireVersion(req.ExpectedVersion)
	if err != nil {
		return err
	}

	post, err := s.posts.Update(c.Context(), postKey(c), req.Patch, version)
	if err != nil {
		return err
	}
	return c.JSON(post)
}

func (s *Server) handleDeletePost(c fiber.Ctx) error {
	if err := s.posts.Delete(c.Context(), postKey(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func campaignKey(c fiber.Ctx) campaignflow.EntityKey {
	return campaignflow.CampaignKey(tenantID(c), c.Params("campaignId"))
}

func postKey(c fiber.Ctx) campaignflow.EntityKey {
	return campaignflow.PostKey(tenantID(c), c.Params("campaignId"), c.Params("postId"))
}

func bindJSON(c fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return campaignflow.NewValidationError("invalid request body",
			campaignflow.FieldError{Field: "body", Reason: "is required"})
	}
	if err := c.Bind().JSON(out); err != nil {
		return campaignflow.NewValidationError("invalid request body",
			campaignflow.FieldError{Field: "body", Reason: "is not valid JSON for this operation"})
	}
	return nil
}

// pagination reads pageSize and cursor; range checks belong to the query engine
func pagination(c fiber.Ctx) (int, campaignflow.Cursor, error) {
	pageSize := 0
	if raw := c.Query("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, campaignflow.Cursor{}, campaignflow.NewValidationError("invalid list request",
				campaignflow.FieldError{Field: "pageSize", Reason: "must be an integer"})
		}
		pageSize = n
	}

	cursor, err := campaignflow.ParseCursor(c.Query("cursor"))
	if err != nil {
		return 0, campaignflow.Cursor{}, err
	}
	return pageSize, cursor, nil
}

func requireVersion(v *int64) (int64, error) {
	if v == nil {
		return 0, campaignflow.NewValidationError("invalid request body",
			campaignflow.FieldError{Field: "expectedVersion", Reason: "is required"})
	}
	return *v, nil
}

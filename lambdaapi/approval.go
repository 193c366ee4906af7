// Package lambdaapi serves the approval link as an AWS Lambda behind an
// API Gateway HTTP API. The tenant comes from the Lambda authorizer
// context, never from the request itself.
package lambdaapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/sicko7947/campaignflow"
	"github.com/sicko7947/campaignflow/approval"
	"github.com/sicko7947/campaignflow/httpapi"
)

// AuthorizerTenantKey is the authorizer context entry holding the tenant id
const AuthorizerTenantKey = "tenantId"

// Handler answers approval decisions arriving through API Gateway
type Handler struct {
	bridge *approval.Bridge
	logger zerolog.Logger
}

// NewHandler creates a new approval handler
func NewHandler(bridge *approval.Bridge, logger zerolog.Logger) *Handler {
	return &Handler{
		bridge: bridge,
		logger: logger,
	}
}

type decisionBody struct {
	approval.Payload
	CallbackID string `json:"callbackId"`
}

type errorBody struct {
	Error *campaignflow.Error `json:"error"`
}

// HandleApproval submits the decision carried by req.
// Failures are answered with an error response; the returned error is
// reserved for responses that cannot be encoded.
func (h *Handler) HandleApproval(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	logger := h.logger.With().
		Str("request_id", req.RequestContext.RequestID).
		Str("route", req.RouteKey).
		Logger()

	var body decisionBody
	if err := decodeBody(req, &body); err != nil {
		return respondError(logger, err)
	}

	callbackID := req.QueryStringParameters["callbackId"]
	if callbackID == "" {
		callbackID = body.CallbackID
	}

	result, err := h.bridge.Submit(ctx, approval.Submission{
		TenantID:   tenantID(req),
		CampaignID: req.PathParameters["campaignId"],
		CallbackID: callbackID,
		Payload:    body.Payload,
	})
	if err != nil {
		return respondError(logger, err)
	}
	return respond(http.StatusOK, result)
}

func tenantID(req events.APIGatewayV2HTTPRequest) string {
	auth := req.RequestContext.Authorizer
	if auth == nil || auth.Lambda == nil {
		return ""
	}
	id, _ := auth.Lambda[AuthorizerTenantKey].(string)
	return id
}

func decodeBody(req events.APIGatewayV2HTTPRequest, out any) error {
	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return invalidBody()
		}
		raw = decoded
	}
	if len(raw) == 0 {
		return campaignflow.NewValidationError("invalid request body",
			campaignflow.FieldError{Field: "body", Reason: "is required"})
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalidBody()
	}
	return nil
}

func invalidBody() error {
	return campaignflow.NewValidationError("invalid request body",
		campaignflow.FieldError{Field: "body", Reason: "is not valid JSON for this operation"})
}

func respondError(logger zerolog.Logger, err error) (events.APIGatewayV2HTTPResponse, error) {
	e := campaignflow.AsError(err)
	status := httpapi.StatusCode(e)
	if status >= http.StatusInternalServerError {
		logger.Error().
			Err(err).
			Bool("retryable", e.Retryable).
			Msg("Approval request failed")
	}
	return respond(status, errorBody{Error: e})
}

func respond(status int, body any) (events.APIGatewayV2HTTPResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}, nil
}

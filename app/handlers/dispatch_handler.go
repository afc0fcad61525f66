// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/simurgh-io/simurgh/app/dto"
	businessflow "github.com/simurgh-io/simurgh/business_flow"
	"github.com/simurgh-io/simurgh/utils"
)

// DispatchHandlerInterface defines the contract for campaign dispatch handlers
type DispatchHandlerInterface interface {
	DispatchCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ReportProgress(c fiber.Ctx) error
}

// DispatchHandler handles campaign dispatch HTTP requests
type DispatchHandler struct {
	dispatchFlow businessflow.DispatchFlow
	validator    *validator.Validate
}

func (h *DispatchHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *DispatchHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatchFlow businessflow.DispatchFlow) *DispatchHandler {
	return &DispatchHandler{
		dispatchFlow: dispatchFlow,
		validator:    validator.New(),
	}
}

// DispatchCampaign handles the campaign dispatch process
// @Summary Dispatch Campaign
// @Description Create a campaign and enqueue one dispatch job per contact
// @Tags Dispatch
// @Accept json
// @Produce json
// @Param request body dto.DispatchCampaignRequest true "Campaign dispatch data"
// @Success 202 {object} dto.APIResponse{data=dto.DispatchCampaignResponse} "Campaign dispatched"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 503 {object} dto.APIResponse "Instance pool exhausted or message broker unavailable"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/dispatch [post]
func (h *DispatchHandler) DispatchCampaign(c fiber.Ctx) error {
	var req dto.DispatchCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	// Get client information
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.dispatchFlow.DispatchCampaign(h.createRequestContext(c, "/api/v1/campaigns/dispatch"), &req, metadata)
	if err != nil {
		// Handle specific business errors
		if businessflow.IsQuotaExceeded(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "All instances exhausted their daily quota", "QUOTA_EXCEEDED", nil)
		}
		if businessflow.IsNoInstanceAvailable(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "No eligible instance available", "NO_INSTANCE_AVAILABLE", nil)
		}
		if businessflow.IsBrokerUnavailable(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Message broker unavailable", "BROKER_UNAVAILABLE", nil)
		}
		if businessflow.IsTooManyContacts(err) || businessflow.IsNoContactsProvided(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact list", "INVALID_CONTACTS", nil)
		}

		log.Println("Campaign dispatch failed", err)
		// Handle generic business errors
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign dispatch failed", "CAMPAIGN_DISPATCH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusAccepted, "Campaign dispatched successfully", result)
}

// GetCampaign returns the current state of a campaign
// @Summary Get Campaign
// @Description Return the read model for one campaign
// @Tags Dispatch
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignDTO} "Campaign state"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{uuid} [get]
func (h *DispatchHandler) GetCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}
	if _, err := utils.ParseUUID(campaignUUID); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is invalid", "INVALID_CAMPAIGN_UUID", nil)
	}

	result, err := h.dispatchFlow.GetCampaign(h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID), campaignUUID)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		log.Println("Campaign lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign lookup failed", "CAMPAIGN_LOOKUP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// ReportProgress applies a worker progress callback to a campaign
// @Summary Report Campaign Progress
// @Description Apply processed/failed deltas reported by a dispatch worker
// @Tags Dispatch
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.CampaignProgressRequest true "Progress deltas"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignDTO} "Updated campaign state"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Campaign already terminal"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{uuid}/progress [post]
func (h *DispatchHandler) ReportProgress(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.CampaignProgressRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.dispatchFlow.ReportProgress(h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID+"/progress"), campaignUUID, &req)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsCampaignTerminal(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign already completed or failed", "CAMPAIGN_TERMINAL", nil)
		}
		log.Println("Campaign progress update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign progress update failed", "PROGRESS_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign progress recorded", result)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *DispatchHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, utils.DispatchRequestTimeout)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *DispatchHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	// Add request-scoped values for observability
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel) // Store cancel function for cleanup

	return ctx
}

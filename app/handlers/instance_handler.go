// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/simurgh-io/simurgh/app/dto"
	businessflow "github.com/simurgh-io/simurgh/business_flow"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
)

// InstanceHandlerInterface defines the contract for instance pool handlers
type InstanceHandlerInterface interface {
	ProvisionInstance(c fiber.Ctx) error
	ListInstances(c fiber.Ctx) error
	GetInstance(c fiber.Ctx) error
	UpdateInstance(c fiber.Ctx) error
	DeactivateInstance(c fiber.Ctx) error
	SetInstanceStatus(c fiber.Ctx) error
	ReportSendOutcome(c fiber.Ctx) error
}

// InstanceHandler handles instance pool HTTP requests
type InstanceHandler struct {
	poolFlow     businessflow.InstancePoolFlow
	balancerFlow businessflow.InstanceBalancerFlow
	validator    *validator.Validate
}

func (h *InstanceHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *InstanceHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewInstanceHandler creates a new instance handler
func NewInstanceHandler(poolFlow businessflow.InstancePoolFlow, balancerFlow businessflow.InstanceBalancerFlow) *InstanceHandler {
	return &InstanceHandler{
		poolFlow:     poolFlow,
		balancerFlow: balancerFlow,
		validator:    validator.New(),
	}
}

// ProvisionInstance registers a new instance on the least-loaded provider
// @Summary Provision Instance
// @Description Create a new sending instance bound to the least-loaded active provider
// @Tags Instances
// @Accept json
// @Produce json
// @Param request body dto.ProvisionInstanceRequest true "Instance data"
// @Success 201 {object} dto.APIResponse{data=dto.ProvisionInstanceResponse} "Instance provisioned"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Name taken or no provider available"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/instances [post]
func (h *InstanceHandler) ProvisionInstance(c fiber.Ctx) error {
	var req dto.ProvisionInstanceRequest
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

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.poolFlow.ProvisionInstance(h.createRequestContext(c, "/api/v1/admin/instances"), &req, metadata)
	if err != nil {
		if businessflow.IsNoProviderAvailable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "No active gateway provider available", "NO_PROVIDER_AVAILABLE", nil)
		}
		if businessflow.IsInstanceNameTaken(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Instance name already in use", "INSTANCE_NAME_TAKEN", nil)
		}
		log.Println("Instance provisioning failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance provisioning failed", "INSTANCE_PROVISION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Instance provisioned successfully", result)
}

// ListInstances returns a page of the instance pool
// @Summary List Instances
// @Description List instances with optional status and activation filters
// @Tags Instances
// @Produce json
// @Param status query string false "Filter by status (ok, degraded, unreachable)"
// @Param active query bool false "Filter by activation"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.APIResponse{data=dto.ListInstancesResponse} "Instance pool"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/instances [get]
func (h *InstanceHandler) ListInstances(c fiber.Ctx) error {
	var filter models.InstanceFilter
	if status := c.Query("status"); status != "" {
		parsed := models.InstanceStatus(status)
		if !parsed.Valid() {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Unknown instance status", "INVALID_STATUS", nil)
		}
		filter.Status = &parsed
	}
	if active := c.Query("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "active must be a boolean", "INVALID_FILTER", nil)
		}
		filter.IsActive = &parsed
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	result, err := h.poolFlow.ListInstances(h.createRequestContext(c, "/api/v1/admin/instances"), filter, limit, offset)
	if err != nil {
		log.Println("Instance listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance listing failed", "INSTANCE_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Instances retrieved successfully", result)
}

// GetInstance returns one pool member
// @Summary Get Instance
// @Description Return the read model for one instance
// @Tags Instances
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Success 200 {object} dto.APIResponse{data=dto.InstanceDTO} "Instance state"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/instances/{uuid} [get]
func (h *InstanceHandler) GetInstance(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	result, err := h.poolFlow.GetInstance(h.createRequestContext(c, "/api/v1/admin/instances/"+instanceUUID), instanceUUID)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}
		log.Println("Instance lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance lookup failed", "INSTANCE_LOOKUP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Instance retrieved successfully", result)
}

// UpdateInstance applies partial changes to an instance
// @Summary Update Instance
// @Description Update an instance's name, phone number, daily limit, or activation
// @Tags Instances
// @Accept json
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Param request body dto.UpdateInstanceRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.InstanceDTO} "Updated instance"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/instances/{uuid} [patch]
func (h *InstanceHandler) UpdateInstance(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	var req dto.UpdateInstanceRequest
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

	result, err := h.poolFlow.UpdateInstance(h.createRequestContext(c, "/api/v1/admin/instances/"+instanceUUID), instanceUUID, &req)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}
		log.Println("Instance update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance update failed", "INSTANCE_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Instance updated successfully", result)
}

// DeactivateInstance removes an instance from scheduling
// @Summary Deactivate Instance
// @Description Soft-remove an instance from the scheduling pool
// @Tags Instances
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Success 200 {object} dto.APIResponse "Instance deactivated"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/instances/{uuid} [delete]
func (h *InstanceHandler) DeactivateInstance(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	err := h.poolFlow.DeactivateInstance(h.createRequestContext(c, "/api/v1/admin/instances/"+instanceUUID), instanceUUID)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}
		log.Println("Instance deactivation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance deactivation failed", "INSTANCE_DEACTIVATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Instance deactivated successfully", nil)
}

// SetInstanceStatus records a health transition for an instance
// @Summary Set Instance Status
// @Description Record an instance health transition reported by a worker or probe
// @Tags Instances
// @Accept json
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Param request body dto.SetInstanceStatusRequest true "New status"
// @Success 200 {object} dto.APIResponse{data=dto.InstanceDTO} "Updated instance"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/instances/{uuid}/status [put]
func (h *InstanceHandler) SetInstanceStatus(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	var req dto.SetInstanceStatusRequest
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

	result, err := h.poolFlow.SetInstanceStatus(h.createRequestContext(c, "/api/v1/admin/instances/"+instanceUUID+"/status"), instanceUUID, &req)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}
		log.Println("Instance status update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance status update failed", "INSTANCE_STATUS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Instance status updated", result)
}

// ReportSendOutcome records a worker's gateway call result against an instance
// @Summary Report Send Outcome
// @Description Record the result of one gateway call so rate limits feed the instance cooldown
// @Tags Instances
// @Accept json
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Param request body dto.SendOutcomeRequest true "Call result"
// @Success 200 {object} dto.APIResponse{data=dto.SendOutcomeResponse} "Outcome recorded"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/instances/{uuid}/outcome [post]
func (h *InstanceHandler) ReportSendOutcome(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	var req dto.SendOutcomeRequest
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

	result, err := h.balancerFlow.ReportSendOutcome(h.createRequestContext(c, "/api/v1/instances/"+instanceUUID+"/outcome"), instanceUUID, &req)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}
		log.Println("Send outcome recording failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Send outcome recording failed", "OUTCOME_RECORD_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Send outcome recorded", result)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *InstanceHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}

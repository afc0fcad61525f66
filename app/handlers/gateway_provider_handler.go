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
	"github.com/simurgh-io/simurgh/utils"
)

// GatewayProviderHandlerInterface defines the contract for provider registry handlers
type GatewayProviderHandlerInterface interface {
	CreateProvider(c fiber.Ctx) error
	ListProviders(c fiber.Ctx) error
	GetProvider(c fiber.Ctx) error
	SetProviderActive(c fiber.Ctx) error
	RotateProviderKey(c fiber.Ctx) error
}

// GatewayProviderHandler handles provider registry HTTP requests
type GatewayProviderHandler struct {
	registryFlow businessflow.GatewayRegistryFlow
	validator    *validator.Validate
}

func (h *GatewayProviderHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *GatewayProviderHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewGatewayProviderHandler creates a new provider registry handler
func NewGatewayProviderHandler(registryFlow businessflow.GatewayRegistryFlow) *GatewayProviderHandler {
	return &GatewayProviderHandler{
		registryFlow: registryFlow,
		validator:    validator.New(),
	}
}

// CreateProvider registers a new upstream gateway provider
// @Summary Create Provider
// @Description Register an upstream gateway provider
// @Tags Providers
// @Accept json
// @Produce json
// @Param request body dto.CreateProviderRequest true "Provider data"
// @Success 201 {object} dto.APIResponse{data=dto.ProviderDTO} "Provider created"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Provider name taken"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/providers [post]
func (h *GatewayProviderHandler) CreateProvider(c fiber.Ctx) error {
	var req dto.CreateProviderRequest
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

	result, err := h.registryFlow.CreateProvider(h.createRequestContext(c, "/api/v1/admin/providers"), &req, metadata)
	if err != nil {
		if businessflow.IsProviderNameTaken(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Provider name already in use", "PROVIDER_NAME_TAKEN", nil)
		}
		log.Println("Provider creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Provider creation failed", "PROVIDER_CREATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Provider created successfully", result)
}

// ListProviders returns the provider registry
// @Summary List Providers
// @Description List gateway providers with active instance counts
// @Tags Providers
// @Produce json
// @Param active query bool false "Only active providers"
// @Success 200 {object} dto.APIResponse{data=dto.ListProvidersResponse} "Provider registry"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/providers [get]
func (h *GatewayProviderHandler) ListProviders(c fiber.Ctx) error {
	activeOnly := false
	if active := c.Query("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "active must be a boolean", "INVALID_FILTER", nil)
		}
		activeOnly = parsed
	}

	result, err := h.registryFlow.ListProviders(h.createRequestContext(c, "/api/v1/admin/providers"), activeOnly)
	if err != nil {
		log.Println("Provider listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Provider listing failed", "PROVIDER_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Providers retrieved successfully", result)
}

// GetProvider returns one registry entry
// @Summary Get Provider
// @Description Return the read model for one provider
// @Tags Providers
// @Produce json
// @Param uuid path string true "Provider UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ProviderDTO} "Provider state"
// @Failure 404 {object} dto.APIResponse "Provider not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/providers/{uuid} [get]
func (h *GatewayProviderHandler) GetProvider(c fiber.Ctx) error {
	providerUUID := c.Params("uuid")
	if providerUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Provider UUID is required", "MISSING_PROVIDER_UUID", nil)
	}

	result, err := h.registryFlow.GetProvider(h.createRequestContext(c, "/api/v1/admin/providers/"+providerUUID), providerUUID)
	if err != nil {
		if businessflow.IsProviderNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Provider not found", "PROVIDER_NOT_FOUND", nil)
		}
		log.Println("Provider lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Provider lookup failed", "PROVIDER_LOOKUP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Provider retrieved successfully", result)
}

// SetProviderActive toggles a provider in or out of the selection pool
// @Summary Set Provider Active
// @Description Toggle provider activation for new instance provisioning
// @Tags Providers
// @Accept json
// @Produce json
// @Param uuid path string true "Provider UUID"
// @Param request body dto.SetProviderActiveRequest true "Activation flag"
// @Success 200 {object} dto.APIResponse{data=dto.ProviderDTO} "Updated provider"
// @Failure 404 {object} dto.APIResponse "Provider not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/providers/{uuid}/active [put]
func (h *GatewayProviderHandler) SetProviderActive(c fiber.Ctx) error {
	providerUUID := c.Params("uuid")
	if providerUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Provider UUID is required", "MISSING_PROVIDER_UUID", nil)
	}

	var req dto.SetProviderActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	result, err := h.registryFlow.SetProviderActive(h.createRequestContext(c, "/api/v1/admin/providers/"+providerUUID+"/active"), providerUUID, req.IsActive)
	if err != nil {
		if businessflow.IsProviderNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Provider not found", "PROVIDER_NOT_FOUND", nil)
		}
		log.Println("Provider toggle failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Provider toggle failed", "PROVIDER_TOGGLE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Provider updated successfully", result)
}

// RotateProviderKey replaces the provider credential
// @Summary Rotate Provider Key
// @Description Replace the stored API key of a provider
// @Tags Providers
// @Accept json
// @Produce json
// @Param uuid path string true "Provider UUID"
// @Param request body dto.RotateProviderKeyRequest true "New API key"
// @Success 200 {object} dto.APIResponse "Key rotated"
// @Failure 404 {object} dto.APIResponse "Provider not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/providers/{uuid}/key [put]
func (h *GatewayProviderHandler) RotateProviderKey(c fiber.Ctx) error {
	providerUUID := c.Params("uuid")
	if providerUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Provider UUID is required", "MISSING_PROVIDER_UUID", nil)
	}

	var req dto.RotateProviderKeyRequest
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

	err := h.registryFlow.RotateProviderKey(h.createRequestContext(c, "/api/v1/admin/providers/"+providerUUID+"/key"), providerUUID, &req)
	if err != nil {
		if businessflow.IsProviderNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Provider not found", "PROVIDER_NOT_FOUND", nil)
		}
		log.Println("Provider key rotation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Provider key rotation failed", "PROVIDER_KEY_ROTATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Provider key rotated successfully", nil)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *GatewayProviderHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}

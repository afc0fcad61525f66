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

// AdminHandlerInterface defines the contract for the operator control surface
type AdminHandlerInterface interface {
	Login(c fiber.Ctx) error
	GetResetStatus(c fiber.Ctx) error
	TriggerReset(c fiber.Ctx) error
}

// AdminHandler handles operator authentication and the reset control endpoints
type AdminHandler struct {
	authFlow  businessflow.AdminAuthFlow
	resetFlow businessflow.DailyResetFlow
	timezone  string
	validator *validator.Validate
}

func (h *AdminHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AdminHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(authFlow businessflow.AdminAuthFlow, resetFlow businessflow.DailyResetFlow, timezone string) *AdminHandler {
	return &AdminHandler{
		authFlow:  authFlow,
		resetFlow: resetFlow,
		timezone:  timezone,
		validator: validator.New(),
	}
}

// Login authenticates the operator and issues admin tokens
// @Summary Admin Login
// @Description Authenticate the operator account and issue JWT tokens
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body dto.AdminLoginRequest true "Credentials"
// @Success 200 {object} dto.APIResponse{data=dto.AdminLoginResponse} "Tokens issued"
// @Failure 401 {object} dto.APIResponse "Invalid credentials"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/login [post]
func (h *AdminHandler) Login(c fiber.Ctx) error {
	var req dto.AdminLoginRequest
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

	result, err := h.authFlow.Login(h.createRequestContext(c, "/api/v1/admin/login"), &req, metadata)
	if err != nil {
		if businessflow.IsAdminNotFound(err) || businessflow.IsIncorrectPassword(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS", nil)
		}
		log.Println("Admin login failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Admin login failed", "ADMIN_LOGIN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", result)
}

// GetResetStatus reports the daily reset state
// @Summary Get Reset Status
// @Description Report whether a reset is due, the last boundary, and the next reset time
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ResetStatusResponse} "Reset state"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/reset [get]
func (h *AdminHandler) GetResetStatus(c fiber.Ctx) error {
	ctx := h.createRequestContext(c, "/api/v1/admin/reset")

	due, err := h.resetFlow.ShouldReset(ctx)
	if err != nil {
		log.Println("Reset status check failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Reset status check failed", "RESET_STATUS_FAILED", nil)
	}

	lastBoundary, err := h.resetFlow.LastResetBoundary(ctx)
	if err != nil {
		log.Println("Reset boundary lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Reset status check failed", "RESET_STATUS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Reset status retrieved", dto.ResetStatusResponse{
		ResetDue:      due,
		NextResetTime: h.resetFlow.NextResetTime().Format(time.RFC3339),
		LastBoundary:  lastBoundary,
		Timezone:      h.timezone,
	})
}

// TriggerReset runs the daily counter sweep on demand
// @Summary Trigger Reset
// @Description Run the daily counter sweep immediately
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ResetResultResponse} "Sweep completed"
// @Failure 409 {object} dto.APIResponse "Reset already running elsewhere"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/reset [post]
func (h *AdminHandler) TriggerReset(c fiber.Ctx) error {
	affected, err := h.resetFlow.ResetDailyCounters(h.createRequestContext(c, "/api/v1/admin/reset"))
	if err != nil {
		if businessflow.IsResetLockHeld(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Reset already running elsewhere", "RESET_LOCK_HELD", nil)
		}
		log.Println("Manual reset failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Manual reset failed", "RESET_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Daily counters reset", dto.ResetResultResponse{
		InstancesReset: affected,
		ResetAt:        utils.UTCNow().Format(time.RFC3339),
	})
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *AdminHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}

// Package businessflow contains the core business logic and use cases for the scheduling workflows
package businessflow

import (
	"context"
	"time"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthFlow authenticates the single configured operator account
type AdminAuthFlow interface {
	Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error)
}

// AdminAuthFlowImpl verifies credentials from configuration. There is no
// admin table; the control surface has exactly one operator identity.
type AdminAuthFlowImpl struct {
	username       string
	passwordHash   string
	tokenService   services.TokenService
	accessTokenTTL time.Duration
}

func NewAdminAuthFlow(username, passwordHash string, tokenService services.TokenService, accessTokenTTL time.Duration) AdminAuthFlow {
	return &AdminAuthFlowImpl{
		username:       username,
		passwordHash:   passwordHash,
		tokenService:   tokenService,
		accessTokenTTL: accessTokenTTL,
	}
}

func (af *AdminAuthFlowImpl) Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error) {
	if req == nil || len(req.Username) == 0 || len(req.Password) == 0 {
		return nil, NewBusinessError("ADMIN_LOGIN_VALIDATION_FAILED", "Admin login validation failed", ErrIncorrectPassword)
	}

	if req.Username != af.username || af.passwordHash == "" {
		return nil, NewBusinessError("ADMIN_NOT_FOUND", "Admin not found", ErrAdminNotFound)
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(af.passwordHash), []byte(req.Password)); err != nil {
		return nil, NewBusinessError("ADMIN_INCORRECT_PASSWORD", "Incorrect password", ErrIncorrectPassword)
	}

	// Generate admin tokens
	accessToken, refreshToken, err := af.tokenService.GenerateAdminTokens(1)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}

	return &dto.AdminLoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(af.accessTokenTTL.Seconds()),
	}, nil
}

package dto

// AdminLoginRequest authenticates the operator control surface
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminLoginResponse carries the bearer tokens for admin endpoints
type AdminLoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// ResetStatusResponse reports the daily reset state
type ResetStatusResponse struct {
	ResetDue      bool   `json:"reset_due"`
	NextResetTime string `json:"next_reset_time"`
	LastBoundary  string `json:"last_boundary,omitempty"`
	Timezone      string `json:"timezone"`
}

// ResetResultResponse reports one executed sweep
type ResetResultResponse struct {
	InstancesReset int64  `json:"instances_reset"`
	ResetAt        string `json:"reset_at"`
}

package dto

// CreateProviderRequest registers an upstream gateway provider
type CreateProviderRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=255"`
	EndpointURL string `json:"endpoint_url" validate:"required,url"`
	APIKey      string `json:"api_key" validate:"required,min=8"`
}

// SetProviderActiveRequest toggles provider activation
type SetProviderActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// RotateProviderKeyRequest replaces the provider credential
type RotateProviderKeyRequest struct {
	APIKey string `json:"api_key" validate:"required,min=8"`
}

// ProviderDTO is the read model for one gateway provider
type ProviderDTO struct {
	UUID            string `json:"uuid"`
	Name            string `json:"name"`
	EndpointURL     string `json:"endpoint_url"`
	IsActive        bool   `json:"is_active"`
	ActiveInstances int64  `json:"active_instances"`
	CreatedAt       string `json:"created_at"`
}

// ListProvidersResponse wraps the registry listing
type ListProvidersResponse struct {
	Items []ProviderDTO `json:"items"`
}

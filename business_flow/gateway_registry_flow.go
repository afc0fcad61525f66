package businessflow

import (
	"context"
	"net/url"
	"time"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
	"github.com/simurgh-io/simurgh/utils"
)

// GatewayRegistryFlow manages the set of upstream gateway providers
type GatewayRegistryFlow interface {
	CreateProvider(ctx context.Context, req *dto.CreateProviderRequest, metadata *ClientMetadata) (*dto.ProviderDTO, error)
	ListProviders(ctx context.Context, activeOnly bool) (*dto.ListProvidersResponse, error)
	GetProvider(ctx context.Context, providerUUID string) (*dto.ProviderDTO, error)
	SetProviderActive(ctx context.Context, providerUUID string, active bool) (*dto.ProviderDTO, error)
	RotateProviderKey(ctx context.Context, providerUUID string, req *dto.RotateProviderKeyRequest) error
}

// GatewayRegistryFlowImpl implements the provider registry flow
type GatewayRegistryFlowImpl struct {
	providerRepo repository.GatewayProviderRepository
	instanceRepo repository.InstanceRepository
}

// NewGatewayRegistryFlow creates a new gateway registry flow instance
func NewGatewayRegistryFlow(
	providerRepo repository.GatewayProviderRepository,
	instanceRepo repository.InstanceRepository,
) GatewayRegistryFlow {
	return &GatewayRegistryFlowImpl{
		providerRepo: providerRepo,
		instanceRepo: instanceRepo,
	}
}

// CreateProvider registers a provider after validating its endpoint URL.
// Provider names are unique across the registry.
func (s *GatewayRegistryFlowImpl) CreateProvider(ctx context.Context, req *dto.CreateProviderRequest, metadata *ClientMetadata) (*dto.ProviderDTO, error) {
	if req.Name == "" {
		return nil, NewBusinessError("NAME_REQUIRED", "provider name is required", ErrProviderNameRequired)
	}
	parsed, err := url.Parse(req.EndpointURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, NewBusinessError("ENDPOINT_INVALID", "endpoint URL must be absolute", ErrProviderEndpointInvalid)
	}

	existing, err := s.providerRepo.ByName(ctx, req.Name)
	if err != nil {
		return nil, NewBusinessError("PROVIDER_LOOKUP_FAILED", "failed to check provider name", err)
	}
	if existing != nil {
		return nil, NewBusinessError("PROVIDER_NAME_TAKEN", "a provider with this name already exists", ErrProviderNameTaken)
	}

	provider := &models.GatewayProvider{
		Name:        req.Name,
		EndpointURL: req.EndpointURL,
		APIKey:      req.APIKey,
		IsActive:    utils.ToPtr(true),
	}
	if err := s.providerRepo.Save(ctx, provider); err != nil {
		return nil, NewBusinessError("PROVIDER_CREATE_FAILED", "failed to persist the provider", err)
	}
	return toProviderDTO(provider, 0), nil
}

// ListProviders returns the registry with active instance counts attached
func (s *GatewayRegistryFlowImpl) ListProviders(ctx context.Context, activeOnly bool) (*dto.ListProvidersResponse, error) {
	var providers []*models.GatewayProvider
	var err error
	if activeOnly {
		providers, err = s.providerRepo.ListActive(ctx)
	} else {
		providers, err = s.providerRepo.ByFilter(ctx, models.GatewayProviderFilter{}, "created_at ASC", 0, 0)
	}
	if err != nil {
		return nil, NewBusinessError("PROVIDER_LIST_FAILED", "failed to list providers", err)
	}

	counts, err := s.instanceRepo.CountActiveByProvider(ctx)
	if err != nil {
		return nil, NewBusinessError("INSTANCE_COUNT_FAILED", "failed to count instances per provider", err)
	}

	resp := &dto.ListProvidersResponse{Items: make([]dto.ProviderDTO, 0, len(providers))}
	for _, provider := range providers {
		resp.Items = append(resp.Items, *toProviderDTO(provider, counts[provider.ID]))
	}
	return resp, nil
}

// GetProvider returns one registry entry
func (s *GatewayRegistryFlowImpl) GetProvider(ctx context.Context, providerUUID string) (*dto.ProviderDTO, error) {
	provider, err := s.mustProvider(ctx, providerUUID)
	if err != nil {
		return nil, err
	}
	counts, err := s.instanceRepo.CountActiveByProvider(ctx)
	if err != nil {
		return nil, NewBusinessError("INSTANCE_COUNT_FAILED", "failed to count instances per provider", err)
	}
	return toProviderDTO(provider, counts[provider.ID]), nil
}

// SetProviderActive toggles a provider in or out of the selection pool.
// Existing instances keep running; only new provisioning is affected.
func (s *GatewayRegistryFlowImpl) SetProviderActive(ctx context.Context, providerUUID string, active bool) (*dto.ProviderDTO, error) {
	provider, err := s.mustProvider(ctx, providerUUID)
	if err != nil {
		return nil, err
	}
	if err := s.providerRepo.SetActive(ctx, provider.ID, active); err != nil {
		return nil, NewBusinessError("PROVIDER_UPDATE_FAILED", "failed to toggle provider", err)
	}
	provider.IsActive = utils.ToPtr(active)
	return toProviderDTO(provider, 0), nil
}

// RotateProviderKey replaces the stored credential. The old key stops being
// used on the next gateway call.
func (s *GatewayRegistryFlowImpl) RotateProviderKey(ctx context.Context, providerUUID string, req *dto.RotateProviderKeyRequest) error {
	provider, err := s.mustProvider(ctx, providerUUID)
	if err != nil {
		return err
	}
	if err := s.providerRepo.RotateAPIKey(ctx, provider.ID, req.APIKey); err != nil {
		return NewBusinessError("PROVIDER_UPDATE_FAILED", "failed to rotate provider key", err)
	}
	return nil
}

func (s *GatewayRegistryFlowImpl) mustProvider(ctx context.Context, providerUUID string) (*models.GatewayProvider, error) {
	provider, err := s.providerRepo.ByUUID(ctx, providerUUID)
	if err != nil {
		return nil, NewBusinessError("PROVIDER_LOOKUP_FAILED", "failed to look up provider", err)
	}
	if provider == nil {
		return nil, NewBusinessError("PROVIDER_NOT_FOUND", "gateway provider not found", ErrProviderNotFound)
	}
	return provider, nil
}

func toProviderDTO(p *models.GatewayProvider, activeInstances int64) *dto.ProviderDTO {
	return &dto.ProviderDTO{
		UUID:            p.UUID.String(),
		Name:            p.Name,
		EndpointURL:     p.EndpointURL,
		IsActive:        utils.IsTrue(p.IsActive),
		ActiveInstances: activeInstances,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}

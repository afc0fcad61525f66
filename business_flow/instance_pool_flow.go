package businessflow

import (
	"context"
	"time"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
	"github.com/simurgh-io/simurgh/utils"
)

// InstancePoolFlow manages the lifecycle of sending instances
type InstancePoolFlow interface {
	ProvisionInstance(ctx context.Context, req *dto.ProvisionInstanceRequest, metadata *ClientMetadata) (*dto.ProvisionInstanceResponse, error)
	ListInstances(ctx context.Context, filter models.InstanceFilter, limit, offset int) (*dto.ListInstancesResponse, error)
	GetInstance(ctx context.Context, instanceUUID string) (*dto.InstanceDTO, error)
	UpdateInstance(ctx context.Context, instanceUUID string, req *dto.UpdateInstanceRequest) (*dto.InstanceDTO, error)
	DeactivateInstance(ctx context.Context, instanceUUID string) error
	SetInstanceStatus(ctx context.Context, instanceUUID string, req *dto.SetInstanceStatusRequest) (*dto.InstanceDTO, error)
}

// InstancePoolFlowImpl implements the instance pool flow
type InstancePoolFlowImpl struct {
	instanceRepo  repository.InstanceRepository
	providerRepo  repository.GatewayProviderRepository
	selector      GatewaySelectorFlow
	gatewayClient services.GatewayClient
}

// NewInstancePoolFlow creates a new instance pool flow instance
func NewInstancePoolFlow(
	instanceRepo repository.InstanceRepository,
	providerRepo repository.GatewayProviderRepository,
	selector GatewaySelectorFlow,
	gatewayClient services.GatewayClient,
) InstancePoolFlow {
	return &InstancePoolFlowImpl{
		instanceRepo:  instanceRepo,
		providerRepo:  providerRepo,
		selector:      selector,
		gatewayClient: gatewayClient,
	}
}

// ProvisionInstance registers a new instance on the least-loaded active
// provider and stores the provider-side reference
func (s *InstancePoolFlowImpl) ProvisionInstance(ctx context.Context, req *dto.ProvisionInstanceRequest, metadata *ClientMetadata) (*dto.ProvisionInstanceResponse, error) {
	if req.Name == "" {
		return nil, NewBusinessError("NAME_REQUIRED", "instance name is required", ErrInstanceNameRequired)
	}

	existing, err := s.instanceRepo.Exists(ctx, models.InstanceFilter{Name: &req.Name})
	if err != nil {
		return nil, NewBusinessError("INSTANCE_LOOKUP_FAILED", "failed to check instance name", err)
	}
	if existing {
		return nil, NewBusinessError("INSTANCE_NAME_TAKEN", "an instance with this name already exists", ErrInstanceNameTaken)
	}

	provider, err := s.selector.SelectProviderForNewInstance(ctx)
	if err != nil {
		return nil, err
	}

	provisioned, err := s.gatewayClient.ProvisionInstance(ctx, req.Name)
	if err != nil {
		return nil, NewBusinessError("GATEWAY_PROVISION_FAILED", "gateway refused to provision the instance", err)
	}

	instance := &models.Instance{
		ProviderID:  provider.ID,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		ExternalRef: &provisioned.ExternalRef,
		Status:      models.InstanceStatusOK,
		IsActive:    utils.ToPtr(true),
		DailyLimit:  req.DailyLimit,
	}
	if err := s.instanceRepo.Save(ctx, instance); err != nil {
		return nil, NewBusinessError("INSTANCE_CREATE_FAILED", "failed to persist the instance", err)
	}

	resp := &dto.ProvisionInstanceResponse{
		Instance: *toInstanceDTO(instance, provider),
		QRCode:   provisioned.QRCode,
	}
	return resp, nil
}

// ListInstances returns a page of the pool
func (s *InstancePoolFlowImpl) ListInstances(ctx context.Context, filter models.InstanceFilter, limit, offset int) (*dto.ListInstancesResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	instances, err := s.instanceRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("INSTANCE_LIST_FAILED", "failed to list instances", err)
	}
	total, err := s.instanceRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("INSTANCE_COUNT_FAILED", "failed to count instances", err)
	}

	resp := &dto.ListInstancesResponse{Total: total, Items: make([]dto.InstanceDTO, 0, len(instances))}
	for _, instance := range instances {
		resp.Items = append(resp.Items, *toInstanceDTO(instance, instance.Provider))
	}
	return resp, nil
}

// GetInstance returns one pool member
func (s *InstancePoolFlowImpl) GetInstance(ctx context.Context, instanceUUID string) (*dto.InstanceDTO, error) {
	instance, err := s.mustInstance(ctx, instanceUUID)
	if err != nil {
		return nil, err
	}
	return toInstanceDTO(instance, instance.Provider), nil
}

// UpdateInstance applies partial changes to limits, identity and activation
func (s *InstancePoolFlowImpl) UpdateInstance(ctx context.Context, instanceUUID string, req *dto.UpdateInstanceRequest) (*dto.InstanceDTO, error) {
	instance, err := s.mustInstance(ctx, instanceUUID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		instance.Name = *req.Name
	}
	if req.PhoneNumber != nil {
		instance.PhoneNumber = req.PhoneNumber
	}
	if req.DailyLimit != nil {
		instance.DailyLimit = req.DailyLimit
	}
	if req.IsActive != nil {
		instance.IsActive = req.IsActive
	}
	instance.UpdatedAt = utils.UTCNow()

	if err := s.instanceRepo.Update(ctx, *instance); err != nil {
		return nil, NewBusinessError("INSTANCE_UPDATE_FAILED", "failed to update the instance", err)
	}
	return toInstanceDTO(instance, instance.Provider), nil
}

// DeactivateInstance removes an instance from scheduling without deleting it
func (s *InstancePoolFlowImpl) DeactivateInstance(ctx context.Context, instanceUUID string) error {
	instance, err := s.mustInstance(ctx, instanceUUID)
	if err != nil {
		return err
	}
	if err := s.instanceRepo.SetActive(ctx, instance.ID, false); err != nil {
		return NewBusinessError("INSTANCE_UPDATE_FAILED", "failed to deactivate the instance", err)
	}
	return nil
}

// SetInstanceStatus records a health transition reported by a worker or probe
func (s *InstancePoolFlowImpl) SetInstanceStatus(ctx context.Context, instanceUUID string, req *dto.SetInstanceStatusRequest) (*dto.InstanceDTO, error) {
	status := models.InstanceStatus(req.Status)
	if !status.Valid() {
		return nil, NewBusinessError("INVALID_STATUS", "unknown instance status", ErrInvalidInstanceStatus)
	}

	instance, err := s.mustInstance(ctx, instanceUUID)
	if err != nil {
		return nil, err
	}
	if err := s.instanceRepo.SetStatus(ctx, instance.ID, status); err != nil {
		return nil, NewBusinessError("INSTANCE_UPDATE_FAILED", "failed to set instance status", err)
	}
	instance.Status = status
	return toInstanceDTO(instance, instance.Provider), nil
}

func (s *InstancePoolFlowImpl) mustInstance(ctx context.Context, instanceUUID string) (*models.Instance, error) {
	instance, err := s.instanceRepo.ByUUID(ctx, instanceUUID)
	if err != nil {
		return nil, NewBusinessError("INSTANCE_LOOKUP_FAILED", "failed to look up instance", err)
	}
	if instance == nil {
		return nil, NewBusinessError("INSTANCE_NOT_FOUND", "instance not found", ErrInstanceNotFound)
	}
	return instance, nil
}

func toInstanceDTO(i *models.Instance, provider *models.GatewayProvider) *dto.InstanceDTO {
	out := &dto.InstanceDTO{
		UUID:                i.UUID.String(),
		Name:                i.Name,
		PhoneNumber:         i.PhoneNumber,
		Status:              string(i.Status),
		IsActive:            utils.IsTrue(i.IsActive),
		DailyLimit:          i.DailyLimit,
		SentToday:           i.SentToday,
		ErrorToday:          i.ErrorToday,
		RateLimitCountToday: i.RateLimitCountToday,
	}
	if provider != nil {
		out.ProviderUUID = provider.UUID.String()
		out.ProviderName = provider.Name
	}
	if i.LastUsedAt != nil {
		out.LastUsedAt = utils.ToPtr(i.LastUsedAt.Format(time.RFC3339))
	}
	if i.CooldownUntil != nil {
		out.CooldownUntil = utils.ToPtr(i.CooldownUntil.Format(time.RFC3339))
	}
	return out
}

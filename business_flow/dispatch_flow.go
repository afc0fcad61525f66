package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
	"github.com/simurgh-io/simurgh/utils"
)

// DispatchFlow turns a contact list into a campaign plus a batch of broker jobs
type DispatchFlow interface {
	DispatchCampaign(ctx context.Context, req *dto.DispatchCampaignRequest, metadata *ClientMetadata) (*dto.DispatchCampaignResponse, error)
	ReportProgress(ctx context.Context, campaignUUID string, req *dto.CampaignProgressRequest) (*dto.CampaignDTO, error)
	GetCampaign(ctx context.Context, campaignUUID string) (*dto.CampaignDTO, error)
}

// DispatchFlowImpl implements the campaign dispatch flow
type DispatchFlowImpl struct {
	campaignRepo repository.CampaignRepository
	balancer     InstanceBalancerFlow
	producer     services.DispatchProducer
}

// NewDispatchFlow creates a new dispatch flow instance
func NewDispatchFlow(
	campaignRepo repository.CampaignRepository,
	balancer InstanceBalancerFlow,
	producer services.DispatchProducer,
) DispatchFlow {
	return &DispatchFlowImpl{
		campaignRepo: campaignRepo,
		balancer:     balancer,
		producer:     producer,
	}
}

func validateDispatchRequest(req *dto.DispatchCampaignRequest) error {
	if len(req.Contacts) == 0 {
		return NewBusinessError("NO_CONTACTS", "at least one contact is required", ErrNoContactsProvided)
	}
	if len(req.Contacts) > utils.MaxContactsPerDispatch {
		return NewBusinessError("TOO_MANY_CONTACTS",
			fmt.Sprintf("contact list exceeds the %d contact limit", utils.MaxContactsPerDispatch),
			ErrTooManyContacts)
	}

	kind := models.DispatchJobKind(req.Kind)
	switch kind {
	case models.DispatchJobSendMessage:
		if req.MessageBody == nil || *req.MessageBody == "" {
			return NewBusinessError("MESSAGE_REQUIRED", "message body is required for send_message campaigns", models.ErrJobMessageRequired)
		}
	case models.DispatchJobAddToGroup:
		if req.GroupID == nil || *req.GroupID == "" {
			return NewBusinessError("GROUP_REQUIRED", "group id is required for add_to_group campaigns", models.ErrJobGroupRequired)
		}
	default:
		return NewBusinessError("INVALID_KIND", "unknown dispatch kind", models.ErrInvalidJobKind)
	}

	if req.Strategy != "" && !models.AssignmentStrategy(req.Strategy).Valid() {
		return NewBusinessError("INVALID_STRATEGY", "unknown assignment strategy", ErrInvalidStrategy)
	}
	if req.DelayMaxSeconds > 0 && req.DelayMinSeconds > req.DelayMaxSeconds {
		return NewBusinessError("INVALID_DELAY", "delay_min_seconds exceeds delay_max_seconds", ErrInvalidStrategy)
	}
	return nil
}

// DispatchCampaign creates a campaign record, claims instance quota per the
// chosen strategy, and publishes one job per contact. Quota is consumed
// before the matching job is enqueued, so a broker failure can strand a
// claimed unit until the next daily reset. The reverse order would let
// workers receive jobs no instance has budget for.
func (s *DispatchFlowImpl) DispatchCampaign(ctx context.Context, req *dto.DispatchCampaignRequest, metadata *ClientMetadata) (*dto.DispatchCampaignResponse, error) {
	if err := validateDispatchRequest(req); err != nil {
		return nil, err
	}

	strategy := models.AssignmentStrategy(req.Strategy)
	if req.Strategy == "" {
		strategy = models.AssignmentPerJob
	}

	campaign := &models.Campaign{
		CustomerID:    req.CustomerID,
		Status:        models.CampaignStatusPending,
		Strategy:      strategy,
		TotalContacts: int64(len(req.Contacts)),
	}
	if err := s.campaignRepo.Save(ctx, campaign); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATE_FAILED", "failed to create campaign", err)
	}

	var delay *models.DelayConfig
	if req.DelayMaxSeconds > 0 {
		delay = &models.DelayConfig{MinSeconds: req.DelayMinSeconds, MaxSeconds: req.DelayMaxSeconds}
	}

	jobs := make([]*models.DispatchJob, 0, len(req.Contacts))
	var claimFailed int64
	now := utils.UTCNow()

	for _, contact := range req.Contacts {
		job := &models.DispatchJob{
			JobID:        uuid.New(),
			CampaignUUID: campaign.UUID,
			CustomerID:   req.CustomerID,
			Kind:         models.DispatchJobKind(req.Kind),
			ContactID:    contact.ContactID,
			PhoneNumber:  contact.PhoneNumber,
			MessageBody:  req.MessageBody,
			GroupID:      req.GroupID,
			GroupLabel:   req.GroupLabel,
			Delay:        delay,
			CreatedAt:    now,
		}

		if strategy == models.AssignmentPerJob {
			instance, err := s.balancer.SelectInstanceForDispatch(ctx)
			if err != nil {
				if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNoInstanceAvailable) {
					// Pool drained; everything not yet claimed fails now
					// rather than producing jobs no instance can serve.
					claimFailed = campaign.TotalContacts - int64(len(jobs))
					break
				}
				return nil, NewBusinessError("INSTANCE_CLAIM_FAILED", "failed to claim an instance", err)
			}
			job.InstanceUUID = &instance.UUID
		}

		jobs = append(jobs, job)
	}

	if len(jobs) == 0 {
		if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusFailed); err != nil {
			return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "failed to mark campaign failed", err)
		}
		return nil, NewBusinessError("QUOTA_EXCEEDED", "no instance could be claimed for any contact", ErrQuotaExceeded)
	}

	batch, err := s.producer.EnqueueBatch(jobs)
	if err != nil {
		if batch == nil || batch.Accepted == 0 {
			if updErr := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusFailed); updErr != nil {
				return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "failed to mark campaign failed", updErr)
			}
			return nil, NewBusinessError("BROKER_UNAVAILABLE", "failed to reach the message broker", errors.Join(ErrBrokerUnavailable, err))
		}
		// The broker died mid-batch. Jobs already published are durably
		// queued, so the campaign keeps running and the remainder is
		// recorded as failed contacts.
		batch.Failed = len(jobs) - batch.Accepted
	}

	dispatchJobsTotal.WithLabelValues("accepted").Add(float64(batch.Accepted))
	dispatchJobsTotal.WithLabelValues("failed").Add(float64(batch.Failed))

	failedJobs := int64(batch.Failed) + claimFailed
	if batch.Accepted == 0 {
		if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusFailed); err != nil {
			return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "failed to mark campaign failed", err)
		}
		return nil, NewBusinessError("ENQUEUE_FAILED", "no dispatch job could be enqueued", ErrEnqueueFailed)
	}

	if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusRunning); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "failed to mark campaign running", err)
	}
	if failedJobs > 0 {
		if _, err := s.campaignRepo.AddProgress(ctx, campaign.ID, 0, failedJobs); err != nil {
			return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "failed to record dispatch failures", err)
		}
	}

	return &dto.DispatchCampaignResponse{
		CampaignUUID:  campaign.UUID.String(),
		Status:        string(models.CampaignStatusRunning),
		TotalContacts: campaign.TotalContacts,
		EnqueuedJobs:  int64(batch.Accepted),
		FailedJobs:    failedJobs,
	}, nil
}

// ReportProgress applies a worker's processed/failed deltas and closes the
// campaign once every contact is accounted for
func (s *DispatchFlowImpl) ReportProgress(ctx context.Context, campaignUUID string, req *dto.CampaignProgressRequest) (*dto.CampaignDTO, error) {
	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "failed to look up campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "campaign not found", ErrCampaignNotFound)
	}
	if campaign.Status.IsTerminal() {
		return nil, NewBusinessError("CAMPAIGN_TERMINAL", "campaign already completed or failed", ErrCampaignTerminal)
	}
	if req.Processed == 0 && req.Failed == 0 {
		return toCampaignDTO(campaign), nil
	}

	updated, err := s.campaignRepo.AddProgress(ctx, campaign.ID, req.Processed, req.Failed)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "failed to record progress", err)
	}

	if updated.ProcessedContacts+updated.FailedContacts >= updated.TotalContacts &&
		updated.CanTransitionTo(models.CampaignStatusCompleted) {
		if err := s.campaignRepo.UpdateStatus(ctx, updated.ID, models.CampaignStatusCompleted); err != nil {
			return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "failed to mark campaign completed", err)
		}
		updated.Status = models.CampaignStatusCompleted
	}

	return toCampaignDTO(updated), nil
}

// GetCampaign returns the read model for one campaign
func (s *DispatchFlowImpl) GetCampaign(ctx context.Context, campaignUUID string) (*dto.CampaignDTO, error) {
	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "failed to look up campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "campaign not found", ErrCampaignNotFound)
	}
	return toCampaignDTO(campaign), nil
}

func toCampaignDTO(c *models.Campaign) *dto.CampaignDTO {
	return &dto.CampaignDTO{
		UUID:              c.UUID.String(),
		CustomerID:        c.CustomerID,
		Status:            string(c.Status),
		Strategy:          string(c.Strategy),
		TotalContacts:     c.TotalContacts,
		ProcessedContacts: c.ProcessedContacts,
		FailedContacts:    c.FailedContacts,
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
	}
}

package businessflow

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProducer records published jobs and simulates broker failures
type fakeProducer struct {
	mu        sync.Mutex
	published []*models.DispatchJob
	failEvery int   // every n-th job fails, 0 disables
	batchErr  error // returned by EnqueueBatch wholesale
	dieAfter  int   // broker becomes unreachable after n accepted jobs, 0 disables
}

func (p *fakeProducer) Enqueue(job *models.DispatchJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := job.Validate(); err != nil {
		return err
	}
	p.published = append(p.published, job)
	return nil
}

func (p *fakeProducer) EnqueueBatch(jobs []*models.DispatchJob) (*services.BatchResult, error) {
	if p.batchErr != nil {
		return nil, p.batchErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	result := &services.BatchResult{}
	for i, job := range jobs {
		if p.failEvery > 0 && (i+1)%p.failEvery == 0 {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("job %s: broker refused", job.JobID))
			continue
		}
		p.published = append(p.published, job)
		result.Accepted++
		if p.dieAfter > 0 && result.Accepted == p.dieAfter {
			return result, fmt.Errorf("%w: connection refused", services.ErrBrokerUnavailable)
		}
	}
	return result, nil
}

func (p *fakeProducer) Close() error { return nil }

func contacts(n int) []dto.DispatchContact {
	out := make([]dto.DispatchContact, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, dto.DispatchContact{
			ContactID:   uint(i + 1),
			PhoneNumber: fmt.Sprintf("+1555000%04d", i),
		})
	}
	return out
}

func sendRequest(n int) *dto.DispatchCampaignRequest {
	return &dto.DispatchCampaignRequest{
		CustomerID:  7,
		Kind:        string(models.DispatchJobSendMessage),
		MessageBody: utils.ToPtr("hello there"),
		Contacts:    contacts(n),
	}
}

func newDispatchFixture(t *testing.T, poolCapacity int64) (*fakeCampaignRepo, *fakeInstanceRepo, *fakeProducer, DispatchFlow) {
	t.Helper()
	campaignRepo := newFakeCampaignRepo()
	instanceRepo := newFakeInstanceRepo()
	if poolCapacity > 0 {
		instanceRepo.add(&models.Instance{Name: "pool-1", ProviderID: 1, DailyLimit: &poolCapacity})
	}
	producer := &fakeProducer{}
	flow := NewDispatchFlow(campaignRepo, NewInstanceBalancerFlow(instanceRepo), producer)
	return campaignRepo, instanceRepo, producer, flow
}

func TestDispatchCampaignValidation(t *testing.T) {
	ctx := context.Background()
	_, _, _, flow := newDispatchFixture(t, 100)
	meta := NewClientMetadata("127.0.0.1", "test-agent")

	t.Run("NoContacts", func(t *testing.T) {
		req := sendRequest(0)
		_, err := flow.DispatchCampaign(ctx, req, meta)
		assert.ErrorIs(t, err, ErrNoContactsProvided)
	})

	t.Run("MissingMessageBody", func(t *testing.T) {
		req := sendRequest(1)
		req.MessageBody = nil
		_, err := flow.DispatchCampaign(ctx, req, meta)
		assert.ErrorIs(t, err, models.ErrJobMessageRequired)
	})

	t.Run("MissingGroupID", func(t *testing.T) {
		req := sendRequest(1)
		req.Kind = string(models.DispatchJobAddToGroup)
		_, err := flow.DispatchCampaign(ctx, req, meta)
		assert.ErrorIs(t, err, models.ErrJobGroupRequired)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		req := sendRequest(1)
		req.Kind = "broadcast"
		_, err := flow.DispatchCampaign(ctx, req, meta)
		assert.ErrorIs(t, err, models.ErrInvalidJobKind)
	})

	t.Run("UnknownStrategy", func(t *testing.T) {
		req := sendRequest(1)
		req.Strategy = "round-robin"
		_, err := flow.DispatchCampaign(ctx, req, meta)
		assert.ErrorIs(t, err, ErrInvalidStrategy)
	})

	t.Run("InvertedDelayWindow", func(t *testing.T) {
		req := sendRequest(1)
		req.DelayMinSeconds = 30
		req.DelayMaxSeconds = 10
		_, err := flow.DispatchCampaign(ctx, req, meta)
		assert.ErrorIs(t, err, ErrInvalidStrategy)
	})
}

func TestDispatchCampaign(t *testing.T) {
	ctx := context.Background()
	meta := NewClientMetadata("127.0.0.1", "test-agent")

	t.Run("PerJobAssignsInstances", func(t *testing.T) {
		campaignRepo, instanceRepo, producer, flow := newDispatchFixture(t, 100)

		resp, err := flow.DispatchCampaign(ctx, sendRequest(3), meta)
		require.NoError(t, err)
		assert.Equal(t, string(models.CampaignStatusRunning), resp.Status)
		assert.Equal(t, int64(3), resp.TotalContacts)
		assert.Equal(t, int64(3), resp.EnqueuedJobs)
		assert.Zero(t, resp.FailedJobs)

		require.Len(t, producer.published, 3)
		for _, job := range producer.published {
			assert.NotNil(t, job.InstanceUUID)
			assert.Equal(t, models.DispatchJobSendMessage, job.Kind)
			assert.NoError(t, job.Validate())
		}

		// Each job consumed one quota unit at claim time
		assert.Equal(t, int64(3), instanceRepo.get(1).SentToday)

		saved, err := campaignRepo.ByUUID(ctx, resp.CampaignUUID)
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, models.CampaignStatusRunning, saved.Status)
	})

	t.Run("DeferredLeavesInstanceUnset", func(t *testing.T) {
		_, instanceRepo, producer, flow := newDispatchFixture(t, 100)

		req := sendRequest(4)
		req.Strategy = string(models.AssignmentDeferred)
		resp, err := flow.DispatchCampaign(ctx, req, meta)
		require.NoError(t, err)
		assert.Equal(t, int64(4), resp.EnqueuedJobs)

		require.Len(t, producer.published, 4)
		for _, job := range producer.published {
			assert.Nil(t, job.InstanceUUID)
		}
		// Deferred dispatch consumes no quota at enqueue time
		assert.Zero(t, instanceRepo.get(1).SentToday)
	})

	t.Run("PoolExhaustedMidway", func(t *testing.T) {
		campaignRepo, _, producer, flow := newDispatchFixture(t, 2)

		resp, err := flow.DispatchCampaign(ctx, sendRequest(5), meta)
		require.NoError(t, err)
		assert.Equal(t, int64(2), resp.EnqueuedJobs)
		assert.Equal(t, int64(3), resp.FailedJobs)
		assert.Len(t, producer.published, 2)

		saved, err := campaignRepo.ByUUID(ctx, resp.CampaignUUID)
		require.NoError(t, err)
		assert.Equal(t, models.CampaignStatusRunning, saved.Status)
		assert.Equal(t, int64(3), saved.FailedContacts)
	})

	t.Run("PoolExhaustedImmediately", func(t *testing.T) {
		campaignRepo, _, _, flow := newDispatchFixture(t, 0)

		_, err := flow.DispatchCampaign(ctx, sendRequest(5), meta)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrQuotaExceeded)

		all, err := campaignRepo.ByFilter(ctx, models.CampaignFilter{}, "", 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, models.CampaignStatusFailed, all[0].Status)
	})

	t.Run("BrokerDown", func(t *testing.T) {
		campaignRepo, _, producer, flow := newDispatchFixture(t, 100)
		producer.batchErr = fmt.Errorf("%w: connection refused", services.ErrBrokerUnavailable)

		_, err := flow.DispatchCampaign(ctx, sendRequest(3), meta)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBrokerUnavailable)

		all, err := campaignRepo.ByFilter(ctx, models.CampaignFilter{}, "", 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, models.CampaignStatusFailed, all[0].Status)
	})

	t.Run("BrokerDiesMidBatch", func(t *testing.T) {
		campaignRepo, _, producer, flow := newDispatchFixture(t, 100)
		producer.dieAfter = 2

		resp, err := flow.DispatchCampaign(ctx, sendRequest(5), meta)
		require.NoError(t, err)
		assert.Equal(t, int64(2), resp.EnqueuedJobs)
		assert.Equal(t, int64(3), resp.FailedJobs)
		assert.Len(t, producer.published, 2)

		// Published jobs are durably queued, so the campaign keeps running
		saved, err := campaignRepo.ByUUID(ctx, resp.CampaignUUID)
		require.NoError(t, err)
		assert.Equal(t, models.CampaignStatusRunning, saved.Status)
		assert.Equal(t, int64(3), saved.FailedContacts)
	})

	t.Run("PartialEnqueueFailureCounted", func(t *testing.T) {
		campaignRepo, _, producer, flow := newDispatchFixture(t, 100)
		producer.failEvery = 3 // every third job bounces

		resp, err := flow.DispatchCampaign(ctx, sendRequest(6), meta)
		require.NoError(t, err)
		assert.Equal(t, int64(4), resp.EnqueuedJobs)
		assert.Equal(t, int64(2), resp.FailedJobs)

		saved, err := campaignRepo.ByUUID(ctx, resp.CampaignUUID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), saved.FailedContacts)
	})
}

func TestReportProgress(t *testing.T) {
	ctx := context.Background()
	meta := NewClientMetadata("127.0.0.1", "test-agent")

	start := func(t *testing.T) (DispatchFlow, string) {
		t.Helper()
		_, _, _, flow := newDispatchFixture(t, 100)
		resp, err := flow.DispatchCampaign(ctx, sendRequest(10), meta)
		require.NoError(t, err)
		return flow, resp.CampaignUUID
	}

	t.Run("AccumulatesDeltas", func(t *testing.T) {
		flow, campaignUUID := start(t)

		got, err := flow.ReportProgress(ctx, campaignUUID, &dto.CampaignProgressRequest{Processed: 4})
		require.NoError(t, err)
		assert.Equal(t, int64(4), got.ProcessedContacts)
		assert.Equal(t, string(models.CampaignStatusRunning), got.Status)

		got, err = flow.ReportProgress(ctx, campaignUUID, &dto.CampaignProgressRequest{Processed: 3, Failed: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.ProcessedContacts)
		assert.Equal(t, int64(1), got.FailedContacts)
		assert.Equal(t, string(models.CampaignStatusRunning), got.Status)
	})

	t.Run("CompletesWhenAllAccountedFor", func(t *testing.T) {
		flow, campaignUUID := start(t)

		got, err := flow.ReportProgress(ctx, campaignUUID, &dto.CampaignProgressRequest{Processed: 8, Failed: 2})
		require.NoError(t, err)
		assert.Equal(t, string(models.CampaignStatusCompleted), got.Status)

		// Further reports are rejected once terminal
		_, err = flow.ReportProgress(ctx, campaignUUID, &dto.CampaignProgressRequest{Processed: 1})
		assert.ErrorIs(t, err, ErrCampaignTerminal)
	})

	t.Run("ZeroDeltaIsReadOnly", func(t *testing.T) {
		flow, campaignUUID := start(t)

		got, err := flow.ReportProgress(ctx, campaignUUID, &dto.CampaignProgressRequest{})
		require.NoError(t, err)
		assert.Zero(t, got.ProcessedContacts)
		assert.Equal(t, string(models.CampaignStatusRunning), got.Status)
	})

	t.Run("UnknownCampaign", func(t *testing.T) {
		flow, _ := start(t)
		_, err := flow.ReportProgress(ctx, "00000000-0000-0000-0000-000000000000", &dto.CampaignProgressRequest{Processed: 1})
		assert.ErrorIs(t, err, ErrCampaignNotFound)
	})
}

func TestGetCampaign(t *testing.T) {
	ctx := context.Background()
	meta := NewClientMetadata("127.0.0.1", "test-agent")
	_, _, _, flow := newDispatchFixture(t, 100)

	resp, err := flow.DispatchCampaign(ctx, sendRequest(2), meta)
	require.NoError(t, err)

	got, err := flow.GetCampaign(ctx, resp.CampaignUUID)
	require.NoError(t, err)
	assert.Equal(t, resp.CampaignUUID, got.UUID)
	assert.Equal(t, uint(7), got.CustomerID)
	assert.Equal(t, int64(2), got.TotalContacts)

	_, err = flow.GetCampaign(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

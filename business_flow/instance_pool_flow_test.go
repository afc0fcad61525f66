package businessflow

import (
	"context"
	"math/rand"
	"testing"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPoolFixture(t *testing.T) (*fakeProviderRepo, *fakeInstanceRepo, InstancePoolFlow) {
	t.Helper()
	providerRepo := newFakeProviderRepo()
	instanceRepo := newFakeInstanceRepo()
	selector := NewGatewaySelectorFlow(providerRepo, instanceRepo, nil, rand.New(rand.NewSource(1)))
	flow := NewInstancePoolFlow(instanceRepo, providerRepo, selector, services.NewMockGatewayClient())
	return providerRepo, instanceRepo, flow
}

func TestProvisionInstance(t *testing.T) {
	ctx := context.Background()
	meta := NewClientMetadata("127.0.0.1", "test-agent")

	t.Run("PlacesOnLeastLoadedProvider", func(t *testing.T) {
		providerRepo, instanceRepo, flow := newPoolFixture(t)
		heavy := providerRepo.add(&models.GatewayProvider{Name: "heavy", EndpointURL: "https://heavy.example.com"})
		light := providerRepo.add(&models.GatewayProvider{Name: "light", EndpointURL: "https://light.example.com"})
		addInstances(instanceRepo, heavy.ID, 3)

		resp, err := flow.ProvisionInstance(ctx, &dto.ProvisionInstanceRequest{
			Name:       "fresh",
			DailyLimit: utils.ToPtr(int64(200)),
		}, meta)
		require.NoError(t, err)
		assert.Equal(t, light.Name, resp.Instance.ProviderName)
		assert.Equal(t, "fresh", resp.Instance.Name)
		assert.True(t, resp.Instance.IsActive)
		assert.Equal(t, string(models.InstanceStatusOK), resp.Instance.Status)
		assert.NotEmpty(t, resp.QRCode)

		stored, err := instanceRepo.ByUUID(ctx, resp.Instance.UUID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, light.ID, stored.ProviderID)
		require.NotNil(t, stored.ExternalRef)
		assert.NotEmpty(t, *stored.ExternalRef)
	})

	t.Run("RejectsDuplicateName", func(t *testing.T) {
		providerRepo, _, flow := newPoolFixture(t)
		providerRepo.add(&models.GatewayProvider{Name: "p", EndpointURL: "https://p.example.com"})

		_, err := flow.ProvisionInstance(ctx, &dto.ProvisionInstanceRequest{Name: "dup"}, meta)
		require.NoError(t, err)

		_, err = flow.ProvisionInstance(ctx, &dto.ProvisionInstanceRequest{Name: "dup"}, meta)
		assert.ErrorIs(t, err, ErrInstanceNameTaken)
	})

	t.Run("FailsWithoutProvider", func(t *testing.T) {
		_, _, flow := newPoolFixture(t)
		_, err := flow.ProvisionInstance(ctx, &dto.ProvisionInstanceRequest{Name: "orphan"}, meta)
		assert.ErrorIs(t, err, ErrNoProviderAvailable)
	})

	t.Run("RequiresName", func(t *testing.T) {
		_, _, flow := newPoolFixture(t)
		_, err := flow.ProvisionInstance(ctx, &dto.ProvisionInstanceRequest{}, meta)
		assert.ErrorIs(t, err, ErrInstanceNameRequired)
	})
}

func TestInstanceLifecycle(t *testing.T) {
	ctx := context.Background()
	meta := NewClientMetadata("127.0.0.1", "test-agent")

	provision := func(t *testing.T) (InstancePoolFlow, *fakeInstanceRepo, string) {
		t.Helper()
		providerRepo, instanceRepo, flow := newPoolFixture(t)
		providerRepo.add(&models.GatewayProvider{Name: "p", EndpointURL: "https://p.example.com"})
		resp, err := flow.ProvisionInstance(ctx, &dto.ProvisionInstanceRequest{Name: "member"}, meta)
		require.NoError(t, err)
		return flow, instanceRepo, resp.Instance.UUID
	}

	t.Run("GetInstance", func(t *testing.T) {
		flow, _, instanceUUID := provision(t)
		got, err := flow.GetInstance(ctx, instanceUUID)
		require.NoError(t, err)
		assert.Equal(t, "member", got.Name)

		_, err = flow.GetInstance(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("UpdateInstance", func(t *testing.T) {
		flow, _, instanceUUID := provision(t)
		got, err := flow.UpdateInstance(ctx, instanceUUID, &dto.UpdateInstanceRequest{
			Name:       utils.ToPtr("renamed"),
			DailyLimit: utils.ToPtr(int64(75)),
		})
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		require.NotNil(t, got.DailyLimit)
		assert.Equal(t, int64(75), *got.DailyLimit)
	})

	t.Run("DeactivateInstance", func(t *testing.T) {
		flow, instanceRepo, instanceUUID := provision(t)
		require.NoError(t, flow.DeactivateInstance(ctx, instanceUUID))

		stored, err := instanceRepo.ByUUID(ctx, instanceUUID)
		require.NoError(t, err)
		assert.False(t, utils.IsTrue(stored.IsActive))

		// Deactivated instances never appear in the eligible list
		eligible, err := instanceRepo.ListEligible(ctx, utils.UTCNow())
		require.NoError(t, err)
		assert.Empty(t, eligible)
	})

	t.Run("SetInstanceStatus", func(t *testing.T) {
		flow, instanceRepo, instanceUUID := provision(t)
		got, err := flow.SetInstanceStatus(ctx, instanceUUID, &dto.SetInstanceStatusRequest{Status: "degraded"})
		require.NoError(t, err)
		assert.Equal(t, string(models.InstanceStatusDegraded), got.Status)

		stored, err := instanceRepo.ByUUID(ctx, instanceUUID)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusDegraded, stored.Status)

		_, err = flow.SetInstanceStatus(ctx, instanceUUID, &dto.SetInstanceStatusRequest{Status: "on-fire"})
		assert.ErrorIs(t, err, ErrInvalidInstanceStatus)
	})
}

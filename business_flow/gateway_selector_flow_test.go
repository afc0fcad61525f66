package businessflow

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSelectorFixture(t *testing.T) (*fakeProviderRepo, *fakeInstanceRepo, GatewaySelectorFlow) {
	t.Helper()
	providerRepo := newFakeProviderRepo()
	instanceRepo := newFakeInstanceRepo()
	rng := rand.New(rand.NewSource(42))
	flow := NewGatewaySelectorFlow(providerRepo, instanceRepo, nil, rng)
	return providerRepo, instanceRepo, flow
}

func addInstances(repo *fakeInstanceRepo, providerID uint, n int) {
	for i := 0; i < n; i++ {
		repo.add(&models.Instance{Name: uniqueName(providerID, i), ProviderID: providerID})
	}
}

func uniqueName(providerID uint, i int) string {
	return fmt.Sprintf("p%d-i%d", providerID, i)
}

func TestSelectProviderForNewInstance(t *testing.T) {
	ctx := context.Background()

	t.Run("NoProviders", func(t *testing.T) {
		_, _, flow := newSelectorFixture(t)
		_, err := flow.SelectProviderForNewInstance(ctx)
		assert.ErrorIs(t, err, ErrNoProviderAvailable)
	})

	t.Run("SingleMinimumIsDeterministic", func(t *testing.T) {
		providerRepo, instanceRepo, flow := newSelectorFixture(t)
		a := providerRepo.add(&models.GatewayProvider{Name: "a", EndpointURL: "https://a.example.com"})
		b := providerRepo.add(&models.GatewayProvider{Name: "b", EndpointURL: "https://b.example.com"})
		addInstances(instanceRepo, a.ID, 2)
		addInstances(instanceRepo, b.ID, 4)

		for i := 0; i < 10; i++ {
			picked, err := flow.SelectProviderForNewInstance(ctx)
			require.NoError(t, err)
			assert.Equal(t, a.ID, picked.ID)
		}
	})

	t.Run("InactiveProvidersExcluded", func(t *testing.T) {
		providerRepo, instanceRepo, flow := newSelectorFixture(t)
		providerRepo.add(&models.GatewayProvider{Name: "idle", EndpointURL: "https://idle.example.com", IsActive: utils.ToPtr(false)})
		busy := providerRepo.add(&models.GatewayProvider{Name: "busy", EndpointURL: "https://busy.example.com"})
		addInstances(instanceRepo, busy.ID, 7)

		picked, err := flow.SelectProviderForNewInstance(ctx)
		require.NoError(t, err)
		assert.Equal(t, busy.ID, picked.ID)
	})

	t.Run("InactiveInstancesDoNotCount", func(t *testing.T) {
		providerRepo, instanceRepo, flow := newSelectorFixture(t)
		a := providerRepo.add(&models.GatewayProvider{Name: "a", EndpointURL: "https://a.example.com"})
		b := providerRepo.add(&models.GatewayProvider{Name: "b", EndpointURL: "https://b.example.com"})
		addInstances(instanceRepo, a.ID, 1)
		// Three deactivated instances leave b effectively empty
		for i := 0; i < 3; i++ {
			instanceRepo.add(&models.Instance{Name: uniqueName(b.ID, i), ProviderID: b.ID, IsActive: utils.ToPtr(false)})
		}

		picked, err := flow.SelectProviderForNewInstance(ctx)
		require.NoError(t, err)
		assert.Equal(t, b.ID, picked.ID)
	})

	t.Run("TiedMinimumSpreadsAcrossCandidates", func(t *testing.T) {
		providerRepo, instanceRepo, flow := newSelectorFixture(t)
		a := providerRepo.add(&models.GatewayProvider{Name: "a", EndpointURL: "https://a.example.com"})
		b := providerRepo.add(&models.GatewayProvider{Name: "b", EndpointURL: "https://b.example.com"})
		c := providerRepo.add(&models.GatewayProvider{Name: "c", EndpointURL: "https://c.example.com"})
		addInstances(instanceRepo, a.ID, 3)
		addInstances(instanceRepo, b.ID, 3)
		addInstances(instanceRepo, c.ID, 5)

		picks := map[uint]int{}
		const draws = 1000
		for i := 0; i < draws; i++ {
			picked, err := flow.SelectProviderForNewInstance(ctx)
			require.NoError(t, err)
			picks[picked.ID]++
		}

		// The heavier provider never wins a tie it is not part of
		assert.Zero(t, picks[c.ID])
		// Both tied providers get a meaningful share of the draws
		assert.Greater(t, picks[a.ID], draws/4)
		assert.Greater(t, picks[b.ID], draws/4)
		assert.Equal(t, draws, picks[a.ID]+picks[b.ID])
	})
}

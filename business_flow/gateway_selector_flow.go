package businessflow

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
)

const (
	activeProvidersCacheKey = "simurgh:providers:active"
	activeProvidersCacheTTL = 30 * time.Second
)

// GatewaySelectorFlow decides which provider hosts a newly provisioned instance
type GatewaySelectorFlow interface {
	SelectProviderForNewInstance(ctx context.Context) (*models.GatewayProvider, error)
}

// GatewaySelectorFlowImpl implements the provider selection flow
type GatewaySelectorFlowImpl struct {
	providerRepo repository.GatewayProviderRepository
	instanceRepo repository.InstanceRepository

	// rc caches the active provider list; nil disables caching
	rc *redis.Client

	// rng is injected so tie-breaking stays seedable in tests
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGatewaySelectorFlow creates a new gateway selector flow instance
func NewGatewaySelectorFlow(
	providerRepo repository.GatewayProviderRepository,
	instanceRepo repository.InstanceRepository,
	rc *redis.Client,
	rng *rand.Rand,
) GatewaySelectorFlow {
	return &GatewaySelectorFlowImpl{
		providerRepo: providerRepo,
		instanceRepo: instanceRepo,
		rc:           rc,
		rng:          rng,
	}
}

// listActiveProviders reads the registry through a short-TTL cache. Staleness
// is bounded by the TTL and only delays a provider joining or leaving the
// candidate set; instance counts are always read fresh.
func (s *GatewaySelectorFlowImpl) listActiveProviders(ctx context.Context) ([]*models.GatewayProvider, error) {
	if s.rc != nil {
		if raw, err := s.rc.Get(ctx, activeProvidersCacheKey).Bytes(); err == nil {
			var cached []*models.GatewayProvider
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	providers, err := s.providerRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if s.rc != nil {
		if raw, err := json.Marshal(providers); err == nil {
			_ = s.rc.Set(ctx, activeProvidersCacheKey, raw, activeProvidersCacheTTL).Err()
		}
	}
	return providers, nil
}

// SelectProviderForNewInstance picks an active provider with the fewest active
// instances, breaking ties uniformly at random so equal-count providers at
// startup don't all herd new instances onto the first one.
// Pure read + selection; provisioning the instance is the caller's job.
func (s *GatewaySelectorFlowImpl) SelectProviderForNewInstance(ctx context.Context) (*models.GatewayProvider, error) {
	providers, err := s.listActiveProviders(ctx)
	if err != nil {
		return nil, NewBusinessError("PROVIDER_LIST_FAILED", "Failed to list active providers", err)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviderAvailable
	}

	counts, err := s.instanceRepo.CountActiveByProvider(ctx)
	if err != nil {
		return nil, NewBusinessError("INSTANCE_COUNT_FAILED", "Failed to count instances per provider", err)
	}

	minCount := int64(-1)
	for _, p := range providers {
		c := counts[p.ID]
		if minCount < 0 || c < minCount {
			minCount = c
		}
	}

	candidates := make([]*models.GatewayProvider, 0, len(providers))
	for _, p := range providers {
		if counts[p.ID] == minCount {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}

	s.mu.Lock()
	idx := s.rng.Intn(len(candidates))
	s.mu.Unlock()

	return candidates[idx], nil
}

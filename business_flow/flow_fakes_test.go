package businessflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
)

// In-memory repository fakes. Mutations take the same lock the conditional
// updates take in Postgres, so the claim semantics under concurrency match
// what the SQL implementations guarantee.

type fakeInstanceRepo struct {
	mu        sync.Mutex
	nextID    uint
	instances map[uint]*models.Instance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: map[uint]*models.Instance{}}
}

func (r *fakeInstanceRepo) add(inst *models.Instance) *models.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inst.ID = r.nextID
	if inst.UUID == uuid.Nil {
		inst.UUID = uuid.New()
	}
	if inst.Status == "" {
		inst.Status = models.InstanceStatusOK
	}
	if inst.IsActive == nil {
		inst.IsActive = utils.ToPtr(true)
	}
	r.instances[inst.ID] = inst
	return inst
}

func (r *fakeInstanceRepo) get(id uint) *models.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[id]
}

func (r *fakeInstanceRepo) ByID(ctx context.Context, id uint) (*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

func (r *fakeInstanceRepo) matches(inst *models.Instance, f models.InstanceFilter) bool {
	if f.ID != nil && inst.ID != *f.ID {
		return false
	}
	if f.UUID != nil && inst.UUID != *f.UUID {
		return false
	}
	if f.ProviderID != nil && inst.ProviderID != *f.ProviderID {
		return false
	}
	if f.Name != nil && inst.Name != *f.Name {
		return false
	}
	if f.Status != nil && inst.Status != *f.Status {
		return false
	}
	if f.IsActive != nil && utils.IsTrue(inst.IsActive) != *f.IsActive {
		return false
	}
	return true
}

func (r *fakeInstanceRepo) ByFilter(ctx context.Context, filter models.InstanceFilter, orderBy string, limit, offset int) ([]*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Instance
	for _, inst := range r.instances {
		if r.matches(inst, filter) {
			cp := *inst
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeInstanceRepo) Save(ctx context.Context, entity *models.Instance) error {
	if entity.ID == 0 {
		r.add(entity)
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entity
	r.instances[entity.ID] = &cp
	return nil
}

func (r *fakeInstanceRepo) SaveBatch(ctx context.Context, entities []*models.Instance) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeInstanceRepo) Count(ctx context.Context, filter models.InstanceFilter) (int64, error) {
	out, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), err
}

func (r *fakeInstanceRepo) Exists(ctx context.Context, filter models.InstanceFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *fakeInstanceRepo) ByUUID(ctx context.Context, u string) (*models.Instance, error) {
	parsed, err := uuid.Parse(u)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.UUID == parsed {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeInstanceRepo) Update(ctx context.Context, instance models.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := instance
	r.instances[instance.ID] = &cp
	return nil
}

func (r *fakeInstanceRepo) SetActive(ctx context.Context, id uint, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.IsActive = utils.ToPtr(active)
	}
	return nil
}

func (r *fakeInstanceRepo) SetStatus(ctx context.Context, id uint, status models.InstanceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.Status = status
	}
	return nil
}

func (r *fakeInstanceRepo) ListEligible(ctx context.Context, now time.Time) ([]*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Instance
	for _, inst := range r.instances {
		if inst.IsEligible(now) {
			cp := *inst
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastUsedAt == nil && b.LastUsedAt != nil:
			return true
		case a.LastUsedAt != nil && b.LastUsedAt == nil:
			return false
		case a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
			return a.LastUsedAt.Before(*b.LastUsedAt)
		default:
			return a.SentToday < b.SentToday
		}
	})
	return out, nil
}

func (r *fakeInstanceRepo) TryConsumeQuota(ctx context.Context, id uint, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok || !inst.IsEligible(now) {
		return false, nil
	}
	inst.SentToday++
	t := now
	inst.LastUsedAt = &t
	return true, nil
}

func (r *fakeInstanceRepo) ApplyRateLimitCooldown(ctx context.Context, id uint, now time.Time) (int64, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return 0, time.Time{}, gorm.ErrRecordNotFound
	}
	// Backoff derives from the count under the lock, as the SQL derives it
	// from the row inside the UPDATE
	until := now.Add(CooldownBackoff(inst.RateLimitCountToday + 1))
	inst.RateLimitCountToday++
	inst.CooldownUntil = &until
	return inst.RateLimitCountToday, until, nil
}

func (r *fakeInstanceRepo) IncrementErrorCount(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		inst.ErrorToday++
	}
	return nil
}

func (r *fakeInstanceRepo) ZeroDailyCounters(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	// Counters only; a live cooldown outlasts the midnight sweep
	for _, inst := range r.instances {
		inst.SentToday = 0
		inst.ErrorToday = 0
		inst.RateLimitCountToday = 0
		n++
	}
	return n, nil
}

func (r *fakeInstanceRepo) CountActiveByProvider(ctx context.Context) (map[uint]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[uint]int64{}
	for _, inst := range r.instances {
		if utils.IsTrue(inst.IsActive) {
			counts[inst.ProviderID]++
		}
	}
	return counts, nil
}

type fakeProviderRepo struct {
	mu        sync.Mutex
	nextID    uint
	providers map[uint]*models.GatewayProvider
}

func newFakeProviderRepo() *fakeProviderRepo {
	return &fakeProviderRepo{providers: map[uint]*models.GatewayProvider{}}
}

func (r *fakeProviderRepo) add(p *models.GatewayProvider) *models.GatewayProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.IsActive == nil {
		p.IsActive = utils.ToPtr(true)
	}
	r.providers[p.ID] = p
	return p
}

func (r *fakeProviderRepo) matches(p *models.GatewayProvider, f models.GatewayProviderFilter) bool {
	if f.ID != nil && p.ID != *f.ID {
		return false
	}
	if f.UUID != nil && p.UUID != *f.UUID {
		return false
	}
	if f.Name != nil && p.Name != *f.Name {
		return false
	}
	if f.IsActive != nil && utils.IsTrue(p.IsActive) != *f.IsActive {
		return false
	}
	return true
}

func (r *fakeProviderRepo) ByID(ctx context.Context, id uint) (*models.GatewayProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProviderRepo) ByFilter(ctx context.Context, filter models.GatewayProviderFilter, orderBy string, limit, offset int) ([]*models.GatewayProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.GatewayProvider
	for _, p := range r.providers {
		if r.matches(p, filter) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeProviderRepo) Save(ctx context.Context, entity *models.GatewayProvider) error {
	if entity.ID == 0 {
		r.add(entity)
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entity
	r.providers[entity.ID] = &cp
	return nil
}

func (r *fakeProviderRepo) SaveBatch(ctx context.Context, entities []*models.GatewayProvider) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeProviderRepo) Count(ctx context.Context, filter models.GatewayProviderFilter) (int64, error) {
	out, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), err
}

func (r *fakeProviderRepo) Exists(ctx context.Context, filter models.GatewayProviderFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *fakeProviderRepo) ByUUID(ctx context.Context, u string) (*models.GatewayProvider, error) {
	parsed, err := uuid.Parse(u)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if p.UUID == parsed {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeProviderRepo) ByName(ctx context.Context, name string) (*models.GatewayProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeProviderRepo) ListActive(ctx context.Context) ([]*models.GatewayProvider, error) {
	return r.ByFilter(ctx, models.GatewayProviderFilter{IsActive: utils.ToPtr(true)}, "", 0, 0)
}

func (r *fakeProviderRepo) Update(ctx context.Context, provider models.GatewayProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := provider
	r.providers[provider.ID] = &cp
	return nil
}

func (r *fakeProviderRepo) SetActive(ctx context.Context, id uint, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[id]; ok {
		p.IsActive = utils.ToPtr(active)
	}
	return nil
}

func (r *fakeProviderRepo) RotateAPIKey(ctx context.Context, id uint, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[id]; ok {
		p.APIKey = apiKey
	}
	return nil
}

type fakeCampaignRepo struct {
	mu        sync.Mutex
	nextID    uint
	campaigns map[uint]*models.Campaign
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: map[uint]*models.Campaign{}}
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.campaigns {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != nil && c.CustomerID != *filter.CustomerID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, entity *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entity.ID == 0 {
		r.nextID++
		entity.ID = r.nextID
	}
	if entity.UUID == uuid.Nil {
		entity.UUID = uuid.New()
	}
	if entity.Status == "" {
		entity.Status = models.CampaignStatusPending
	}
	cp := *entity
	r.campaigns[entity.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, entities []*models.Campaign) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	out, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), err
}

func (r *fakeCampaignRepo) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, u string) (*models.Campaign, error) {
	parsed, err := uuid.Parse(u)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.UUID == parsed {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, campaign models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := campaign
	r.campaigns[campaign.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.Status = status
	}
	return nil
}

func (r *fakeCampaignRepo) AddProgress(ctx context.Context, id uint, processedDelta, failedDelta int64) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	c.ProcessedContacts += processedDelta
	c.FailedContacts += failedDelta
	cp := *c
	return &cp, nil
}

type fakeMarkerRepo struct {
	mu      sync.Mutex
	markers map[string]*models.ResetMarker
}

func newFakeMarkerRepo() *fakeMarkerRepo {
	return &fakeMarkerRepo{markers: map[string]*models.ResetMarker{}}
}

func (r *fakeMarkerRepo) ByName(ctx context.Context, name string) (*models.ResetMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markers[name]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMarkerRepo) Upsert(ctx context.Context, name, boundary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := utils.UTCNow()
	if m, ok := r.markers[name]; ok {
		m.LastBoundary = boundary
		m.UpdatedAt = now
		return nil
	}
	r.markers[name] = &models.ResetMarker{Name: name, LastBoundary: boundary, CreatedAt: now, UpdatedAt: now}
	return nil
}

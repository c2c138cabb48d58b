package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"wisefido-crisis/internal/domain"
)

// MemorySafetyPlansRepo 安全计划（内存）
type MemorySafetyPlansRepo struct {
	mu     sync.Mutex
	plans  map[string]*domain.SafetyPlan // plan id -> plan
	active map[string]string             // user id -> active plan id
	byUser map[string][]string           // user id -> plan ids（创建顺序）
}

func NewMemorySafetyPlansRepo() *MemorySafetyPlansRepo {
	return &MemorySafetyPlansRepo{
		plans:  map[string]*domain.SafetyPlan{},
		active: map[string]string{},
		byUser: map[string][]string{},
	}
}

var _ SafetyPlansRepository = (*MemorySafetyPlansRepo)(nil)

func (r *MemorySafetyPlansRepo) CreatePlan(_ context.Context, plan *domain.SafetyPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[plan.UserID]; exists {
		return fmt.Errorf("%w: user %s already has an active safety plan", domain.ErrConflict, plan.UserID)
	}
	r.storeLocked(plan)
	return nil
}

func (r *MemorySafetyPlansRepo) storeLocked(plan *domain.SafetyPlan) {
	cp := clonePlan(plan)
	r.plans[plan.ID] = cp
	r.active[plan.UserID] = plan.ID
	r.byUser[plan.UserID] = append(r.byUser[plan.UserID], plan.ID)
}

func (r *MemorySafetyPlansRepo) GetActivePlan(_ context.Context, userID string) (*domain.SafetyPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[userID]
	if !ok {
		return nil, fmt.Errorf("%w: no active safety plan for user %s", domain.ErrNotFound, userID)
	}
	return clonePlan(r.plans[id]), nil
}

func (r *MemorySafetyPlansRepo) GetPlan(_ context.Context, planID string) (*domain.SafetyPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: safety plan %s", domain.ErrNotFound, planID)
	}
	return clonePlan(p), nil
}

func (r *MemorySafetyPlansRepo) UpdatePlan(_ context.Context, planID string, mutate func(*domain.SafetyPlan) error) (*domain.SafetyPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: safety plan %s", domain.ErrNotFound, planID)
	}
	work := clonePlan(p)
	if err := mutate(work); err != nil {
		return nil, err
	}
	r.plans[planID] = clonePlan(work)
	return work, nil
}

func (r *MemorySafetyPlansRepo) SupersedeActivePlan(_ context.Context, userID string, next *domain.SafetyPlan) (*domain.SafetyPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[userID]
	if !ok {
		return nil, fmt.Errorf("%w: no active safety plan for user %s", domain.ErrNotFound, userID)
	}
	old := r.plans[id]
	old.Status = domain.PlanSuperseded
	old.SupersededBy = next.ID
	r.storeLocked(next)
	return clonePlan(old), nil
}

func (r *MemorySafetyPlansRepo) ListPlans(_ context.Context, userID string) ([]*domain.SafetyPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.SafetyPlan{}
	for _, id := range r.byUser[userID] {
		out = append(out, clonePlan(r.plans[id]))
	}
	return out, nil
}

// clonePlan 深拷贝，避免调用方修改共享切片
func clonePlan(p *domain.SafetyPlan) *domain.SafetyPlan {
	cp := *p
	cp.WarningSigns = slices.Clone(p.WarningSigns)
	cp.CopingStrategies = slices.Clone(p.CopingStrategies)
	cp.SupportContacts = slices.Clone(p.SupportContacts)
	cp.ProfessionalContacts = slices.Clone(p.ProfessionalContacts)
	cp.EmergencyPlan.ImmediateActions = slices.Clone(p.EmergencyPlan.ImmediateActions)
	cp.EmergencyPlan.CrisisHotlines = slices.Clone(p.EmergencyPlan.CrisisHotlines)
	cp.EmergencyPlan.HospitalOptions = slices.Clone(p.EmergencyPlan.HospitalOptions)
	cp.EmergencyPlan.WhoToContact = slices.Clone(p.EmergencyPlan.WhoToContact)
	return &cp
}

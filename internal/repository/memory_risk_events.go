package repository

import (
	"context"
	"fmt"
	"sync"

	"wisefido-crisis/internal/domain"
)

// MemoryRiskEventsRepo 风险事件日志（内存）
type MemoryRiskEventsRepo struct {
	mu     sync.RWMutex
	events []domain.RiskEvent
}

func NewMemoryRiskEventsRepo() *MemoryRiskEventsRepo {
	return &MemoryRiskEventsRepo{}
}

var _ RiskEventsRepository = (*MemoryRiskEventsRepo)(nil)

func (r *MemoryRiskEventsRepo) CreateRiskEvent(_ context.Context, event *domain.RiskEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("%w: risk event id is required", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := *event
	ev.IndicatorsMatched = append([]string{}, event.IndicatorsMatched...)
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRiskEventsRepo) ListRiskEventsBySubject(_ context.Context, subjectID string) ([]*domain.RiskEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.RiskEvent{}
	for i := range r.events {
		if r.events[i].SubjectID == subjectID {
			ev := r.events[i]
			out = append(out, &ev)
		}
	}
	return out, nil
}

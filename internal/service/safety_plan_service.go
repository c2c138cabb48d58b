package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-crisis/internal/domain"
	"wisefido-crisis/internal/repository"
	"wisefido-crisis/internal/syncutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SafetyPlanService 安全计划服务：同一用户的写操作串行执行
type SafetyPlanService struct {
	repo   repository.SafetyPlansRepository
	locks  *syncutil.KeyedMutex
	now    func() time.Time
	logger *zap.Logger
}

// NewSafetyPlanService 创建安全计划服务
func NewSafetyPlanService(repo repository.SafetyPlansRepository, logger *zap.Logger) *SafetyPlanService {
	return &SafetyPlanService{
		repo:   repo,
		locks:  syncutil.NewKeyedMutex(),
		now:    time.Now,
		logger: logger,
	}
}

// newPlan 空计划：完成度 0，每周复查，首次复查在一周后
func (s *SafetyPlanService) newPlan(userID string) *domain.SafetyPlan {
	now := s.now()
	return &domain.SafetyPlan{
		ID:                   uuid.NewString(),
		UserID:               userID,
		Status:               domain.PlanActive,
		WarningSigns:         []string{},
		CopingStrategies:     []domain.CopingStrategy{},
		SupportContacts:      []domain.SupportContact{},
		ProfessionalContacts: []domain.ProfessionalContact{},
		EmergencyPlan: domain.EmergencyPlan{
			ImmediateActions: []string{},
			CrisisHotlines:   []domain.CrisisHotline{},
			HospitalOptions:  []string{},
			WhoToContact:     []string{},
		},
		ReviewSchedule: domain.ReviewSchedule{
			Frequency:       "weekly",
			NextReviewDate:  now.Add(7 * 24 * time.Hour),
			ReviewReminders: true,
		},
		CompletionPercentage: 0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// CreatePlan 为用户创建空计划；已有 active 计划时返回 ErrConflict
func (s *SafetyPlanService) CreatePlan(ctx context.Context, userID string) (*domain.SafetyPlan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	unlock, err := s.locks.LockContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	plan := s.newPlan(userID)
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	s.logger.Info("Safety plan created", zap.String("plan_id", plan.ID), zap.String("user_id", userID))
	return plan, nil
}

// GetPlan 用户当前 active 计划
func (s *SafetyPlanService) GetPlan(ctx context.Context, userID string) (*domain.SafetyPlan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	return s.repo.GetActivePlan(ctx, userID)
}

// ListPlans 用户全部计划（含已替代）
func (s *SafetyPlanService) ListPlans(ctx context.Context, userID string) ([]*domain.SafetyPlan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	return s.repo.ListPlans(ctx, userID)
}

// UpdatePlan 合并非 nil 字段并重算完成度；已替代的计划不可修改
func (s *SafetyPlanService) UpdatePlan(ctx context.Context, planID string, update domain.SafetyPlanUpdate) (*domain.SafetyPlan, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return nil, fmt.Errorf("%w: plan id is required", domain.ErrValidation)
	}
	// 先查出所属用户，再按用户串行
	current, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locks.LockContext(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.repo.UpdatePlan(ctx, planID, func(p *domain.SafetyPlan) error {
		if p.Status != domain.PlanActive {
			return fmt.Errorf("%w: safety plan %s is %s", domain.ErrConflict, p.ID, p.Status)
		}
		p.Apply(update, s.now())
		return nil
	})
}

// SupersedePlan 旧计划标记为 superseded，并创建新的空 active 计划
func (s *SafetyPlanService) SupersedePlan(ctx context.Context, userID string) (*domain.SafetyPlan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	unlock, err := s.locks.LockContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	next := s.newPlan(userID)
	old, err := s.repo.SupersedeActivePlan(ctx, userID, next)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Safety plan superseded",
		zap.String("user_id", userID),
		zap.String("old_plan_id", old.ID),
		zap.String("new_plan_id", next.ID),
	)
	return next, nil
}

package repository

import (
	"context"

	"wisefido-crisis/internal/domain"
)

// MessagesRepository 短信记录 Repository 接口
// 只由 Messaging Gateway 调用；状态推进规则由上层保证，这里只做乐观并发控制
type MessagesRepository interface {
	// CreateMessage 写入新消息（ID 由调用方生成）
	CreateMessage(ctx context.Context, msg *domain.Message) error

	// GetMessage 按内部 ID 查询，未找到返回 ErrNotFound
	GetMessage(ctx context.Context, id string) (*domain.Message, error)

	// GetMessageByExternalID 按运营商消息 ID 查询，未找到返回 ErrNotFound
	GetMessageByExternalID(ctx context.Context, externalID string) (*domain.Message, error)

	// ListMessagesByAddress 按对端号码查询，created_at 升序；无记录返回空切片
	ListMessagesByAddress(ctx context.Context, address string) ([]*domain.Message, error)

	// UpdateMessage 以 prev 状态做比较交换写入；状态已被他人修改时返回 ErrConflict
	UpdateMessage(ctx context.Context, msg *domain.Message, prev domain.MessageStatus) error
}

// RiskEventsRepository 风险事件日志（只追加）
type RiskEventsRepository interface {
	CreateRiskEvent(ctx context.Context, event *domain.RiskEvent) error

	// ListRiskEventsBySubject detected_at 升序
	ListRiskEventsBySubject(ctx context.Context, subjectID string) ([]*domain.RiskEvent, error)
}

// SafetyPlansRepository 安全计划 Repository 接口；计划不删除，只会被替代
type SafetyPlansRepository interface {
	// CreatePlan 写入新的 active 计划；用户已有 active 计划时返回 ErrConflict
	CreatePlan(ctx context.Context, plan *domain.SafetyPlan) error

	// GetActivePlan 用户当前 active 计划，未找到返回 ErrNotFound
	GetActivePlan(ctx context.Context, userID string) (*domain.SafetyPlan, error)

	// GetPlan 按计划 ID 查询（包括已替代的计划）
	GetPlan(ctx context.Context, planID string) (*domain.SafetyPlan, error)

	// UpdatePlan 原子地读-改-写；mutate 返回错误时不写入
	UpdatePlan(ctx context.Context, planID string, mutate func(*domain.SafetyPlan) error) (*domain.SafetyPlan, error)

	// SupersedeActivePlan 将当前 active 计划标记为 superseded 并写入 next 作为新的 active 计划
	// 返回被替代的旧计划；无 active 计划时返回 ErrNotFound
	SupersedeActivePlan(ctx context.Context, userID string, next *domain.SafetyPlan) (*domain.SafetyPlan, error)

	// ListPlans 用户全部计划（创建顺序）
	ListPlans(ctx context.Context, userID string) ([]*domain.SafetyPlan, error)
}

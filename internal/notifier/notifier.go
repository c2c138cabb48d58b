package notifier

import (
	"context"
	"time"

	"wisefido-crisis/internal/domain"
)

// SessionAlert 会话内告警（被评估者当前会话中展示，不经短信）
type SessionAlert struct {
	RunID       string            `json:"run_id"`
	EventID     string            `json:"event_id"`
	SubjectID   string            `json:"subject_id"`
	Source      domain.RiskSource `json:"source"`
	Level       domain.RiskLevel  `json:"risk_level"`
	Kind        domain.ActionKind `json:"kind"`
	Body        string            `json:"body"`
	ResourceIDs []string          `json:"resource_ids,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ResponderAlert 响应人通知
type ResponderAlert struct {
	RunID          string            `json:"run_id"`
	EventID        string            `json:"event_id"`
	SubjectID      string            `json:"subject_id"`
	ContactAddress string            `json:"contact_address,omitempty"`
	Source         domain.RiskSource `json:"source"`
	Level          domain.RiskLevel  `json:"risk_level"`
	Indicators     []string          `json:"indicators"`
	Deadline       *time.Time        `json:"deadline,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TimeoutSignal 确认窗口超时的运维信号（每个升级流程最多一次）
type TimeoutSignal struct {
	RunID      string           `json:"run_id"`
	EventID    string           `json:"event_id"`
	SubjectID  string           `json:"subject_id"`
	Level      domain.RiskLevel `json:"risk_level"`
	MessageIDs []string         `json:"message_ids"`
	Deadline   time.Time        `json:"deadline"`
	TimedOutAt time.Time        `json:"timed_out_at"`
}

// SessionAlerter 会话内告警出口
type SessionAlerter interface {
	AlertSession(ctx context.Context, alert SessionAlert) error
}

// ResponderNotifier 响应人通知出口
type ResponderNotifier interface {
	NotifyResponders(ctx context.Context, alert ResponderAlert) error
}

// OperatorSignaler 运维信号出口
type OperatorSignaler interface {
	SignalTimeout(ctx context.Context, signal TimeoutSignal) error
}

package domain

import "time"

// ActionKind 升级动作类型（按此顺序派发）
type ActionKind string

const (
	ActionAutoReply         ActionKind = "auto_reply"
	ActionDispatchResources ActionKind = "dispatch_resources"
	ActionNotifyResponder   ActionKind = "notify_responder"
)

// EscalationState 升级状态机状态
type EscalationState string

const (
	StateDetected     EscalationState = "detected"
	StateRouted       EscalationState = "routed"
	StateDispatched   EscalationState = "dispatched"
	StateAcknowledged EscalationState = "acknowledged"
	StateTimedOut     EscalationState = "timed_out"
)

// EscalationAction 一个响应动作；仅通过其产生的 Message 记录持久化
type EscalationAction struct {
	Kind                ActionKind `json:"kind"`
	Payload             string     `json:"payload,omitempty"`
	ResourceIDs         []string   `json:"resource_ids,omitempty"`
	ResourceCount       int        `json:"resource_count,omitempty"`
	ResultingMessageIDs []string   `json:"resulting_message_ids"`
	Error               string     `json:"error,omitempty"`
}

// EscalationRun 引擎对一个 RiskEvent 的一次处理记录
type EscalationRun struct {
	ID             string             `json:"id"`
	Event          RiskEvent          `json:"event"`
	State          EscalationState    `json:"state"`
	Actions        []EscalationAction `json:"actions"`
	CreatedAt      time.Time          `json:"created_at"`
	RoutedAt       *time.Time         `json:"routed_at,omitempty"`
	DispatchedAt   *time.Time         `json:"dispatched_at,omitempty"`
	Deadline       *time.Time         `json:"deadline,omitempty"`
	AcknowledgedAt *time.Time         `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string             `json:"acknowledged_by,omitempty"`
	TimedOutAt     *time.Time         `json:"timed_out_at,omitempty"`
}

// MessageIDs 返回本次升级产生的全部短信ID
func (r *EscalationRun) MessageIDs() []string {
	var ids []string
	for _, a := range r.Actions {
		ids = append(ids, a.ResultingMessageIDs...)
	}
	return ids
}

package domain

import "time"

// MessageDirection 短信方向
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageStatus 短信生命周期状态
type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// IsTerminal delivered / failed 为终态
func (s MessageStatus) IsTerminal() bool {
	return s == MessageDelivered || s == MessageFailed
}

// CanTransitionTo 状态只能向前推进：queued→sent→delivered，queued|sent→failed
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	switch s {
	case MessageQueued:
		return next == MessageSent || next == MessageDelivered || next == MessageFailed
	case MessageSent:
		return next == MessageDelivered || next == MessageFailed
	default:
		return false
	}
}

// Message 短信记录（仅由 Messaging Gateway 持有和修改）
type Message struct {
	ID                  string           `json:"id"`
	Direction           MessageDirection `json:"direction"`
	CounterpartyAddress string           `json:"counterparty_address"`
	LocalAddress        string           `json:"local_address,omitempty"`
	Body                string           `json:"body"`
	CrisisFlag          bool             `json:"crisis_flag"`
	Status              MessageStatus    `json:"status"`
	FailureReason       string           `json:"failure_reason,omitempty"`
	ExternalMessageID   string           `json:"external_message_id,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	DeliveredAt         *time.Time       `json:"delivered_at,omitempty"`
}

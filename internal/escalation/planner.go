package escalation

import (
	"time"

	"wisefido-crisis/internal/catalog"
	"wisefido-crisis/internal/domain"
)

// Policy 升级策略
type Policy struct {
	// Windows 各等级的确认窗口；0 或缺省表示不超时
	Windows map[domain.RiskLevel]time.Duration
	// OnCallAddress 值班响应人号码，非空时 notify_responder 额外发送短信
	OnCallAddress string
	// ResourceFilter 资源派发的过滤条件
	ResourceFilter catalog.Filter
	// Retention 终态升级记录在内存中的保留时长
	Retention time.Duration
}

// DefaultPolicy 默认策略：crisis/severe 10 分钟，high 30 分钟，moderate 不超时
func DefaultPolicy() Policy {
	return Policy{
		Windows: map[domain.RiskLevel]time.Duration{
			domain.RiskCrisis: 10 * time.Minute,
			domain.RiskSevere: 10 * time.Minute,
			domain.RiskHigh:   30 * time.Minute,
		},
		Retention: 24 * time.Hour,
	}
}

func (p Policy) window(level domain.RiskLevel) time.Duration {
	return p.Windows[level]
}

// resourceCount 各等级派发的资源数
func resourceCount(level domain.RiskLevel) int {
	switch {
	case level >= domain.RiskSevere:
		return 2
	case level >= domain.RiskModerate:
		return 1
	}
	return 0
}

// PlanActions 按风险等级确定动作集合，顺序即派发顺序：
//
//	crisis/severe -> auto_reply, dispatch_resources(top-2), notify_responder
//	high          -> dispatch_resources(top-1), notify_responder
//	moderate      -> dispatch_resources(top-1)
//	更低          -> 无动作
//
// 人工告警总是包含 auto_reply 和 dispatch_resources（至少 top-2）
func PlanActions(event domain.RiskEvent) []domain.EscalationAction {
	level := event.RiskLevel
	manual := event.SourceType == domain.SourceManual

	autoReply := level >= domain.RiskSevere || manual
	count := resourceCount(level)
	if manual && count < 2 {
		count = 2
	}
	notify := level >= domain.RiskHigh

	actions := []domain.EscalationAction{}
	if autoReply {
		actions = append(actions, domain.EscalationAction{
			Kind:                domain.ActionAutoReply,
			Payload:             AutoReplyText,
			ResultingMessageIDs: []string{},
		})
	}
	if count > 0 {
		actions = append(actions, domain.EscalationAction{
			Kind:                domain.ActionDispatchResources,
			ResourceCount:       count,
			ResultingMessageIDs: []string{},
		})
	}
	if notify {
		actions = append(actions, domain.EscalationAction{
			Kind:                domain.ActionNotifyResponder,
			ResultingMessageIDs: []string{},
		})
	}
	return actions
}

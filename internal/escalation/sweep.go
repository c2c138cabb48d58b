package escalation

import (
	"context"
	"time"

	"wisefido-crisis/internal/domain"
	"wisefido-crisis/internal/metrics"
	"wisefido-crisis/internal/notifier"

	"go.uber.org/zap"
)

// Run 周期性执行超时扫描，ctx 取消后退出
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Escalation sweep started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Escalation sweep stopped")
			return
		case <-ticker.C:
			if n := e.Sweep(ctx, e.now()); n > 0 {
				e.logger.Info("Escalations timed out", zap.Int("count", n))
			}
		}
	}
}

// Sweep 处理超过确认窗口的 dispatched 记录，返回本次标记为 timed_out 的数量
// 1. 先向运营商刷新一次未完成消息的状态（送达会经观察者推进到 acknowledged）
// 2. 仍为 dispatched 的记录标记 timed_out，并发出唯一一次运营人员信号
func (e *Engine) Sweep(ctx context.Context, now time.Time) int {
	e.prune(now)

	for _, runID := range e.overdue(now) {
		run, err := e.snapshot(runID)
		if err != nil {
			continue
		}
		if e.deps.Refresher != nil {
			for _, id := range run.MessageIDs() {
				msg, err := e.deps.Refresher.RefreshStatus(ctx, id)
				if err != nil {
					e.logger.Warn("Failed to refresh message status",
						zap.String("run_id", runID),
						zap.String("message_id", id),
						zap.Error(err),
					)
					continue
				}
				// 观察者未接线时直接在这里确认
				e.OnMessageDelivered(ctx, msg)
			}
		}
	}

	timedOut := 0
	for _, runID := range e.overdue(now) {
		signal, ok := e.markTimedOut(runID, now)
		if !ok {
			continue
		}
		timedOut++
		if err := e.deps.Operators.SignalTimeout(ctx, signal); err != nil {
			e.logger.Error("Failed to signal escalation timeout",
				zap.String("run_id", runID),
				zap.Error(err),
			)
		}
	}
	return timedOut
}

// overdue 已过截止时间仍为 dispatched 的记录
func (e *Engine) overdue(now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for id, rec := range e.runs {
		r := &rec.run
		if r.State == domain.StateDispatched && r.Deadline != nil && !now.Before(*r.Deadline) {
			ids = append(ids, id)
		}
	}
	return ids
}

// markTimedOut dispatched -> timed_out；只有真正完成迁移的调用方获得信号
func (e *Engine) markTimedOut(runID string, now time.Time) (notifier.TimeoutSignal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.runs[runID]
	if !ok || rec.run.State != domain.StateDispatched {
		return notifier.TimeoutSignal{}, false
	}
	rec.run.State = domain.StateTimedOut
	rec.run.TimedOutAt = &now
	metrics.PendingEscalations.Dec()
	metrics.EscalationStatesTotal.WithLabelValues(string(domain.StateTimedOut)).Inc()

	return notifier.TimeoutSignal{
		RunID:      rec.run.ID,
		EventID:    rec.run.Event.ID,
		SubjectID:  rec.run.Event.SubjectID,
		Level:      rec.run.Event.RiskLevel,
		MessageIDs: rec.run.MessageIDs(),
		Deadline:   *rec.run.Deadline,
		TimedOutAt: now,
	}, true
}

// prune 清理超过保留期的终态记录和 detected 记录
func (e *Engine) prune(now time.Time) {
	if e.policy.Retention <= 0 {
		return
	}
	cutoff := now.Add(-e.policy.Retention)
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, rec := range e.runs {
		r := &rec.run
		var settled *time.Time
		switch r.State {
		case domain.StateAcknowledged:
			settled = r.AcknowledgedAt
		case domain.StateTimedOut:
			settled = r.TimedOutAt
		case domain.StateDetected:
			if len(r.Actions) == 0 {
				settled = &r.CreatedAt
			}
		}
		if settled == nil || settled.After(cutoff) {
			continue
		}
		for _, mid := range r.MessageIDs() {
			delete(e.byMessage, mid)
		}
		delete(e.runs, id)
	}
}

package escalation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"wisefido-crisis/internal/catalog"
	"wisefido-crisis/internal/domain"
	"wisefido-crisis/internal/metrics"
	"wisefido-crisis/internal/notifier"
	"wisefido-crisis/internal/repository"
	"wisefido-crisis/internal/syncutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Messenger 引擎使用的短信能力（由 Messaging Gateway 实现）
// Enqueue 只创建 queued 记录；Deliver 执行一次运营商发送，运营商失败体现在返回消息的状态上
type Messenger interface {
	Enqueue(ctx context.Context, to, body string, crisisFlag bool) (*domain.Message, error)
	Deliver(ctx context.Context, msg *domain.Message) (*domain.Message, error)
}

// StatusRefresher 超时前向运营商刷新消息状态
type StatusRefresher interface {
	RefreshStatus(ctx context.Context, messageID string) (*domain.Message, error)
}

// ResourceLookup 资源目录查询
type ResourceLookup interface {
	TopResources(n int, filter catalog.Filter) []domain.CrisisResource
}

// Deps 引擎依赖
type Deps struct {
	Messenger  Messenger
	Refresher  StatusRefresher
	Resources  ResourceLookup
	RiskEvents repository.RiskEventsRepository
	Sessions   notifier.SessionAlerter
	Responders notifier.ResponderNotifier
	Operators  notifier.OperatorSignaler
}

// runRecord 升级记录及其内部标记
type runRecord struct {
	run domain.EscalationRun
	// delivered 派发完成前已有消息送达
	delivered bool
}

// Engine 升级引擎：detected -> routed -> dispatched -> acknowledged | timed_out
type Engine struct {
	deps   Deps
	policy Policy
	locks  *syncutil.KeyedMutex // 同一 subject 的事件按到达顺序处理
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex // 只保护下面的 map，不跨 I/O 持有
	runs      map[string]*runRecord
	byMessage map[string]string // message id -> run id
}

// NewEngine 创建升级引擎
func NewEngine(deps Deps, policy Policy, logger *zap.Logger) *Engine {
	return &Engine{
		deps:      deps,
		policy:    policy,
		locks:     syncutil.NewKeyedMutex(),
		logger:    logger,
		now:       time.Now,
		runs:      map[string]*runRecord{},
		byMessage: map[string]string{},
	}
}

// Escalate 记录风险事件并执行升级流程
// 派发顺序：auto_reply 同步完成后，依次启动 dispatch_resources 与 notify_responder，两者完成顺序不定
// 部分失败仍推进到 dispatched，不在此重试
// 调用方的 ctx 取消（如 webhook 请求超时）不会中断升级：已检测到的风险必须得到响应
func (e *Engine) Escalate(ctx context.Context, event domain.RiskEvent) (*domain.EscalationRun, error) {
	ctx = context.WithoutCancel(ctx)
	if event.SubjectID == "" {
		return nil, fmt.Errorf("%w: risk event subject is required", domain.ErrValidation)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = e.now()
	}
	if event.IndicatorsMatched == nil {
		event.IndicatorsMatched = []string{}
	}

	// 1. 写入风险事件日志（失败不阻断响应）
	if err := e.deps.RiskEvents.CreateRiskEvent(ctx, &event); err != nil {
		e.logger.Error("Failed to log risk event",
			zap.String("event_id", event.ID),
			zap.String("subject_id", event.SubjectID),
			zap.Error(err),
		)
	}
	metrics.RiskEventsTotal.WithLabelValues(string(event.SourceType), event.RiskLevel.String()).Inc()

	// 2. 同一 subject 串行
	unlock, err := e.locks.LockContext(ctx, event.SubjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 3. detected
	rec := &runRecord{run: domain.EscalationRun{
		ID:        uuid.NewString(),
		Event:     event,
		State:     domain.StateDetected,
		Actions:   []domain.EscalationAction{},
		CreatedAt: e.now(),
	}}
	e.mu.Lock()
	e.runs[rec.run.ID] = rec
	e.mu.Unlock()
	metrics.EscalationStatesTotal.WithLabelValues(string(domain.StateDetected)).Inc()

	planned := PlanActions(event)
	if len(planned) == 0 {
		e.logger.Info("Risk event below escalation threshold",
			zap.String("run_id", rec.run.ID),
			zap.String("risk_level", event.RiskLevel.String()),
		)
		return e.snapshot(rec.run.ID)
	}

	// 4. routed
	routedAt := e.now()
	var deadline *time.Time
	if w := e.policy.window(event.RiskLevel); w > 0 {
		d := routedAt.Add(w)
		deadline = &d
	}
	e.mu.Lock()
	rec.run.State = domain.StateRouted
	rec.run.RoutedAt = &routedAt
	rec.run.Deadline = deadline
	rec.run.Actions = slices.Clone(planned)
	e.mu.Unlock()
	metrics.EscalationStatesTotal.WithLabelValues(string(domain.StateRouted)).Inc()

	// 5. dispatched
	actions := e.dispatch(ctx, rec, planned)

	dispatchedAt := e.now()
	e.mu.Lock()
	rec.run.Actions = actions
	rec.run.DispatchedAt = &dispatchedAt
	switch {
	case rec.run.State == domain.StateAcknowledged:
		// 派发过程中已被响应人确认
	case rec.delivered:
		rec.run.State = domain.StateAcknowledged
		rec.run.AcknowledgedAt = &dispatchedAt
		rec.run.AcknowledgedBy = "delivery"
	default:
		rec.run.State = domain.StateDispatched
		metrics.PendingEscalations.Inc()
	}
	state := rec.run.State
	e.mu.Unlock()
	metrics.EscalationStatesTotal.WithLabelValues(string(domain.StateDispatched)).Inc()
	if state == domain.StateAcknowledged {
		metrics.EscalationStatesTotal.WithLabelValues(string(domain.StateAcknowledged)).Inc()
	}

	e.logger.Info("Escalation dispatched",
		zap.String("run_id", rec.run.ID),
		zap.String("subject_id", event.SubjectID),
		zap.String("risk_level", event.RiskLevel.String()),
		zap.Int("actions", len(actions)),
		zap.String("state", string(state)),
	)
	return e.snapshot(rec.run.ID)
}

// dispatch 按顺序派发动作，返回带结果的动作列表
func (e *Engine) dispatch(ctx context.Context, rec *runRecord, planned []domain.EscalationAction) []domain.EscalationAction {
	actions := slices.Clone(planned)
	e.mu.Lock()
	run := rec.run // 派发期间只读的副本
	e.mu.Unlock()

	var g errgroup.Group
	for i := range actions {
		a := &actions[i]
		switch a.Kind {
		case domain.ActionAutoReply:
			// 同步：保证被评估者最先收到即时回复
			e.autoReply(ctx, &run, a)
		case domain.ActionDispatchResources:
			if deliver := e.prepareResources(ctx, &run, a); deliver != nil {
				g.Go(func() error {
					deliver()
					return nil
				})
			}
		case domain.ActionNotifyResponder:
			g.Go(func() error {
				e.notifyResponder(ctx, &run, a)
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, a := range actions {
		result := "ok"
		if a.Error != "" {
			result = "failed"
		}
		metrics.EscalationActionsTotal.WithLabelValues(string(a.Kind), result).Inc()
	}
	return actions
}

// wantsSessionAlert 评估/人工来源，或没有联系号码时，走会话内告警
func wantsSessionAlert(ev domain.RiskEvent) bool {
	return ev.SourceType != domain.SourceMessage || ev.ContactAddress == ""
}

func (e *Engine) autoReply(ctx context.Context, run *domain.EscalationRun, a *domain.EscalationAction) {
	ev := run.Event
	var errs []string
	if ev.ContactAddress != "" {
		msg, err := e.send(ctx, run.ID, ev.ContactAddress, a.Payload)
		if msg != nil {
			a.ResultingMessageIDs = append(a.ResultingMessageIDs, msg.ID)
			if msg.Status == domain.MessageFailed {
				errs = append(errs, "auto-reply send failed: "+msg.FailureReason)
			}
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if wantsSessionAlert(ev) {
		if err := e.alertSession(ctx, run, a, nil); err != nil {
			errs = append(errs, err.Error())
		}
	}
	a.Error = joinErrors(errs)
}

// prepareResources 选取资源并创建 queued 消息；返回需异步执行的运营商投递
func (e *Engine) prepareResources(ctx context.Context, run *domain.EscalationRun, a *domain.EscalationAction) func() {
	ev := run.Event
	resources := e.deps.Resources.TopResources(a.ResourceCount, e.policy.ResourceFilter)
	if len(resources) == 0 {
		a.Error = "no crisis resources matched"
		return nil
	}
	for _, r := range resources {
		a.ResourceIDs = append(a.ResourceIDs, r.ID)
	}
	a.Payload = resourcesText(resources)

	var errs []string
	if wantsSessionAlert(ev) {
		if err := e.alertSession(ctx, run, a, a.ResourceIDs); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if ev.ContactAddress == "" {
		a.Error = joinErrors(errs)
		return nil
	}

	msg, err := e.deps.Messenger.Enqueue(ctx, ev.ContactAddress, a.Payload, true)
	if err != nil {
		errs = append(errs, err.Error())
		a.Error = joinErrors(errs)
		return nil
	}
	e.track(msg.ID, run.ID)
	a.ResultingMessageIDs = append(a.ResultingMessageIDs, msg.ID)
	a.Error = joinErrors(errs)

	return func() {
		out, err := e.deps.Messenger.Deliver(ctx, msg)
		switch {
		case err != nil:
			a.Error = joinErrors(append(errs, err.Error()))
		case out != nil && out.Status == domain.MessageFailed:
			a.Error = joinErrors(append(errs, "resource send failed: "+out.FailureReason))
		}
	}
}

func (e *Engine) notifyResponder(ctx context.Context, run *domain.EscalationRun, a *domain.EscalationAction) {
	ev := run.Event
	var errs []string
	alert := notifier.ResponderAlert{
		RunID:          run.ID,
		EventID:        ev.ID,
		SubjectID:      ev.SubjectID,
		ContactAddress: ev.ContactAddress,
		Source:         ev.SourceType,
		Level:          ev.RiskLevel,
		Indicators:     ev.IndicatorsMatched,
		Deadline:       run.Deadline,
		CreatedAt:      e.now(),
	}
	if err := e.deps.Responders.NotifyResponders(ctx, alert); err != nil {
		errs = append(errs, "responder notify failed: "+err.Error())
	}
	if e.policy.OnCallAddress != "" {
		body := onCallText(run)
		a.Payload = body
		msg, err := e.send(ctx, run.ID, e.policy.OnCallAddress, body)
		if msg != nil {
			a.ResultingMessageIDs = append(a.ResultingMessageIDs, msg.ID)
			if msg.Status == domain.MessageFailed {
				errs = append(errs, "on-call send failed: "+msg.FailureReason)
			}
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	a.Error = joinErrors(errs)
}

// send 创建并投递一条危机短信；创建后立即登记，保证送达回调能找到升级记录
func (e *Engine) send(ctx context.Context, runID, to, body string) (*domain.Message, error) {
	msg, err := e.deps.Messenger.Enqueue(ctx, to, body, true)
	if err != nil {
		return nil, err
	}
	e.track(msg.ID, runID)
	out, err := e.deps.Messenger.Deliver(ctx, msg)
	if out == nil {
		out = msg
	}
	return out, err
}

func (e *Engine) alertSession(ctx context.Context, run *domain.EscalationRun, a *domain.EscalationAction, resourceIDs []string) error {
	err := e.deps.Sessions.AlertSession(ctx, notifier.SessionAlert{
		RunID:       run.ID,
		EventID:     run.Event.ID,
		SubjectID:   run.Event.SubjectID,
		Source:      run.Event.SourceType,
		Level:       run.Event.RiskLevel,
		Kind:        a.Kind,
		Body:        a.Payload,
		ResourceIDs: resourceIDs,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return fmt.Errorf("session alert failed: %w", err)
	}
	return nil
}

func (e *Engine) track(messageID, runID string) {
	e.mu.Lock()
	e.byMessage[messageID] = runID
	e.mu.Unlock()
}

// OnMessageDelivered 升级产生的任一消息送达即视为确认
func (e *Engine) OnMessageDelivered(_ context.Context, msg *domain.Message) {
	if msg == nil || msg.Status != domain.MessageDelivered {
		return
	}
	now := e.now()
	e.mu.Lock()
	runID, ok := e.byMessage[msg.ID]
	if !ok {
		e.mu.Unlock()
		return
	}
	rec := e.runs[runID]
	if rec == nil {
		e.mu.Unlock()
		return
	}
	transitioned := false
	switch rec.run.State {
	case domain.StateDetected, domain.StateRouted:
		rec.delivered = true
	case domain.StateDispatched:
		rec.run.State = domain.StateAcknowledged
		rec.run.AcknowledgedAt = &now
		rec.run.AcknowledgedBy = "delivery"
		transitioned = true
	}
	e.mu.Unlock()

	if transitioned {
		metrics.PendingEscalations.Dec()
		metrics.EscalationStatesTotal.WithLabelValues(string(domain.StateAcknowledged)).Inc()
		e.logger.Info("Escalation acknowledged by delivery",
			zap.String("run_id", runID),
			zap.String("message_id", msg.ID),
		)
	}
}

// Acknowledge 响应人确认；对已确认的记录幂等，已超时返回 ErrConflict
func (e *Engine) Acknowledge(_ context.Context, runID, responder string) (*domain.EscalationRun, error) {
	if responder == "" {
		return nil, fmt.Errorf("%w: responder is required", domain.ErrValidation)
	}
	now := e.now()
	e.mu.Lock()
	rec, ok := e.runs[runID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: escalation %s", domain.ErrNotFound, runID)
	}
	wasDispatched := false
	switch rec.run.State {
	case domain.StateAcknowledged:
		// 幂等
	case domain.StateTimedOut:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: escalation %s already timed out", domain.ErrConflict, runID)
	case domain.StateDetected:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: escalation %s has no dispatched actions", domain.ErrConflict, runID)
	default:
		wasDispatched = rec.run.State == domain.StateDispatched
		rec.run.State = domain.StateAcknowledged
		rec.run.AcknowledgedAt = &now
		rec.run.AcknowledgedBy = responder
	}
	e.mu.Unlock()

	if wasDispatched {
		metrics.PendingEscalations.Dec()
	}
	e.logger.Info("Escalation acknowledged by responder",
		zap.String("run_id", runID),
		zap.String("responder", responder),
	)
	return e.snapshot(runID)
}

// GetRun 升级记录快照
func (e *Engine) GetRun(runID string) (*domain.EscalationRun, error) {
	return e.snapshot(runID)
}

func (e *Engine) snapshot(runID string) (*domain.EscalationRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: escalation %s", domain.ErrNotFound, runID)
	}
	return cloneRun(&rec.run), nil
}

func cloneRun(r *domain.EscalationRun) *domain.EscalationRun {
	cp := *r
	cp.Event.IndicatorsMatched = slices.Clone(r.Event.IndicatorsMatched)
	cp.Actions = make([]domain.EscalationAction, len(r.Actions))
	for i, a := range r.Actions {
		a.ResourceIDs = slices.Clone(a.ResourceIDs)
		a.ResultingMessageIDs = slices.Clone(a.ResultingMessageIDs)
		cp.Actions[i] = a
	}
	return &cp
}

func joinErrors(errs []string) string {
	out := ""
	for i, s := range errs {
		if i > 0 {
			out += "; "
		}
		out += s
	}
	return out
}

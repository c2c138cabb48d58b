package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"wisefido-crisis/internal/carrier"
	"wisefido-crisis/internal/classifier"
	"wisefido-crisis/internal/domain"
	"wisefido-crisis/internal/metrics"
	"wisefido-crisis/internal/repository"
	"wisefido-crisis/internal/syncutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Escalator 风险事件的处理方（升级引擎）
type Escalator interface {
	Escalate(ctx context.Context, event domain.RiskEvent) (*domain.EscalationRun, error)
}

// DeliveryObserver 消息进入 delivered 时回调
type DeliveryObserver interface {
	OnMessageDelivered(ctx context.Context, msg *domain.Message)
}

// MessagingGateway 短信网关：唯一持有并修改 Message 记录
type MessagingGateway struct {
	repo      repository.MessagesRepository
	carrier   carrier.Carrier
	vocab     *classifier.Vocabulary
	locks     *syncutil.KeyedMutex // 按 external id 串行化状态更新
	escalator Escalator
	observer  DeliveryObserver
	now       func() time.Time
	logger    *zap.Logger
}

// NewMessagingGateway 创建短信网关；vocab 为 nil 时使用内置词表
func NewMessagingGateway(repo repository.MessagesRepository, c carrier.Carrier, vocab *classifier.Vocabulary, logger *zap.Logger) *MessagingGateway {
	if vocab == nil {
		vocab = classifier.DefaultVocabulary()
	}
	return &MessagingGateway{
		repo:    repo,
		carrier: c,
		vocab:   vocab,
		locks:   syncutil.NewKeyedMutex(),
		now:     time.Now,
		logger:  logger,
	}
}

// SetEscalator 启动时设置（网关与引擎互相引用）
func (g *MessagingGateway) SetEscalator(e Escalator) { g.escalator = e }

// SetDeliveryObserver 启动时设置
func (g *MessagingGateway) SetDeliveryObserver(o DeliveryObserver) { g.observer = o }

// ============================================
// 发送
// ============================================

// Send 创建 queued 消息并尝试一次运营商发送
// 运营商拒绝/超时记录为 failed，不作为错误返回；只有缺失 to/body 返回 ErrValidation
func (g *MessagingGateway) Send(ctx context.Context, to, body string, crisisFlag bool) (*domain.Message, error) {
	msg, err := g.Enqueue(ctx, to, body, crisisFlag)
	if err != nil {
		return nil, err
	}
	return g.Deliver(ctx, msg)
}

// Enqueue 创建 queued 出站消息
func (g *MessagingGateway) Enqueue(ctx context.Context, to, body string, crisisFlag bool) (*domain.Message, error) {
	to = strings.TrimSpace(to)
	var missing []string
	if to == "" {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(body) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}

	now := g.now()
	msg := &domain.Message{
		ID:                  uuid.NewString(),
		Direction:           domain.DirectionOutbound,
		CounterpartyAddress: to,
		Body:                body,
		CrisisFlag:          crisisFlag,
		Status:              domain.MessageQueued,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := g.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	metrics.MessageTransitionsTotal.WithLabelValues(string(msg.Direction), string(msg.Status)).Inc()
	return msg, nil
}

// Deliver 对 queued 消息执行一次运营商发送
// 调用方取消 ctx 不会中断已开始的发送，耗时由运营商客户端超时约束
func (g *MessagingGateway) Deliver(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg == nil || msg.Status != domain.MessageQueued {
		return msg, nil
	}
	sendCtx := context.WithoutCancel(ctx)

	next := *msg
	externalID, err := g.carrier.Send(sendCtx, msg.CounterpartyAddress, msg.Body)
	next.UpdatedAt = g.now()
	if err != nil {
		next.Status = domain.MessageFailed
		next.FailureReason = failureReason(err)
		g.logger.Warn("Outbound message failed",
			zap.String("message_id", msg.ID),
			zap.String("to", msg.CounterpartyAddress),
			zap.Bool("crisis", msg.CrisisFlag),
			zap.String("reason", next.FailureReason),
		)
	} else {
		next.Status = domain.MessageSent
		next.ExternalMessageID = externalID
	}

	if err := g.repo.UpdateMessage(sendCtx, &next, domain.MessageQueued); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// 状态已被其他写入推进，以存储为准
			return g.repo.GetMessage(sendCtx, msg.ID)
		}
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	metrics.MessageTransitionsTotal.WithLabelValues(string(next.Direction), string(next.Status)).Inc()
	return &next, nil
}

// failureReason 运营商错误转为可持久化的失败原因
func failureReason(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "carrier timeout"
	}
	var cerr *carrier.Error
	if errors.As(err, &cerr) {
		return cerr.Description
	}
	return err.Error()
}

// ============================================
// 入站
// ============================================

// ReceiveInbound 保存入站消息（到达即 delivered），扫描危机指示词，命中则交给升级引擎
func (g *MessagingGateway) ReceiveInbound(ctx context.Context, from, to, body string) error {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" || strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: missing required fields: from, to, message", domain.ErrValidation)
	}

	indicators := g.vocab.Scan(classifier.MessageBody(body))
	now := g.now()
	msg := &domain.Message{
		ID:                  uuid.NewString(),
		Direction:           domain.DirectionInbound,
		CounterpartyAddress: from,
		LocalAddress:        to,
		Body:                body,
		CrisisFlag:          len(indicators) > 0,
		Status:              domain.MessageDelivered,
		CreatedAt:           now,
		UpdatedAt:           now,
		DeliveredAt:         &now,
	}
	if err := g.repo.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to store inbound message: %w", err)
	}
	metrics.MessageTransitionsTotal.WithLabelValues(string(msg.Direction), string(msg.Status)).Inc()

	if len(indicators) == 0 {
		return nil
	}

	g.logger.Warn("Crisis indicators detected in inbound message",
		zap.String("message_id", msg.ID),
		zap.String("from", from),
		zap.Strings("indicators", indicators),
	)
	if g.escalator == nil {
		return nil
	}
	event := domain.RiskEvent{
		ID:                uuid.NewString(),
		SourceType:        domain.SourceMessage,
		SubjectID:         from,
		ContactAddress:    from,
		RiskLevel:         classifier.IndicatorLevel(indicators),
		IndicatorsMatched: indicators,
		DetectedAt:        now,
	}
	// 入站消息已保存；升级失败只记录，避免运营商重投造成重复消息
	if _, err := g.escalator.Escalate(ctx, event); err != nil {
		g.logger.Error("Failed to escalate inbound crisis message",
			zap.String("message_id", msg.ID),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
	return nil
}

// ============================================
// 状态回调
// ============================================

// NormalizeStatus 运营商状态词汇映射到消息状态
func NormalizeStatus(raw string) (domain.MessageStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "delivered":
		return domain.MessageDelivered, nil
	case "sent", "buffered", "accepted", "scheduled":
		return domain.MessageSent, nil
	case "failed", "delivery_failed", "expired", "undelivered", "rejected":
		return domain.MessageFailed, nil
	}
	return "", fmt.Errorf("%w: unknown message status %q", domain.ErrValidation, raw)
}

// ReceiveStatusUpdate 应用运营商状态回调
// 只允许向前推进；回退或重复更新为无操作。未知 external id 返回 ErrNotFound
func (g *MessagingGateway) ReceiveStatusUpdate(ctx context.Context, externalID, status string, ts time.Time) (*domain.Message, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" || strings.TrimSpace(status) == "" {
		return nil, fmt.Errorf("%w: missing required fields: messageId, status", domain.ErrValidation)
	}
	next, err := NormalizeStatus(status)
	if err != nil {
		return nil, err
	}

	unlock, err := g.locks.LockContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	msg, entered, err := g.applyStatus(ctx, externalID, next, status, ts)
	unlock()
	if err != nil {
		return nil, err
	}

	if entered && g.observer != nil {
		g.observer.OnMessageDelivered(ctx, msg)
	}
	return msg, nil
}

// applyStatus 调用方持有 external id 锁；entered 表示本次进入 delivered
func (g *MessagingGateway) applyStatus(ctx context.Context, externalID string, next domain.MessageStatus, raw string, ts time.Time) (*domain.Message, bool, error) {
	msg, err := g.repo.GetMessageByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, err
	}
	if !msg.Status.CanTransitionTo(next) {
		g.logger.Debug("Ignoring non-forward status update",
			zap.String("message_id", msg.ID),
			zap.String("current", string(msg.Status)),
			zap.String("incoming", raw),
		)
		return msg, false, nil
	}

	prev := msg.Status
	now := g.now()
	updated := *msg
	updated.Status = next
	updated.UpdatedAt = now
	switch next {
	case domain.MessageDelivered:
		at := ts
		if at.IsZero() {
			at = now
		}
		updated.DeliveredAt = &at
	case domain.MessageFailed:
		updated.FailureReason = "carrier reported " + strings.ToLower(strings.TrimSpace(raw))
	}

	if err := g.repo.UpdateMessage(ctx, &updated, prev); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			current, gerr := g.repo.GetMessage(ctx, msg.ID)
			return current, false, gerr
		}
		return nil, false, fmt.Errorf("failed to update message status: %w", err)
	}
	metrics.MessageTransitionsTotal.WithLabelValues(string(updated.Direction), string(updated.Status)).Inc()

	g.logger.Info("Message status updated",
		zap.String("message_id", updated.ID),
		zap.String("external_id", externalID),
		zap.String("from", string(prev)),
		zap.String("to", string(updated.Status)),
	)
	return &updated, next == domain.MessageDelivered, nil
}

// RefreshStatus 主动向运营商查询状态，并走与回调相同的前向路径
// 终态或尚无 external id 的消息直接返回
func (g *MessagingGateway) RefreshStatus(ctx context.Context, messageID string) (*domain.Message, error) {
	msg, err := g.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Status.IsTerminal() || msg.ExternalMessageID == "" {
		return msg, nil
	}
	raw, err := g.carrier.FetchStatus(ctx, msg.ExternalMessageID)
	if err != nil {
		return msg, fmt.Errorf("failed to fetch carrier status: %w", err)
	}
	return g.ReceiveStatusUpdate(ctx, msg.ExternalMessageID, raw, time.Time{})
}

// GetHistory 按 created_at 升序返回某号码的全部消息；无消息时返回空切片
func (g *MessagingGateway) GetHistory(ctx context.Context, address string) ([]*domain.Message, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: phone number is required", domain.ErrValidation)
	}
	msgs, err := g.repo.ListMessagesByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return msgs, nil
}

package carrier

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Loopback 未配置运营商密钥时使用：接受全部消息但不真正发送
type Loopback struct {
	logger *zap.Logger
	mu     sync.Mutex
	sent   map[string]string // external id -> to
}

func NewLoopback(logger *zap.Logger) *Loopback {
	return &Loopback{logger: logger, sent: map[string]string{}}
}

var _ Carrier = (*Loopback)(nil)

func (l *Loopback) Send(_ context.Context, to, body string) (string, error) {
	id := uuid.NewString()
	l.mu.Lock()
	l.sent[id] = to
	l.mu.Unlock()
	l.logger.Info("Loopback carrier accepted message (not delivered)",
		zap.String("to", to),
		zap.String("external_id", id),
		zap.Int("body_length", len(body)),
	)
	return id, nil
}

func (l *Loopback) FetchStatus(_ context.Context, externalID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sent[externalID]; !ok {
		return "", &Error{StatusCode: 404, Description: "message not found"}
	}
	return "sent", nil
}

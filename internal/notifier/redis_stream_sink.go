package notifier

import (
	"context"
	"fmt"

	rediscommon "wisefido-crisis/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 流消息类型
const (
	MsgTypeSessionAlert  = "session_alert"
	MsgTypeTimeoutSignal = "escalation_timeout"
)

// RedisStreamSink 通过 Redis Streams 发布会话告警和超时信号
type RedisStreamSink struct {
	client        *redis.Client
	sessionStream string
	timeoutStream string
	maxLen        int64
	logger        *zap.Logger
}

func NewRedisStreamSink(client *redis.Client, sessionStream, timeoutStream string, maxLen int64, logger *zap.Logger) *RedisStreamSink {
	return &RedisStreamSink{
		client:        client,
		sessionStream: sessionStream,
		timeoutStream: timeoutStream,
		maxLen:        maxLen,
		logger:        logger,
	}
}

var (
	_ SessionAlerter   = (*RedisStreamSink)(nil)
	_ OperatorSignaler = (*RedisStreamSink)(nil)
)

func (s *RedisStreamSink) AlertSession(ctx context.Context, alert SessionAlert) error {
	id, err := rediscommon.PublishJSONToStream(ctx, s.client, s.sessionStream, s.maxLen, MsgTypeSessionAlert, alert)
	if err != nil {
		return fmt.Errorf("failed to publish session alert: %w", err)
	}
	s.logger.Debug("Session alert published",
		zap.String("stream", s.sessionStream),
		zap.String("stream_id", id),
		zap.String("run_id", alert.RunID),
	)
	return nil
}

func (s *RedisStreamSink) SignalTimeout(ctx context.Context, signal TimeoutSignal) error {
	id, err := rediscommon.PublishJSONToStream(ctx, s.client, s.timeoutStream, s.maxLen, MsgTypeTimeoutSignal, signal)
	if err != nil {
		return fmt.Errorf("failed to publish timeout signal: %w", err)
	}
	s.logger.Warn("Escalation timeout signal published",
		zap.String("stream", s.timeoutStream),
		zap.String("stream_id", id),
		zap.String("run_id", signal.RunID),
	)
	return nil
}

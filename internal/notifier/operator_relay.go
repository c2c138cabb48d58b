package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rediscommon "wisefido-crisis/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// OperatorRelay 消费超时信号流并转发给运维出口（如 MQTT 运维频道）
// 使用消费者组，多实例部署时每条信号只被处理一次
type OperatorRelay struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	forward  func(ctx context.Context, signal TimeoutSignal) error
	logger   *zap.Logger
}

func NewOperatorRelay(client *redis.Client, stream, group, consumer string,
	forward func(ctx context.Context, signal TimeoutSignal) error, logger *zap.Logger) *OperatorRelay {
	return &OperatorRelay{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		forward:  forward,
		logger:   logger,
	}
}

// Run 阻塞消费直到 ctx 结束
func (r *OperatorRelay) Run(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, r.client, r.stream, r.group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	r.logger.Info("Operator relay started",
		zap.String("stream", r.stream),
		zap.String("group", r.group),
	)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := r.poll(ctx, 2*time.Second); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("Failed to read timeout signals", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// poll 读取一批信号并转发；转发成功才 XACK
func (r *OperatorRelay) poll(ctx context.Context, block time.Duration) (int, error) {
	msgs, err := rediscommon.ReadFromStream(ctx, r.client, r.stream, r.group, r.consumer, 10, block)
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, m := range msgs {
		signal, err := decodeSignal(m.Values)
		if err != nil {
			// 无法解析的消息直接确认，避免反复投递
			r.logger.Warn("Dropping malformed timeout signal", zap.String("id", m.ID), zap.Error(err))
			r.client.XAck(ctx, r.stream, r.group, m.ID)
			continue
		}
		if err := r.forward(ctx, signal); err != nil {
			r.logger.Error("Failed to forward timeout signal", zap.String("run_id", signal.RunID), zap.Error(err))
			continue
		}
		if err := r.client.XAck(ctx, r.stream, r.group, m.ID).Err(); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}

func decodeSignal(values map[string]interface{}) (TimeoutSignal, error) {
	data, ok := values["data"].(string)
	if !ok {
		return TimeoutSignal{}, fmt.Errorf("missing data field")
	}
	var signal TimeoutSignal
	if err := json.Unmarshal([]byte(data), &signal); err != nil {
		return TimeoutSignal{}, err
	}
	return signal, nil
}

// MQTTOperatorForwarder 将超时信号发布到运维 MQTT 主题
func MQTTOperatorForwarder(publisher Publisher, topic string, qos byte) func(ctx context.Context, signal TimeoutSignal) error {
	return func(_ context.Context, signal TimeoutSignal) error {
		payload, err := json.Marshal(signal)
		if err != nil {
			return err
		}
		return publisher.Publish(topic, qos, false, payload)
	}
}

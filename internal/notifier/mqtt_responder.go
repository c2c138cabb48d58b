package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Publisher MQTT 发布能力（common/mqtt.Client 满足该接口）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTResponderNotifier 通过 MQTT 向响应人终端推送告警
type MQTTResponderNotifier struct {
	publisher Publisher
	topic     string
	qos       byte
	logger    *zap.Logger
}

func NewMQTTResponderNotifier(publisher Publisher, topic string, qos byte, logger *zap.Logger) *MQTTResponderNotifier {
	return &MQTTResponderNotifier{publisher: publisher, topic: topic, qos: qos, logger: logger}
}

var _ ResponderNotifier = (*MQTTResponderNotifier)(nil)

// NotifyResponders 发布到 {topic}/{risk_level}，便于响应端按等级订阅
func (n *MQTTResponderNotifier) NotifyResponders(ctx context.Context, alert ResponderAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal responder alert: %w", err)
	}
	topic := strings.TrimRight(n.topic, "/") + "/" + alert.Level.String()
	if err := n.publisher.Publish(topic, n.qos, false, payload); err != nil {
		return err
	}
	n.logger.Info("Responder alert published",
		zap.String("topic", topic),
		zap.String("run_id", alert.RunID),
	)
	return nil
}

// Ack 响应人确认消息（MQTT 上行）
type Ack struct {
	RunID     string `json:"run_id"`
	Responder string `json:"responder"`
}

// ParseAck 解析确认消息
func ParseAck(payload []byte) (Ack, error) {
	var ack Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		return Ack{}, fmt.Errorf("invalid ack payload: %w", err)
	}
	if ack.RunID == "" || ack.Responder == "" {
		return Ack{}, fmt.Errorf("invalid ack payload: run_id and responder are required")
	}
	return ack, nil
}

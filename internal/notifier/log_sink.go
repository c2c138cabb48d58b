package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogSink Redis/MQTT 未启用时的日志出口
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

var (
	_ SessionAlerter    = (*LogSink)(nil)
	_ ResponderNotifier = (*LogSink)(nil)
	_ OperatorSignaler  = (*LogSink)(nil)
)

func (s *LogSink) AlertSession(_ context.Context, alert SessionAlert) error {
	s.logger.Info("Session alert",
		zap.String("run_id", alert.RunID),
		zap.String("subject_id", alert.SubjectID),
		zap.String("kind", string(alert.Kind)),
		zap.String("risk_level", alert.Level.String()),
		zap.Strings("resource_ids", alert.ResourceIDs),
	)
	return nil
}

func (s *LogSink) NotifyResponders(_ context.Context, alert ResponderAlert) error {
	s.logger.Warn("Responder alert",
		zap.String("run_id", alert.RunID),
		zap.String("subject_id", alert.SubjectID),
		zap.String("risk_level", alert.Level.String()),
		zap.Strings("indicators", alert.Indicators),
	)
	return nil
}

func (s *LogSink) SignalTimeout(_ context.Context, signal TimeoutSignal) error {
	s.logger.Error("Escalation timed out without acknowledgment",
		zap.String("run_id", signal.RunID),
		zap.String("subject_id", signal.SubjectID),
		zap.String("risk_level", signal.Level.String()),
		zap.Time("deadline", signal.Deadline),
	)
	return nil
}

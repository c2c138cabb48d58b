package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-crisis/internal/classifier"
	"wisefido-crisis/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CrisisAlertService 人工危机告警（运营人员代为触发）
type CrisisAlertService struct {
	vocab     *classifier.Vocabulary
	escalator Escalator
	now       func() time.Time
	logger    *zap.Logger
}

func NewCrisisAlertService(vocab *classifier.Vocabulary, escalator Escalator, logger *zap.Logger) *CrisisAlertService {
	if vocab == nil {
		vocab = classifier.DefaultVocabulary()
	}
	return &CrisisAlertService{vocab: vocab, escalator: escalator, now: time.Now, logger: logger}
}

// RaiseAlert severity 为空或无法识别时按 high 处理；人工告警总是包含即时回复和资源短信
func (s *CrisisAlertService) RaiseAlert(ctx context.Context, phoneNumber, message, severity string) (*domain.EscalationRun, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: missing required fields: phoneNumber, message", domain.ErrValidation)
	}
	level := domain.RiskHigh
	if strings.TrimSpace(severity) != "" {
		parsed, err := domain.ParseRiskLevel(severity)
		if err != nil {
			s.logger.Warn("Unknown crisis alert severity, using high",
				zap.String("severity", severity),
				zap.Error(err),
			)
		} else {
			level = parsed
		}
	}

	event := domain.RiskEvent{
		ID:                uuid.NewString(),
		SourceType:        domain.SourceManual,
		SubjectID:         phoneNumber,
		ContactAddress:    phoneNumber,
		RiskLevel:         level,
		IndicatorsMatched: s.vocab.Scan(classifier.MessageBody(message)),
		DetectedAt:        s.now(),
	}
	s.logger.Info("Manual crisis alert",
		zap.String("event_id", event.ID),
		zap.String("phone", phoneNumber),
		zap.String("severity", level.String()),
	)
	return s.escalator.Escalate(ctx, event)
}

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

// AssessmentSource 问卷定义来源
type AssessmentSource interface {
	Assessment(id string) (domain.Assessment, error)
}

// AssessmentService 评估提交：计分、分级、扫描指示词，危机时升级
type AssessmentService struct {
	assessments AssessmentSource
	vocab       *classifier.Vocabulary
	escalator   Escalator
	now         func() time.Time
	logger      *zap.Logger
}

func NewAssessmentService(assessments AssessmentSource, vocab *classifier.Vocabulary, escalator Escalator, logger *zap.Logger) *AssessmentService {
	if vocab == nil {
		vocab = classifier.DefaultVocabulary()
	}
	return &AssessmentService{
		assessments: assessments,
		vocab:       vocab,
		escalator:   escalator,
		now:         time.Now,
		logger:      logger,
	}
}

// SubmitAssessmentRequest 提交请求
type SubmitAssessmentRequest struct {
	AssessmentID   string
	SubjectID      string
	ContactAddress string
	Responses      []domain.QuestionResponse
}

// SubmitAssessmentResult 提交结果
type SubmitAssessmentResult struct {
	AssessmentID   string                      `json:"assessment_id"`
	SubjectID      string                      `json:"subject_id"`
	Score          float64                     `json:"score"`
	CategoryScores map[string]float64          `json:"category_scores,omitempty"`
	ScoreLevel     domain.RiskLevel            `json:"score_level"`
	RiskLevel      domain.RiskLevel            `json:"risk_level"`
	Clamped        bool                        `json:"clamped,omitempty"`
	Indicators     []string                    `json:"indicators_matched"`
	CrisisDetected bool                        `json:"crisis_detected"`
	Definition     *domain.RiskLevelDefinition `json:"definition,omitempty"`
	Escalation     *domain.EscalationRun       `json:"escalation,omitempty"`
}

// Submit 有效等级取分数等级与指示词等级的较高者
func (s *AssessmentService) Submit(ctx context.Context, req SubmitAssessmentRequest) (*SubmitAssessmentResult, error) {
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	if req.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", domain.ErrValidation)
	}
	a, err := s.assessments.Assessment(req.AssessmentID)
	if err != nil {
		return nil, err
	}

	// 1. 计分与分级
	c, err := classifier.ClassifyAssessment(a, req.Responses)
	if err != nil {
		return nil, err
	}
	if c.Clamped {
		s.logger.Warn("Assessment score outside defined intervals",
			zap.String("assessment_id", a.ID),
			zap.Float64("score", c.Score),
			zap.String("clamped_to", c.Level.String()),
		)
	}

	// 2. 指示词扫描
	indicators := s.vocab.Scan(classifier.AssessmentResponses(req.Responses))
	level := c.Level
	if il := classifier.IndicatorLevel(indicators); il > level {
		level = il
	}

	result := &SubmitAssessmentResult{
		AssessmentID:   a.ID,
		SubjectID:      req.SubjectID,
		Score:          c.Score,
		CategoryScores: c.CategoryScores,
		ScoreLevel:     c.Level,
		RiskLevel:      level,
		Clamped:        c.Clamped,
		Indicators:     indicators,
		CrisisDetected: domain.CrisisDetected(level, indicators),
		Definition:     c.Definition,
	}
	if !result.CrisisDetected || s.escalator == nil {
		return result, nil
	}

	// 3. 升级
	run, err := s.escalator.Escalate(ctx, domain.RiskEvent{
		ID:                uuid.NewString(),
		SourceType:        domain.SourceAssessment,
		SubjectID:         req.SubjectID,
		ContactAddress:    strings.TrimSpace(req.ContactAddress),
		RawScore:          c.Score,
		RiskLevel:         level,
		IndicatorsMatched: indicators,
		Clamped:           c.Clamped,
		DetectedAt:        s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to escalate assessment: %w", err)
	}
	result.Escalation = run
	return result, nil
}

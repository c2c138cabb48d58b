package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RiskLevel 风险等级（有序：NoRisk < Low < Moderate < High < Severe < Crisis）
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskModerate
	RiskHigh
	RiskSevere
	RiskCrisis
)

var riskLevelNames = [...]string{
	RiskNone:     "no_risk",
	RiskLow:      "low_risk",
	RiskModerate: "moderate_risk",
	RiskHigh:     "high_risk",
	RiskSevere:   "severe_risk",
	RiskCrisis:   "crisis",
}

func (l RiskLevel) String() string {
	if l < RiskNone || l > RiskCrisis {
		return fmt.Sprintf("risk_level(%d)", int(l))
	}
	return riskLevelNames[l]
}

// ParseRiskLevel 解析风险等级，支持 "high_risk" 与简写 "high"
func ParseRiskLevel(s string) (RiskLevel, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "_risk")
	switch v {
	case "no", "none", "no_risk":
		return RiskNone, nil
	case "low":
		return RiskLow, nil
	case "moderate", "medium":
		return RiskModerate, nil
	case "high":
		return RiskHigh, nil
	case "severe":
		return RiskSevere, nil
	case "crisis", "critical":
		return RiskCrisis, nil
	}
	return RiskNone, fmt.Errorf("%w: unknown risk level %q", ErrValidation, s)
}

func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *RiskLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// RiskLevelDefinition 分数区间 [MinScore, MaxScore) 到风险等级的映射
type RiskLevelDefinition struct {
	Level                  RiskLevel `json:"level"`
	MinScore               float64   `json:"min_score"`
	MaxScore               float64   `json:"max_score"`
	Description            string    `json:"description,omitempty"`
	Recommendations        []string  `json:"recommendations,omitempty"`
	CrisisResourceIDs      []string  `json:"crisis_resource_ids,omitempty"`
	ProfessionalReferral   bool      `json:"professional_referral"`
	FollowUpRequired       bool      `json:"follow_up_required"`
	FollowUpTimeframeHours int       `json:"follow_up_timeframe_hours,omitempty"`
}

// RiskSource 风险事件来源
type RiskSource string

const (
	SourceAssessment RiskSource = "assessment"
	SourceMessage    RiskSource = "message"
	SourceManual     RiskSource = "manual"
)

// RiskEvent 风险事件（创建后不可变）
type RiskEvent struct {
	ID                string     `json:"id"`
	SourceType        RiskSource `json:"source_type"`
	SubjectID         string     `json:"subject_id"`
	ContactAddress    string     `json:"contact_address,omitempty"` // 可为空：仅会话内提醒
	RawScore          float64    `json:"raw_score"`
	RiskLevel         RiskLevel  `json:"risk_level"`
	IndicatorsMatched []string   `json:"indicators_matched"`
	Clamped           bool       `json:"clamped,omitempty"` // 分数超出定义区间被钳制
	DetectedAt        time.Time  `json:"detected_at"`
}

// CrisisDetected 系统级危机判定：等级 ≥ High 或命中任一危机指示词
func CrisisDetected(level RiskLevel, indicators []string) bool {
	return level >= RiskHigh || len(indicators) > 0
}

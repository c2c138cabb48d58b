package domain

import "encoding/json"

// ScoringMethod 评估计分方式
type ScoringMethod string

const (
	ScoringSum         ScoringMethod = "sum"
	ScoringAverage     ScoringMethod = "average"
	ScoringWeightedSum ScoringMethod = "weighted_sum"
	ScoringCategorySum ScoringMethod = "category_sum"
	ScoringCustom      ScoringMethod = "custom"
)

// QuestionType 题型
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionScale          QuestionType = "scale"
	QuestionText           QuestionType = "text"
	QuestionBoolean        QuestionType = "boolean"
	QuestionCheckbox       QuestionType = "checkbox"
)

// Assessment 评估问卷定义
type Assessment struct {
	ID            string                `json:"id"`
	Type          string                `json:"type"` // depression | anxiety | suicide_risk ...
	Title         string                `json:"title"`
	Questions     []Question            `json:"questions"`
	ScoringMethod ScoringMethod         `json:"scoring_method"`
	RiskLevels    []RiskLevelDefinition `json:"risk_levels"`
}

// Question 问题
type Question struct {
	ID       string           `json:"id"`
	Text     string           `json:"question_text"`
	Type     QuestionType     `json:"question_type"`
	Options  []QuestionOption `json:"options,omitempty"`
	ScaleMin *float64         `json:"scale_min,omitempty"`
	ScaleMax *float64         `json:"scale_max,omitempty"`
	Required bool             `json:"required"`
	Category string           `json:"category,omitempty"`
	Weight   *float64         `json:"weight,omitempty"`
}

// QuestionOption 选项
type QuestionOption struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// QuestionResponse 单题回答；Value 可能是数字、布尔、字符串或字符串数组
type QuestionResponse struct {
	QuestionID string          `json:"question_id"`
	Value      json.RawMessage `json:"response_value"`
	Text       string          `json:"response_text,omitempty"`
}

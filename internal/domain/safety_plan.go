package domain

import "time"

// SafetyPlanStatus 安全计划状态（计划从不物理删除，只会被新计划替代）
type SafetyPlanStatus string

const (
	PlanActive     SafetyPlanStatus = "active"
	PlanSuperseded SafetyPlanStatus = "superseded"
)

// SafetyPlan 用户安全计划
type SafetyPlan struct {
	ID                   string                `json:"id"`
	UserID               string                `json:"user_id"`
	Status               SafetyPlanStatus      `json:"status"`
	SupersededBy         string                `json:"superseded_by,omitempty"`
	WarningSigns         []string              `json:"warning_signs"`
	CopingStrategies     []CopingStrategy      `json:"coping_strategies"`
	SupportContacts      []SupportContact      `json:"support_contacts"`
	ProfessionalContacts []ProfessionalContact `json:"professional_contacts"`
	EmergencyPlan        EmergencyPlan         `json:"emergency_plan"`
	CommitmentStatement  string                `json:"commitment_statement"`
	ReviewSchedule       ReviewSchedule        `json:"review_schedule"`
	CompletionPercentage int                   `json:"completion_percentage"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

type CopingStrategy struct {
	ID                   string `json:"id"`
	Category             string `json:"category"` // physical | emotional | cognitive | social | spiritual | creative
	Description          string `json:"description"`
	EffectivenessRating  int    `json:"effectiveness_rating"`
	EstimatedTimeMinutes int    `json:"estimated_time_minutes,omitempty"`
}

type SupportContact struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Relationship       string `json:"relationship"`
	Phone              string `json:"phone"`
	Availability       string `json:"availability,omitempty"`
	BestContactMethod  string `json:"best_contact_method,omitempty"` // phone | text | email | in_person
	IsEmergencyContact bool   `json:"is_emergency_contact"`
}

type ProfessionalContact struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title,omitempty"`
	Organization string `json:"organization,omitempty"`
	Phone        string `json:"phone"`
	CrisisLine   string `json:"crisis_line,omitempty"`
}

type EmergencyPlan struct {
	ImmediateActions []string        `json:"immediate_actions"`
	CrisisHotlines   []CrisisHotline `json:"crisis_hotlines"`
	HospitalOptions  []string        `json:"hospital_options"`
	WhoToContact     []string        `json:"who_to_contact"`
}

type CrisisHotline struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Text  string `json:"text,omitempty"`
	Hours string `json:"hours,omitempty"`
}

type ReviewSchedule struct {
	Frequency       string    `json:"frequency"` // daily | weekly | monthly | as_needed
	NextReviewDate  time.Time `json:"next_review_date"`
	ReviewReminders bool      `json:"review_reminders"`
}

// SafetyPlanUpdate 局部更新（nil 字段保持不变）
type SafetyPlanUpdate struct {
	WarningSigns         *[]string              `json:"warning_signs,omitempty"`
	CopingStrategies     *[]CopingStrategy      `json:"coping_strategies,omitempty"`
	SupportContacts      *[]SupportContact      `json:"support_contacts,omitempty"`
	ProfessionalContacts *[]ProfessionalContact `json:"professional_contacts,omitempty"`
	EmergencyPlan        *EmergencyPlan         `json:"emergency_plan,omitempty"`
	CommitmentStatement  *string                `json:"commitment_statement,omitempty"`
	ReviewSchedule       *ReviewSchedule        `json:"review_schedule,omitempty"`
}

// Apply 合并局部更新并重新计算完成度
func (p *SafetyPlan) Apply(u SafetyPlanUpdate, now time.Time) {
	if u.WarningSigns != nil {
		p.WarningSigns = *u.WarningSigns
	}
	if u.CopingStrategies != nil {
		p.CopingStrategies = *u.CopingStrategies
	}
	if u.SupportContacts != nil {
		p.SupportContacts = *u.SupportContacts
	}
	if u.ProfessionalContacts != nil {
		p.ProfessionalContacts = *u.ProfessionalContacts
	}
	if u.EmergencyPlan != nil {
		p.EmergencyPlan = *u.EmergencyPlan
	}
	if u.CommitmentStatement != nil {
		p.CommitmentStatement = *u.CommitmentStatement
	}
	if u.ReviewSchedule != nil {
		p.ReviewSchedule = *u.ReviewSchedule
	}
	p.CompletionPercentage = p.Completion()
	p.UpdatedAt = now
}

// Completion 完成度：六个核心部分各占相同权重
func (p *SafetyPlan) Completion() int {
	sections := []bool{
		len(p.WarningSigns) > 0,
		len(p.CopingStrategies) > 0,
		len(p.SupportContacts) > 0,
		len(p.ProfessionalContacts) > 0,
		len(p.EmergencyPlan.ImmediateActions) > 0 || len(p.EmergencyPlan.CrisisHotlines) > 0,
		p.CommitmentStatement != "",
	}
	done := 0
	for _, ok := range sections {
		if ok {
			done++
		}
	}
	return done * 100 / len(sections)
}

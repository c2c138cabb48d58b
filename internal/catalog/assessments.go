package catalog

import (
	"fmt"
	"sort"
	"sync"

	"wisefido-crisis/internal/classifier"
	"wisefido-crisis/internal/domain"
)

// AssessmentRegistry 评估问卷注册表；注册时校验风险区间覆盖完整分数范围
type AssessmentRegistry struct {
	mu          sync.RWMutex
	assessments map[string]domain.Assessment
}

// NewAssessmentRegistry 创建注册表并载入内置问卷
func NewAssessmentRegistry(extra ...domain.Assessment) (*AssessmentRegistry, error) {
	r := &AssessmentRegistry{assessments: map[string]domain.Assessment{}}
	for _, a := range append(BuiltinAssessments(), extra...) {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 注册问卷
func (r *AssessmentRegistry) Register(a domain.Assessment) error {
	if a.ID == "" || len(a.Questions) == 0 {
		return fmt.Errorf("%w: assessment id and questions are required", domain.ErrValidation)
	}
	lo, hi := classifier.ScoreRange(a)
	if err := classifier.ValidateDefinitions(a.RiskLevels, lo, hi); err != nil {
		return fmt.Errorf("assessment %s: %w", a.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assessments[a.ID] = a
	return nil
}

// Assessment 按 ID 查询问卷
func (r *AssessmentRegistry) Assessment(id string) (domain.Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assessments[id]
	if !ok {
		return domain.Assessment{}, fmt.Errorf("%w: assessment %s", domain.ErrNotFound, id)
	}
	return a, nil
}

// IDs 已注册问卷 ID
func (r *AssessmentRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.assessments))
	for id := range r.assessments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// frequencyOptions PHQ/GAD 通用频率选项
func frequencyOptions() []domain.QuestionOption {
	return []domain.QuestionOption{
		{ID: "not_at_all", Text: "Not at all", Value: 0},
		{ID: "several_days", Text: "Several days", Value: 1},
		{ID: "more_than_half", Text: "More than half the days", Value: 2},
		{ID: "nearly_every_day", Text: "Nearly every day", Value: 3},
	}
}

func frequencyQuestions(prefix string, texts []string) []domain.Question {
	qs := make([]domain.Question, 0, len(texts))
	for i, text := range texts {
		qs = append(qs, domain.Question{
			ID:       fmt.Sprintf("%s_%d", prefix, i+1),
			Text:     text,
			Type:     domain.QuestionMultipleChoice,
			Options:  frequencyOptions(),
			Required: true,
		})
	}
	return qs
}

// BuiltinAssessments 内置问卷：PHQ-9、GAD-7
func BuiltinAssessments() []domain.Assessment {
	phq9 := domain.Assessment{
		ID:            "phq-9",
		Type:          "depression",
		Title:         "Patient Health Questionnaire (PHQ-9)",
		ScoringMethod: domain.ScoringSum,
		Questions: frequencyQuestions("phq9", []string{
			"Little interest or pleasure in doing things",
			"Feeling down, depressed, or hopeless",
			"Trouble falling or staying asleep, or sleeping too much",
			"Feeling tired or having little energy",
			"Poor appetite or overeating",
			"Feeling bad about yourself, or that you are a failure",
			"Trouble concentrating on things",
			"Moving or speaking so slowly that other people could have noticed, or being fidgety or restless",
			"Thoughts that you would be better off dead, or of hurting yourself",
		}),
		RiskLevels: []domain.RiskLevelDefinition{
			{Level: domain.RiskNone, MinScore: 0, MaxScore: 5, Description: "Minimal depression"},
			{Level: domain.RiskLow, MinScore: 5, MaxScore: 10, Description: "Mild depression",
				Recommendations: []string{"Watchful waiting; repeat PHQ-9 at follow-up"}},
			{Level: domain.RiskModerate, MinScore: 10, MaxScore: 15, Description: "Moderate depression",
				Recommendations: []string{"Consider counseling or therapy"}, ProfessionalReferral: true,
				FollowUpRequired: true, FollowUpTimeframeHours: 168},
			{Level: domain.RiskHigh, MinScore: 15, MaxScore: 20, Description: "Moderately severe depression",
				Recommendations: []string{"Active treatment with a professional"}, ProfessionalReferral: true,
				CrisisResourceIDs: []string{"988-lifeline"}, FollowUpRequired: true, FollowUpTimeframeHours: 72},
			{Level: domain.RiskSevere, MinScore: 20, MaxScore: 27, Description: "Severe depression",
				Recommendations: []string{"Immediate professional evaluation"}, ProfessionalReferral: true,
				CrisisResourceIDs: []string{"988-lifeline", "crisis-text-line"}, FollowUpRequired: true, FollowUpTimeframeHours: 24},
		},
	}

	gad7 := domain.Assessment{
		ID:            "gad-7",
		Type:          "anxiety",
		Title:         "Generalized Anxiety Disorder (GAD-7)",
		ScoringMethod: domain.ScoringSum,
		Questions: frequencyQuestions("gad7", []string{
			"Feeling nervous, anxious, or on edge",
			"Not being able to stop or control worrying",
			"Worrying too much about different things",
			"Trouble relaxing",
			"Being so restless that it is hard to sit still",
			"Becoming easily annoyed or irritable",
			"Feeling afraid, as if something awful might happen",
		}),
		RiskLevels: []domain.RiskLevelDefinition{
			{Level: domain.RiskNone, MinScore: 0, MaxScore: 5, Description: "Minimal anxiety"},
			{Level: domain.RiskLow, MinScore: 5, MaxScore: 10, Description: "Mild anxiety"},
			{Level: domain.RiskModerate, MinScore: 10, MaxScore: 15, Description: "Moderate anxiety",
				ProfessionalReferral: true, FollowUpRequired: true, FollowUpTimeframeHours: 168},
			{Level: domain.RiskHigh, MinScore: 15, MaxScore: 21, Description: "Severe anxiety",
				ProfessionalReferral: true, FollowUpRequired: true, FollowUpTimeframeHours: 72},
		},
	}
	return []domain.Assessment{phq9, gad7}
}

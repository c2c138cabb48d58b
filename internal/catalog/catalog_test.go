package catalog

import (
	"encoding/json"
	"testing"

	"wisefido-crisis/internal/classifier"
	"wisefido-crisis/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(rs []domain.CrisisResource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestTopResources_OrderAndLimit(t *testing.T) {
	c := NewDefault()

	assert.Equal(t, []string{"988-lifeline", "crisis-text-line"}, ids(c.TopResources(2, Filter{})))
	assert.Equal(t, []string{"988-lifeline"}, ids(c.TopResources(1, Filter{})))

	// 同优先级按 ID 排序
	all := ids(c.All())
	assert.Equal(t, []string{"988-lifeline", "crisis-text-line", "trevor-project", "veterans-crisis-line", "samhsa-helpline"}, all)
}

func TestTopResources_FilterBeforeRanking(t *testing.T) {
	c, err := New(
		domain.CrisisResource{ID: "b", Name: "B", Phone: "1", PriorityLevel: 1, Languages: []string{"English"}, ServiceTypes: []string{"suicide_prevention"}},
		domain.CrisisResource{ID: "a", Name: "A", Phone: "2", PriorityLevel: 5, Languages: []string{"Spanish"}, ServiceTypes: []string{"suicide_prevention"}, Hours: domain.Hours24x7},
		domain.CrisisResource{ID: "c", Name: "C", Phone: "3", PriorityLevel: 2, Languages: []string{"spanish"},
			Coverage: domain.CoverageArea{Type: "state", Codes: []string{"CA"}}},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a"}, ids(c.TopResources(5, Filter{Language: "Spanish"})))
	assert.Equal(t, []string{"b"}, ids(c.TopResources(1, Filter{ServiceType: "suicide_prevention"})))
	assert.Equal(t, []string{"a"}, ids(c.TopResources(0, Filter{Only24x7: true})))
	assert.Empty(t, c.TopResources(3, Filter{NationalOnly: true}))
	assert.Equal(t, []string{"c"}, ids(c.TopResources(3, Filter{CoverageCode: "ca"})))
}

func TestTopResources_MaxPriority(t *testing.T) {
	c, err := New(
		domain.CrisisResource{ID: "p3", Name: "P3", Phone: "3", PriorityLevel: 3},
		domain.CrisisResource{ID: "p1", Name: "P1", Phone: "1", PriorityLevel: 1},
		domain.CrisisResource{ID: "p2", Name: "P2", Phone: "2", PriorityLevel: 2},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2"}, ids(c.TopResources(0, Filter{MaxPriority: 2})))
	assert.Equal(t, []string{"p1"}, ids(c.TopResources(0, Filter{MaxPriority: 1})))
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(c.TopResources(0, Filter{})))
	assert.Equal(t, []string{"p1", "p2"}, ids(c.EmergencyContacts()))

	assert.Equal(t, []string{"988-lifeline", "crisis-text-line"}, ids(NewDefault().EmergencyContacts()))
}

func TestCatalog_AddAndGet(t *testing.T) {
	c := NewDefault()

	_, err := c.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = c.Add(domain.CrisisResource{ID: "988-lifeline", Name: "dup", Phone: "988"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = c.Add(domain.CrisisResource{ID: "x", Name: "no channel"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	r, err := c.Get("crisis-text-line")
	require.NoError(t, err)
	assert.Equal(t, 2, r.PriorityLevel)

	assert.Equal(t, []string{"crisis-text-line", "988-lifeline"}, ids(c.ByIDs([]string{"crisis-text-line", "nope", "988-lifeline"})))
}

func answers(a domain.Assessment, optionID string) []domain.QuestionResponse {
	out := make([]domain.QuestionResponse, 0, len(a.Questions))
	for _, q := range a.Questions {
		v, _ := json.Marshal(optionID)
		out = append(out, domain.QuestionResponse{QuestionID: q.ID, Value: v})
	}
	return out
}

func TestBuiltinAssessments(t *testing.T) {
	reg, err := NewAssessmentRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"gad-7", "phq-9"}, reg.IDs())

	phq9, err := reg.Assessment("phq-9")
	require.NoError(t, err)
	lo, hi := classifier.ScoreRange(phq9)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 27.0, hi)

	c, err := classifier.ClassifyAssessment(phq9, answers(phq9, "nearly_every_day"))
	require.NoError(t, err)
	assert.Equal(t, 27.0, c.Score)
	assert.Equal(t, domain.RiskSevere, c.Level)
	assert.False(t, c.Clamped)

	gad7, err := reg.Assessment("gad-7")
	require.NoError(t, err)
	c, err = classifier.ClassifyAssessment(gad7, answers(gad7, "several_days"))
	require.NoError(t, err)
	assert.Equal(t, 7.0, c.Score)
	assert.Equal(t, domain.RiskLow, c.Level)

	_, err = reg.Assessment("bdi")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssessmentRegistry_RejectsUncoveredRange(t *testing.T) {
	reg, err := NewAssessmentRegistry()
	require.NoError(t, err)

	bad := BuiltinAssessments()[1]
	bad.ID = "gad-7-short"
	bad.RiskLevels = bad.RiskLevels[:3] // 只覆盖到 15，分数上限 21
	assert.ErrorIs(t, reg.Register(bad), domain.ErrValidation)
}

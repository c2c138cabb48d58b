package classifier

import (
	"encoding/json"
	"testing"

	"wisefido-crisis/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanForCrisisIndicators_CaseInsensitiveSubstring(t *testing.T) {
	got := ScanForCrisisIndicators(StructuredNote{"note": "possible SUICIDE risk"})
	assert.Contains(t, got, IndicatorSuicide)
}

func TestScanForCrisisIndicators_NoMatchIsEmpty(t *testing.T) {
	got := ScanForCrisisIndicators(MessageBody("see you at the appointment tomorrow"))
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, ScanForCrisisIndicators(nil))
}

func TestScanForCrisisIndicators_Phrases(t *testing.T) {
	cases := map[string][]string{
		"I want to end it all":                   {IndicatorSuicide},
		"I keep thinking about Self-Harm":         {IndicatorSelfHarm},
		"hearing voices and I feel HOPELESS":      {IndicatorPsychosis, IndicatorSevereDepression},
		"severe_depression noted; homicide risk": {IndicatorHomicide, IndicatorSevereDepression},
	}
	for text, want := range cases {
		assert.Equal(t, want, ScanForCrisisIndicators(MessageBody(text)), text)
	}
}

func TestScan_AssessmentResponses(t *testing.T) {
	value, _ := json.Marshal("sometimes I think about suicide")
	got := ScanForCrisisIndicators(AssessmentResponses{{QuestionID: "q9", Value: value}})
	assert.Equal(t, []string{IndicatorSuicide}, got)
}

func TestVocabulary_WithPhrases(t *testing.T) {
	base := DefaultVocabulary()
	v := base.WithPhrases(IndicatorSuicide, "not be here anymore")
	assert.Equal(t, []string{IndicatorSuicide}, v.Scan(MessageBody("I'd rather not be here anymore")))
	// 原词表不受影响
	assert.Empty(t, base.Scan(MessageBody("I'd rather not be here anymore")))

	v2, err := ParsePhraseOverrides(base, "overdose:took all my pills|overdose; suicide:goodbye forever")
	require.NoError(t, err)
	assert.Equal(t, []string{"overdose", "suicide"}, v2.Scan(MessageBody("Goodbye forever, I took all my pills")))

	_, err = ParsePhraseOverrides(base, "missing-colon")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIndicatorLevel(t *testing.T) {
	assert.Equal(t, domain.RiskNone, IndicatorLevel(nil))
	assert.Equal(t, domain.RiskHigh, IndicatorLevel([]string{IndicatorSevereDepression}))
	assert.Equal(t, domain.RiskSevere, IndicatorLevel([]string{IndicatorSelfHarm, IndicatorSevereDepression}))
	assert.Equal(t, domain.RiskCrisis, IndicatorLevel([]string{IndicatorSuicide}))
	assert.Equal(t, domain.RiskHigh, IndicatorLevel([]string{"overdose"}))
}

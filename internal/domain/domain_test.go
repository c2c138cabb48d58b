package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRiskLevel(t *testing.T) {
	cases := map[string]RiskLevel{
		"no_risk":       RiskNone,
		"low":           RiskLow,
		"moderate_risk": RiskModerate,
		"HIGH":          RiskHigh,
		"severe_risk":   RiskSevere,
		"crisis":        RiskCrisis,
	}
	for in, want := range cases {
		got, err := ParseRiskLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRiskLevel("extreme")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRiskLevel_JSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(RiskSevere)
	require.NoError(t, err)
	assert.Equal(t, `"severe_risk"`, string(b))

	var l RiskLevel
	require.NoError(t, json.Unmarshal([]byte(`"high_risk"`), &l))
	assert.Equal(t, RiskHigh, l)
}

func TestCrisisDetected(t *testing.T) {
	assert.False(t, CrisisDetected(RiskModerate, nil))
	assert.True(t, CrisisDetected(RiskHigh, nil))
	assert.True(t, CrisisDetected(RiskNone, []string{"suicide"}))
}

func TestMessageStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, MessageQueued.CanTransitionTo(MessageSent))
	assert.True(t, MessageQueued.CanTransitionTo(MessageFailed))
	assert.True(t, MessageSent.CanTransitionTo(MessageDelivered))
	assert.False(t, MessageSent.CanTransitionTo(MessageSent))
	assert.False(t, MessageDelivered.CanTransitionTo(MessageSent))
	assert.False(t, MessageDelivered.CanTransitionTo(MessageFailed))
	assert.False(t, MessageFailed.CanTransitionTo(MessageDelivered))
}

func TestSafetyPlan_Apply(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &SafetyPlan{ID: "p1", UserID: "u1", CreatedAt: created, UpdatedAt: created}

	signs := []string{"isolating"}
	stmt := "I will call my sister"
	now := created.Add(time.Hour)
	p.Apply(SafetyPlanUpdate{WarningSigns: &signs, CommitmentStatement: &stmt}, now)

	assert.Equal(t, []string{"isolating"}, p.WarningSigns)
	assert.Equal(t, stmt, p.CommitmentStatement)
	assert.Equal(t, 33, p.CompletionPercentage)
	assert.Equal(t, now, p.UpdatedAt)
	assert.Equal(t, created, p.CreatedAt)
}

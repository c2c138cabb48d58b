package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "owlrd", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.False(t, cfg.DBEnabled)
	assert.False(t, cfg.RedisEnabled)
	assert.False(t, cfg.MQTTEnabled)

	assert.Equal(t, ":8085", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Carrier.Timeout)

	assert.Equal(t, 10*time.Minute, cfg.Escalation.CrisisWindow)
	assert.Equal(t, 10*time.Minute, cfg.Escalation.SevereWindow)
	assert.Equal(t, 30*time.Minute, cfg.Escalation.HighWindow)
	assert.Equal(t, time.Duration(0), cfg.Escalation.ModerateWindow)
	assert.Equal(t, 30*time.Second, cfg.Escalation.SweepInterval)

	assert.Equal(t, "crisis:session-alerts", cfg.Streams.SessionAlerts)
	assert.Equal(t, "crisis:escalation:timeouts", cfg.Streams.Timeouts)
	assert.Equal(t, int64(10000), cfg.Streams.MaxLen)
	assert.Equal(t, "crisis/responders/alerts", cfg.Responder.Topic)
	assert.Equal(t, "crisis/responders/acks", cfg.Responder.AckTopic)
	assert.Equal(t, "crisis/operators/timeouts", cfg.Operator.Topic)
	assert.Equal(t, "crisis-operators", cfg.Operator.Group)
	assert.Equal(t, "crisis:safety-plan:", cfg.SafetyPlan.KeyPrefix)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_ENABLED", "yes")
	t.Setenv("SMS_ORIGINATOR", "+15550000000")
	t.Setenv("SMS_CARRIER_TIMEOUT", "3s")
	t.Setenv("ESCALATION_HIGH_WINDOW", "45m")
	t.Setenv("ESCALATION_ONCALL_ADDRESS", "+15551112222")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "+15550000000", cfg.Carrier.Originator)
	assert.Equal(t, 3*time.Second, cfg.Carrier.Timeout)
	assert.Equal(t, 45*time.Minute, cfg.Escalation.HighWindow)
	assert.Equal(t, "+15551112222", cfg.Escalation.OnCallAddress)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("ESCALATION_CRISIS_WINDOW", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Escalation.CrisisWindow)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "crisis")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	c := DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", SSLMode: "disable", MaxConns: 10}
	c.LoadFromEnv("DB")

	assert.Equal(t, "pg.internal", c.Host)
	assert.Equal(t, 6543, c.Port)
	assert.Equal(t, "postgres", c.User)
	assert.Equal(t, "crisis", c.Database)
	assert.Equal(t, 10, c.MaxConns)
	assert.Equal(t, "host=pg.internal port=6543 user=postgres password= dbname=crisis sslmode=disable", c.GetDSN())
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "7")

	c := MQTTConfig{QoS: 1}
	c.LoadFromEnv("MQTT")

	assert.Equal(t, "tcp://broker:1883", c.Broker)
	assert.Equal(t, byte(1), c.QoS)
}

func TestEnvHelpers(t *testing.T) {
	assert.Equal(t, "def", EnvOr("COMMON_TEST_UNSET", "def"))
	assert.True(t, EnvBool("COMMON_TEST_UNSET", true))
	assert.Equal(t, time.Minute, EnvDuration("COMMON_TEST_UNSET", time.Minute))

	t.Setenv("COMMON_TEST_BOOL", "yes")
	assert.True(t, EnvBool("COMMON_TEST_BOOL", false))
	t.Setenv("COMMON_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, EnvDuration("COMMON_TEST_DUR", time.Minute))
}

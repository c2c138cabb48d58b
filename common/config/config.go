package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv 从环境变量加载配置（如 prefix="DB" 读取 DB_HOST、DB_PORT ...）
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	c.Host = EnvOr(prefix+"_HOST", c.Host)
	c.Port = EnvInt(prefix+"_PORT", c.Port)
	c.User = EnvOr(prefix+"_USER", c.User)
	c.Password = EnvOr(prefix+"_PASSWORD", c.Password)
	c.Database = EnvOr(prefix+"_NAME", c.Database)
	c.SSLMode = EnvOr(prefix+"_SSLMODE", c.SSLMode)
	c.MaxConns = EnvInt(prefix+"_MAX_CONNS", c.MaxConns)
	c.MaxIdle = EnvInt(prefix+"_MAX_IDLE", c.MaxIdle)
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	c.Addr = EnvOr(prefix+"_ADDR", c.Addr)
	c.Password = EnvOr(prefix+"_PASSWORD", c.Password)
	c.DB = EnvInt(prefix+"_DB", c.DB)
}

// LoadFromEnv 从环境变量加载MQTT配置
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	c.Broker = EnvOr(prefix+"_BROKER", c.Broker)
	c.ClientID = EnvOr(prefix+"_CLIENT_ID", c.ClientID)
	c.Username = EnvOr(prefix+"_USERNAME", c.Username)
	c.Password = EnvOr(prefix+"_PASSWORD", c.Password)
	if qos := EnvInt(prefix+"_QOS", int(c.QoS)); qos >= 0 && qos <= 2 {
		c.QoS = byte(qos)
	}
}

// EnvOr 读取环境变量，为空时返回默认值
func EnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt 读取整型环境变量，解析失败时返回默认值
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// EnvBool 读取布尔环境变量（"true"/"1"/"yes"）
func EnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "yes"
	}
	return b
}

// EnvDuration 读取时长环境变量（如 "10m"、"30s"），解析失败时返回默认值
func EnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

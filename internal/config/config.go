package config

import (
	"time"

	"wisefido-crisis/common/config"
)

// Config 危机服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 基础设施开关（关闭时退化为内存存储/日志输出）
	DBEnabled    bool
	RedisEnabled bool
	MQTTEnabled  bool

	HTTP struct {
		Addr            string        // 监听地址，默认 ":8085"
		ReadTimeout     time.Duration // 默认 10s
		WriteTimeout    time.Duration // 默认 30s
		ShutdownTimeout time.Duration // 默认 10s
	}

	// 短信运营商配置
	Carrier struct {
		BaseURL    string        // 运营商 REST API 地址
		AccessKey  string        // 访问密钥（为空时不发起真实调用）
		Originator string        // 本端号码
		Timeout    time.Duration // 单次发送超时，默认 10s
	}

	// 升级引擎配置
	Escalation struct {
		CrisisWindow   time.Duration // crisis 确认窗口，默认 10m
		SevereWindow   time.Duration // severe 确认窗口，默认 10m
		HighWindow     time.Duration // high 确认窗口，默认 30m
		ModerateWindow time.Duration // moderate 确认窗口，默认 0（不超时）
		SweepInterval  time.Duration // 超时扫描间隔，默认 30s
		OnCallAddress  string        // 值班响应人号码（可选）
	}

	// Redis Streams 配置
	Streams struct {
		SessionAlerts string // 会话内告警流，默认 "crisis:session-alerts"
		Timeouts      string // 超时运维信号流，默认 "crisis:escalation:timeouts"
		MaxLen        int64  // 流最大长度（近似裁剪），默认 10000
	}

	// 响应人通知（MQTT）
	Responder struct {
		Topic    string // 默认 "crisis/responders/alerts"
		AckTopic string // 响应人确认上行，默认 "crisis/responders/acks"
	}

	// 超时信号转发（Redis Streams 消费者组 -> MQTT 运维频道）
	Operator struct {
		Topic    string // 默认 "crisis/operators/timeouts"
		Group    string // 默认 "crisis-operators"
		Consumer string // 默认 "wisefido-crisis"
	}

	Classifier struct {
		// ExtraPhrases 额外指示短语，格式 "suicide:phrase a|phrase b;self_harm:phrase c"
		ExtraPhrases string
	}

	SafetyPlan struct {
		KeyPrefix string // Redis 键前缀，默认 "crisis:safety-plan:"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "owlrd",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "wisefido-crisis",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.DBEnabled = config.EnvBool("DB_ENABLED", false)
	cfg.RedisEnabled = config.EnvBool("REDIS_ENABLED", false)
	cfg.MQTTEnabled = config.EnvBool("MQTT_ENABLED", false)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8085")
	cfg.HTTP.ReadTimeout = config.EnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTP.WriteTimeout = config.EnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	cfg.HTTP.ShutdownTimeout = config.EnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg.Carrier.BaseURL = getEnv("SMS_CARRIER_BASE_URL", "https://rest.messagebird.com")
	cfg.Carrier.AccessKey = getEnv("SMS_CARRIER_ACCESS_KEY", "")
	cfg.Carrier.Originator = getEnv("SMS_ORIGINATOR", "")
	cfg.Carrier.Timeout = config.EnvDuration("SMS_CARRIER_TIMEOUT", 10*time.Second)

	cfg.Escalation.CrisisWindow = config.EnvDuration("ESCALATION_CRISIS_WINDOW", 10*time.Minute)
	cfg.Escalation.SevereWindow = config.EnvDuration("ESCALATION_SEVERE_WINDOW", 10*time.Minute)
	cfg.Escalation.HighWindow = config.EnvDuration("ESCALATION_HIGH_WINDOW", 30*time.Minute)
	cfg.Escalation.ModerateWindow = config.EnvDuration("ESCALATION_MODERATE_WINDOW", 0)
	cfg.Escalation.SweepInterval = config.EnvDuration("ESCALATION_SWEEP_INTERVAL", 30*time.Second)
	cfg.Escalation.OnCallAddress = getEnv("ESCALATION_ONCALL_ADDRESS", "")

	cfg.Streams.SessionAlerts = getEnv("STREAM_SESSION_ALERTS", "crisis:session-alerts")
	cfg.Streams.Timeouts = getEnv("STREAM_ESCALATION_TIMEOUTS", "crisis:escalation:timeouts")
	cfg.Streams.MaxLen = int64(config.EnvInt("STREAM_MAX_LEN", 10000))

	cfg.Responder.Topic = getEnv("RESPONDER_MQTT_TOPIC", "crisis/responders/alerts")
	cfg.Responder.AckTopic = getEnv("RESPONDER_ACK_MQTT_TOPIC", "crisis/responders/acks")

	cfg.Operator.Topic = getEnv("OPERATOR_MQTT_TOPIC", "crisis/operators/timeouts")
	cfg.Operator.Group = getEnv("OPERATOR_CONSUMER_GROUP", "crisis-operators")
	cfg.Operator.Consumer = getEnv("OPERATOR_CONSUMER_NAME", "wisefido-crisis")

	cfg.Classifier.ExtraPhrases = getEnv("CLASSIFIER_EXTRA_PHRASES", "")

	cfg.SafetyPlan.KeyPrefix = getEnv("SAFETY_PLAN_KEY_PREFIX", "crisis:safety-plan:")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	return config.EnvOr(key, defaultValue)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-crisis/common/database"
	"wisefido-crisis/common/logger"
	mqttcommon "wisefido-crisis/common/mqtt"
	rediscommon "wisefido-crisis/common/redis"
	"wisefido-crisis/internal/carrier"
	"wisefido-crisis/internal/catalog"
	"wisefido-crisis/internal/classifier"
	"wisefido-crisis/internal/config"
	"wisefido-crisis/internal/domain"
	"wisefido-crisis/internal/escalation"
	httpapi "wisefido-crisis/internal/http"
	"wisefido-crisis/internal/metrics"
	"wisefido-crisis/internal/notifier"
	"wisefido-crisis/internal/repository"
	"wisefido-crisis/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-crisis")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vocab, err := classifier.ParsePhraseOverrides(classifier.DefaultVocabulary(), cfg.Classifier.ExtraPhrases)
	if err != nil {
		log.Fatal("Invalid classifier phrase overrides", zap.Error(err))
	}

	// ============================================
	// 存储：DB / Redis 可选，未启用或连接失败时回退到内存实现
	// ============================================
	var (
		messagesRepo   repository.MessagesRepository    = repository.NewMemoryMessagesRepo()
		riskEventsRepo repository.RiskEventsRepository  = repository.NewMemoryRiskEventsRepo()
		plansRepo      repository.SafetyPlansRepository = repository.NewMemorySafetyPlansRepo()
	)

	var db *sql.DB
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(ctx, &cfg.Database); err != nil {
			log.Warn("DB enabled but connection failed, falling back to memory repositories", zap.Error(err))
		} else if err := repository.EnsureSchema(ctx, d); err != nil {
			log.Warn("DB schema bootstrap failed, falling back to memory repositories", zap.Error(err))
			_ = database.Close(d)
		} else {
			db = d
			messagesRepo = repository.NewPostgresMessagesRepository(db)
			riskEventsRepo = repository.NewPostgresRiskEventsRepository(db)
			go metrics.StartDBStatsCollector(ctx, db, 15*time.Second)
			log.Info("DB enabled for wisefido-crisis")
		}
	}

	var (
		sessions   notifier.SessionAlerter    = notifier.NewLogSink(log)
		operators  notifier.OperatorSignaler  = notifier.NewLogSink(log)
		responders notifier.ResponderNotifier = notifier.NewLogSink(log)
	)

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		if c, err := rediscommon.NewRedisClient(ctx, &cfg.Redis); err != nil {
			log.Warn("Redis enabled but connection failed, falling back to memory/log sinks", zap.Error(err))
		} else {
			redisClient = c
			plansRepo = repository.NewRedisSafetyPlansRepo(redisClient, cfg.SafetyPlan.KeyPrefix)
			sink := notifier.NewRedisStreamSink(redisClient, cfg.Streams.SessionAlerts, cfg.Streams.Timeouts, cfg.Streams.MaxLen, log)
			sessions = sink
			operators = sink
			log.Info("Redis enabled for wisefido-crisis")
		}
	}

	var mqttClient *mqttcommon.Client
	if cfg.MQTTEnabled {
		if c, err := mqttcommon.NewClient(&cfg.MQTT, log); err != nil {
			log.Warn("MQTT enabled but connection failed, responder alerts go to log", zap.Error(err))
		} else {
			mqttClient = c
			responders = notifier.NewMQTTResponderNotifier(mqttClient, cfg.Responder.Topic, cfg.MQTT.QoS, log)
			log.Info("MQTT enabled for wisefido-crisis", zap.String("broker", cfg.MQTT.Broker))
		}
	}

	// ============================================
	// 运营商、网关与升级引擎
	// ============================================
	var smsCarrier carrier.Carrier
	if cfg.Carrier.AccessKey != "" {
		smsCarrier = carrier.NewClient(cfg.Carrier.BaseURL, cfg.Carrier.AccessKey, cfg.Carrier.Originator, cfg.Carrier.Timeout, log)
	} else {
		log.Warn("Carrier access key not set, outbound SMS uses loopback carrier")
		smsCarrier = carrier.NewLoopback(log)
	}

	resources := catalog.NewDefault()
	assessments, err := catalog.NewAssessmentRegistry()
	if err != nil {
		log.Fatal("Failed to build assessment registry", zap.Error(err))
	}

	gateway := service.NewMessagingGateway(messagesRepo, smsCarrier, vocab, log)

	policy := escalation.DefaultPolicy()
	policy.Windows = map[domain.RiskLevel]time.Duration{
		domain.RiskCrisis:   cfg.Escalation.CrisisWindow,
		domain.RiskSevere:   cfg.Escalation.SevereWindow,
		domain.RiskHigh:     cfg.Escalation.HighWindow,
		domain.RiskModerate: cfg.Escalation.ModerateWindow,
	}
	policy.OnCallAddress = cfg.Escalation.OnCallAddress

	engine := escalation.NewEngine(escalation.Deps{
		Messenger:  gateway,
		Refresher:  gateway,
		Resources:  resources,
		RiskEvents: riskEventsRepo,
		Sessions:   sessions,
		Responders: responders,
		Operators:  operators,
	}, policy, log)
	gateway.SetEscalator(engine)
	gateway.SetDeliveryObserver(engine)

	// 响应人经 MQTT 上行确认
	if mqttClient != nil {
		err := mqttClient.Subscribe(cfg.Responder.AckTopic, cfg.MQTT.QoS, func(topic string, payload []byte) error {
			ack, err := notifier.ParseAck(payload)
			if err != nil {
				return err
			}
			if _, err := engine.Acknowledge(ctx, ack.RunID, ack.Responder); err != nil && !errors.Is(err, domain.ErrConflict) {
				return err
			}
			return nil
		})
		if err != nil {
			log.Warn("Failed to subscribe to responder acks", zap.String("topic", cfg.Responder.AckTopic), zap.Error(err))
		}
	}

	// 超时信号从 Redis 流转发到运维 MQTT 频道
	if redisClient != nil && mqttClient != nil {
		relay := notifier.NewOperatorRelay(redisClient, cfg.Streams.Timeouts, cfg.Operator.Group, cfg.Operator.Consumer,
			notifier.MQTTOperatorForwarder(mqttClient, cfg.Operator.Topic, cfg.MQTT.QoS), log)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("Operator relay stopped", zap.Error(err))
			}
		}()
	}

	go engine.Run(ctx, cfg.Escalation.SweepInterval)

	// ============================================
	// HTTP
	// ============================================
	plans := service.NewSafetyPlanService(plansRepo, log)
	assessmentSvc := service.NewAssessmentService(assessments, vocab, engine, log)
	alerts := service.NewCrisisAlertService(vocab, engine, log)

	router := httpapi.NewRouter(log)
	router.RegisterSMSRoutes(httpapi.NewSMSHandler(gateway, log))
	router.RegisterCrisisRoutes(httpapi.NewCrisisHandler(alerts, engine, resources, log))
	router.RegisterAssessmentRoutes(httpapi.NewAssessmentHandler(assessmentSvc, assessments, log))
	router.RegisterSafetyPlanRoutes(httpapi.NewSafetyPlanHandler(plans, log))
	router.RegisterHealthRoutes(metrics.Handler())

	srv := service.NewServer(cfg.HTTP.Addr, metrics.Middleware(router), cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if redisClient != nil {
		_ = rediscommon.Close(redisClient)
	}
	_ = database.Close(db)
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"escalation-service/internal/alerts"
	"escalation-service/internal/api"
	"escalation-service/internal/config"
	"escalation-service/internal/db"
	"escalation-service/internal/escalation"
	"escalation-service/internal/kafka"
	"escalation-service/internal/logging"
	"escalation-service/internal/notification"
	"escalation-service/internal/providers"
	"escalation-service/internal/services"
	"escalation-service/pkg/email"
	"escalation-service/pkg/sms"
	"escalation-service/pkg/telegram"
)

type store interface {
	alerts.Store
	escalation.Store
	notification.Store
	Close()
}

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to open store: %v", err)
		log.Fatalf("Store initialization failed: %v", err)
	}
	defer st.Close()

	hub := notification.NewHub(logger)
	mailer := providers.NewEmailProvider(
		email.New(cfg.Email.SMTPServer, cfg.Email.SMTPPort, cfg.Email.Username, cfg.Email.Password, cfg.Email.FromAddress, cfg.Email.FromName),
		logger,
	)
	gateway := notification.NewGateway(st, mailer, directMessenger(cfg, hub, logger), hub, logger)
	coordinator := escalation.NewCoordinator(st, gateway, logger, cfg.Escalation.BatchDelay)
	lifecycle := alerts.NewLifecycle(st, coordinator, logger)
	expiry := notification.NewRoleExpiryNotifier(notification.NewDuplicateGuard(st), gateway, logger)

	// Ingestion workers
	svc := services.New(lifecycle, gateway, expiry, logger, cfg)
	var wg sync.WaitGroup
	svc.Start(&wg)

	if cfg.Kafka.Broker != "" {
		consumer := kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID, svc, logger)
		defer consumer.Close()
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	} else {
		logger.Warnf("KAFKA_BROKER not set, event ingestion disabled")
	}

	// Start API server
	handler := api.NewHandler(lifecycle, coordinator, gateway, expiry, hub, logger)
	router := api.NewRouter(logger, cfg, handler)
	server := &http.Server{Addr: ":" + cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on :%s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	svc.Stop()
	wg.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warnf("Using in-memory store; data is lost on restart")
		return db.NewMemory(), nil
	}
	conn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func directMessenger(cfg config.Config, hub *notification.Hub, logger *logging.Logger) notification.DirectMessenger {
	switch cfg.DirectMessage.Provider {
	case config.DMProviderTwilio:
		client := sms.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
		return providers.NewSMSMessenger(client, logger)
	case config.DMProviderTelegram:
		return providers.NewTelegramMessenger(telegram.New(cfg.Telegram.BotToken), cfg.Telegram.RateLimit, logger)
	default:
		return providers.NewWhatsAppMessenger(hub, logger)
	}
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/salonhq/booking-api/internal/config"
	"github.com/salonhq/booking-api/internal/email"
	"github.com/salonhq/booking-api/internal/repository/postgres"
	catalogservice "github.com/salonhq/booking-api/internal/service/catalog"
	"github.com/salonhq/booking-api/internal/service/notification"
	"github.com/salonhq/booking-api/pkg/logger"
	"github.com/salonhq/booking-api/pkg/messaging"
	redisbroker "github.com/salonhq/booking-api/pkg/messaging/redis"
	"github.com/salonhq/booking-api/pkg/metrics"
	"github.com/salonhq/booking-api/pkg/worker"
)

// WorkerEnv are the worker-only knobs, set through the environment so
// deployments can tune batch sizes without touching the shared config file.
type WorkerEnv struct {
	BatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	PollInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	RetryAttempts int           `envconfig:"OUTBOX_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"5s"`
	HealthPort    string        `envconfig:"HEALTH_PORT" default:"8081"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var env WorkerEnv
	if err := envconfig.Process("worker", &env); err != nil {
		log.Fatal().Err(err).Msg("failed to process environment")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	zl := log.Logger
	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: 100 * time.Millisecond,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	defer broker.Close()

	appointmentRepo := postgres.NewAppointmentRepository(db)
	userRepo := postgres.NewUserRepository(db)
	serviceRepo := postgres.NewServiceRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	m := metrics.NewMetrics("booking", "worker")

	notificationSvc := notification.NewService(
		appointmentRepo,
		userRepo,
		catalogservice.NewService(serviceRepo),
		appLogger,
		m,
	)

	pollInterval, err := time.ParseDuration(cfg.Reminders.PollInterval)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.Reminders.PollInterval).Msg("invalid reminder poll interval")
	}

	scanner := worker.NewReminderScanner(notificationSvc, pollInterval, appLogger)

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:     env.BatchSize,
			PollInterval:  env.PollInterval,
			RetryAttempts: env.RetryAttempts,
			RetryDelay:    env.RetryDelay,
		},
		appLogger,
		m,
	)

	emailSvc := email.NewSMTPService(email.SMTPConfig{
		Host:     cfg.Reminders.SMTPHost,
		Port:     cfg.Reminders.SMTPPort,
		Username: cfg.Reminders.SMTPUser,
		Password: cfg.Reminders.SMTPPassword,
		From:     cfg.Reminders.FromEmail,
	})

	setupHealthCheck(env.HealthPort, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("Shutting down...")
		cancel()
	}()

	go scanner.Start(ctx)
	go consumeEmailReminders(ctx, broker, emailSvc, appLogger)

	processor.Start(ctx)
}

// consumeEmailReminders delivers queued email reminders. SMS events stay on
// their own channel for the external SMS dispatcher.
func consumeEmailReminders(ctx context.Context, broker messaging.Broker, sender email.Service, appLogger *logger.Logger) {
	msgs, err := broker.Subscribe(ctx, messaging.ChannelReminderEmail)
	if err != nil {
		appLogger.Error(err, "failed to subscribe to email reminders")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}

			var msg messaging.ReminderMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				appLogger.Error(err, "failed to decode reminder message")
				continue
			}

			if msg.ClientEmail == "" {
				continue
			}

			if err := sender.SendReminder(ctx, msg.ClientEmail, msg.ServiceName, msg.StartTime, msg.Window); err != nil {
				appLogger.Error(err, "failed to send reminder email",
					"appointment_id", msg.AppointmentID)
			}
		}
	}
}

func setupHealthCheck(port string, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			appLogger.Error(err, "health check server failed")
		}
	}()
}

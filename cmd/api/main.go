package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/salonhq/booking-api/internal/config"
	stripegateway "github.com/salonhq/booking-api/internal/gateway/stripe"
	appointmenthandler "github.com/salonhq/booking-api/internal/handler/appointment"
	cataloghandler "github.com/salonhq/booking-api/internal/handler/catalog"
	healthhandler "github.com/salonhq/booking-api/internal/handler/health"
	paymenthandler "github.com/salonhq/booking-api/internal/handler/payment"
	"github.com/salonhq/booking-api/internal/middleware"
	"github.com/salonhq/booking-api/internal/repository/postgres"
	"github.com/salonhq/booking-api/internal/router"
	catalogservice "github.com/salonhq/booking-api/internal/service/catalog"
	paymentservice "github.com/salonhq/booking-api/internal/service/payment"
	"github.com/salonhq/booking-api/internal/service/scheduling"
	"github.com/salonhq/booking-api/pkg/auth"
	"github.com/salonhq/booking-api/pkg/logger"
	"github.com/salonhq/booking-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	appointmentRepo := postgres.NewAppointmentRepository(db)
	serviceRepo := postgres.NewServiceRepository(db)
	userRepo := postgres.NewUserRepository(db)

	catalogSvc := catalogservice.NewService(serviceRepo)
	assignStrategy := scheduling.NewFirstActiveStrategy(userRepo)
	schedulingSvc := scheduling.NewService(
		appointmentRepo,
		userRepo,
		catalogSvc,
		assignStrategy,
		cfg.Booking,
		cfg.Cancellation,
		appLogger,
	)

	gateway := stripegateway.NewGateway(cfg.Stripe)
	paymentSvc := paymentservice.NewService(appointmentRepo, gateway, cfg.Stripe, appLogger)

	m := metrics.NewMetrics("booking", "api")

	authMiddleware := middleware.NewAuthMiddleware(auth.NewTokenValidator(cfg.JWT.Secret))

	appointmentHandler := appointmenthandler.NewHandler(schedulingSvc, paymentSvc, appLogger, m)
	catalogHandler := cataloghandler.NewHandler(catalogSvc)
	paymentHandler := paymenthandler.NewHandler(paymentSvc, appLogger, m)
	healthHandler := healthhandler.NewHandler(db)

	r := router.NewRouter(
		authMiddleware,
		appointmentHandler,
		catalogHandler,
		paymentHandler,
		healthHandler,
		router.Config{
			RateLimit:     rate.Limit(100),
			RateBurst:     200,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "booking_api",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

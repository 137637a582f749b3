package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/civiclens/backend/internal/ai"
	"github.com/civiclens/backend/internal/config"
	"github.com/civiclens/backend/internal/db"
	"github.com/civiclens/backend/internal/geocode"
	httpapi "github.com/civiclens/backend/internal/http"
	"github.com/civiclens/backend/internal/notify"
	"github.com/civiclens/backend/internal/service"
	"github.com/civiclens/backend/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "civiclens-backend").Logger()

	ctx := context.Background()
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	var classifier ai.Classifier
	if cfg.AIURL == "" {
		classifier = ai.MockClassifier{ModelVersion: "mock-v1"}
		logger.Info().Msg("using mock classifier")
	} else {
		classifier = ai.HTTPClassifier{BaseURL: cfg.AIURL}
	}

	var geocoder geocode.Geocoder
	if cfg.GeocoderEnabled {
		geocoder = &geocode.NominatimGeocoder{
			BaseURL:   cfg.GeocoderURL,
			UserAgent: cfg.GeocoderUserAgent,
		}
	}

	notifier := notify.LogNotifier{Logger: logger}

	limiter := service.NewRateLimiter(store)
	submissions := service.NewSubmissionService(store, limiter, classifier, logger)
	submissions.Geocoder = geocoder
	submissions.Duplicate = service.DuplicateParams{
		RadiusMeters: cfg.DuplicateRadiusM,
		WindowHours:  cfg.DuplicateWindowHours,
	}
	submissions.EmergencyTypes = cfg.EmergencyTypes()

	status := service.NewStatusService(store)
	sweeper := service.NewSweeper(store, notifier, logger)

	runner, err := sweep.NewRunner(sweeper, cfg.SweepCron, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.SweepCron).Msg("invalid sweep schedule")
	}
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go runner.Start(sweepCtx)

	router := httpapi.Router(cfg, store, submissions, status, sweeper, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopSweep()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

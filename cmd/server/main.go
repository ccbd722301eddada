package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dfryer1193/evstations/internal/rest"
	"github.com/dfryer1193/evstations/shared/config"
	"github.com/dfryer1193/evstations/shared/db/sqlite"
	"github.com/dfryer1193/evstations/shared/metrics"
	"github.com/dfryer1193/evstations/station/application"
	"github.com/dfryer1193/evstations/station/persistence"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	dbCfg, err := sqlite.NewSQLiteConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load database configuration")
	}
	database := sqlite.NewSQLiteDB(dbCfg)
	if err := database.Connect(); err != nil {
		log.Fatal().Err(err).Str("path", dbCfg.Path).Msg("Failed to connect to database")
	}
	defer database.Close()

	images, err := persistence.NewFileImageStore(cfg.ImageDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.ImageDir).Msg("Failed to open image store")
	}

	metrics.Init(prometheus.DefaultRegisterer, database.DB())

	repo := persistence.NewStationRepository(database.DB())
	service := application.NewStationService(repo, images)

	sweeper := application.NewSweeper(service, cfg.SweepInterval, cfg.SweepGrace)
	sweeper.Start()
	defer func() {
		if err := sweeper.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to stop image sweeper")
		}
	}()

	handler := rest.NewStationsHandler(service, cfg.ImageCacheMaxAge, cfg.MaxUploadBytes)
	router := rest.NewRouter(handler, database, prometheus.DefaultGatherer, cfg.MaxUploadBytes)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Str("db", dbCfg.Path).Str("images", cfg.ImageDir).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server")
	}

	log.Info().Msg("Server stopped")
}

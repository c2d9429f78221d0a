package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/config"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/controllers"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/events"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/idempotency"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/pkg/tracing"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	configPath = kingpin.Flag("config", "Config file (YAML)").Short('c').String()
	verbose    = kingpin.Flag("verbose", "Verbosity").Short('v').Bool()
	port       = kingpin.Flag("port", "Port, overrides PORT").Short('p').String()
	mongoURI   = kingpin.Flag("mongo-uri", "Database URI, overrides MONGO_URI").String()
)

func main() {
	kingpin.Parse()
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath, config.Overrides{
		Port:     *port,
		MongoURI: *mongoURI,
		Verbose:  *verbose,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Config error")
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	shutdownTracing, err := tracing.InitTraceProvider(serviceName, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("Tracing error")
	}

	ctx := context.Background()
	db := connectDatabase(ctx, cfg)
	publisher := newPublisher(cfg)
	cache, closeCache := newIdempotency(ctx, cfg)

	transactions := &controllers.Transactions{
		Store:       db,
		Events:      publisher,
		Idempotency: cache,
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      setupServer(transactions),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("Server is running on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server Error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := db.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close event publisher")
	}
	closeCache()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}
	log.Info().Msg("Server exited")
}

// connectDatabase opens the store once. Failures are logged and leave the
// process running; requests then fail when they reach the store.
func connectDatabase(ctx context.Context, cfg *config.Config) store.Store {
	db, err := store.Open(ctx, cfg.MongoURI, store.Options{
		Database:   cfg.MongoDatabase,
		Collection: cfg.MongoCollection,
		Debug:      cfg.Verbose,
	})
	if err != nil {
		log.Error().Err(err).Msg("MongoDB Connection Error")
		return store.Disconnected(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		log.Error().Err(err).Msg("MongoDB Connection Error")
		return db
	}
	log.Info().Msg("MongoDB Connected")
	return db
}

func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Publishing transaction events")
	return events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func newIdempotency(ctx context.Context, cfg *config.Config) (controllers.IdempotencyCache, func()) {
	if cfg.RedisAddress == "" {
		return nil, func() {}
	}
	cache := idempotency.New(cfg.RedisAddress)
	if err := cache.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to connect to redis")
	}
	return cache, func() {
		if err := cache.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis")
		}
	}
}

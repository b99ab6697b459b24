package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	eventhandler "pulse-analytics/internal/event/handler"
	eventstore "pulse-analytics/internal/event/store"
	"pulse-analytics/internal/event"
	httpapi "pulse-analytics/internal/http"
	"pulse-analytics/internal/ingest"
	"pulse-analytics/internal/outbox"
	"pulse-analytics/internal/platform/config"
	"pulse-analytics/internal/platform/httpserver"
	"pulse-analytics/internal/platform/kafka"
	kafkaconsumer "pulse-analytics/internal/platform/kafka/consumer"
	"pulse-analytics/internal/platform/logger"
	"pulse-analytics/internal/platform/metrics"
	"pulse-analytics/internal/platform/middleware"
	"pulse-analytics/internal/platform/postgres"
	platformredis "pulse-analytics/internal/platform/redis"
	"pulse-analytics/internal/readiness"
	readinesscache "pulse-analytics/internal/readiness/cache"
	readinesshandler "pulse-analytics/internal/readiness/handler"
	readinessstore "pulse-analytics/internal/readiness/store"
)

// main wires dependencies and runs the HTTP server plus background workers
// under one errgroup. Business logic lives in the internal service packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration error", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.ApplySchema(ctx, db); err != nil {
		log.Error("schema apply failed", "error", err.Error())
		os.Exit(1)
	}

	m := metrics.New()

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient == nil {
		log.Info("redis not configured, readiness cache disabled")
	} else {
		defer redisClient.Close()
	}

	var readinessCache readiness.Cache
	if redisClient != nil {
		readinessCache = readinesscache.New(redisClient.Client, time.Minute)
	}

	eventSvc, err := event.NewService(eventstore.NewPostgres(db), m, log, cfg.AnalyticsEnabled)
	if err != nil {
		log.Error("event service init failed", "error", err.Error())
		os.Exit(1)
	}

	readinessSvc, err := readiness.NewService(readinessstore.NewPostgres(db), readinessCache, m, log, cfg.ReadinessEnabled)
	if err != nil {
		log.Error("readiness service init failed", "error", err.Error())
		os.Exit(1)
	}

	var jwtValidator middleware.JWTValidator
	if cfg.JWTSigningKey != "" {
		jwtValidator = middleware.NewHS256Validator(cfg.JWTSigningKey)
	} else {
		log.Warn("JWT signing key not set, user endpoints are unauthenticated")
	}

	router := httpapi.NewRouter(log, m,
		map[string]httpapi.HealthChecker{
			"postgres": db.PingContext,
			"redis": func(ctx context.Context) error {
				if redisClient == nil {
					return nil
				}
				return redisClient.Health(ctx)
			},
		},
		eventhandler.New(eventSvc, log, jwtValidator),
		readinesshandler.New(readinessSvc, log, jwtValidator, cfg.AdminToken),
	)

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting pulse-analytics", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Error("kafka producer init failed", "error", err.Error())
			os.Exit(1)
		}
		defer producer.Close()

		if err := kafka.EnsureTopics(ctx, producer, cfg.EventsTopic, cfg.ScorecardsTopic); err != nil {
			log.Error("kafka topic ensure failed", "error", err.Error())
			os.Exit(1)
		}

		worker := outbox.NewWorker(outbox.NewPostgres(db), producer, cfg.EventsTopic, m, log)
		group.Go(func() error {
			err := worker.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

		consumerClient, err := kafka.NewGroupConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.ScorecardsTopic)
		if err != nil {
			log.Error("kafka consumer init failed", "error", err.Error())
			os.Exit(1)
		}
		defer consumerClient.Close()

		scorecards := ingest.NewScorecardHandler(eventSvc, readinessSvc, m, log)
		consumer := kafkaconsumer.New(consumerClient, scorecards, log)
		group.Go(func() error {
			err := consumer.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		log.Info("kafka not configured, outbox worker and scorecard consumer disabled")
	}

	group.Go(func() error {
		err := readinessSvc.RunPeriodic(groupCtx, cfg.RecomputeInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := group.Wait(); err != nil {
		log.Error("service exited with error", "error", err.Error())
		os.Exit(1)
	}
	log.Info("service stopped")
}

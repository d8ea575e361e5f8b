package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"coin-engine/src/config"
	"coin-engine/src/engine"
	"coin-engine/src/events"
	"coin-engine/src/handlers"
	"coin-engine/src/logger"
	"coin-engine/src/routes"
	"coin-engine/src/store"
)

func main() {
	logger.InitLogger()
	log := logger.GetLogger()

	cfg := config.Load()

	log.Info().Msg("Initializing matching core")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable")
	}
	orderStore := store.NewRedisStore(rdb)

	var emitter engine.Emitter = events.NopEmitter{}
	var kafkaEmitter *events.KafkaEmitter
	if cfg.KafkaEnabled {
		kafkaEmitter = events.NewKafkaEmitter(cfg.KafkaBrokers)
		emitter = kafkaEmitter
		log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("Kafka emitter enabled")
	}

	matcher := engine.NewMatcher(orderStore, emitter)

	// Recovery: rebuild each configured pair's book from the pending
	// mirror, then reconcile any book left crossed by a previous run.
	for _, pairKey := range cfg.Pairs {
		pending, err := orderStore.ScanPending(context.Background(), pairKey)
		if err != nil {
			log.Fatal().Err(err).Str("pair", pairKey).Msg("Pending order recovery failed")
		}
		restored := matcher.Restore(pairKey, pending)
		if _, err := matcher.SweepPair(context.Background(), pairKey); err != nil {
			log.Fatal().Err(err).Str("pair", pairKey).Msg("Recovery sweep failed")
		}
		log.Info().Str("pair", pairKey).Int("restored", restored).Msg("Book restored")
	}

	orderHandler := handlers.NewOrderHandler(matcher, orderStore)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, cfg, rdb, orderHandler)

	port := ":" + cfg.Port

	serverError := make(chan error, 1)
	go func() {
		if err := app.Listen(port); err != nil && err.Error() != "server is shutting down" {
			serverError <- err
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Msg("Server failed to start")
	default:
		log.Info().
			Str("port", port).
			Strs("endpoints", []string{
				"POST   /api/v1/orders",
				"DELETE /api/v1/orders/:pair/:id",
				"GET    /api/v1/orders/:pair/:id",
				"GET    /api/v1/depth/:pair",
				"GET    /health",
				"GET    /metrics",
			}).
			Msg("Matching core started")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("timeout", cfg.ShutdownTimeout).Msg("Shutdown timeout exceeded")
		} else {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}

	if kafkaEmitter != nil {
		if err := kafkaEmitter.Close(); err != nil {
			log.Error().Err(err).Msg("Kafka writer close failed")
		}
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("Redis close failed")
	}

	log.Info().Msg("Shutdown complete")
}

package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"

	"coin-engine/src/config"
	"coin-engine/src/handlers"
	"coin-engine/src/metrics"
	"coin-engine/src/middleware"
)

func SetupRoutes(app *fiber.App, cfg *config.Config, rdb redis.Cmdable, orderHandler *handlers.OrderHandler) {
	app.Use(middleware.RequestLogger())

	api := app.Group("/api/v1")

	if !cfg.RateLimitDisabled {
		rateLimiter := middleware.NewRateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
		api.Use(rateLimiter.Middleware())
	}

	api.Post("/orders", orderHandler.SubmitOrder)
	api.Delete("/orders/:pair/:id", orderHandler.CancelOrder)
	api.Get("/orders/:pair/:id", orderHandler.GetOrder)
	api.Get("/depth/:pair", orderHandler.GetDepth)

	app.Get("/health", orderHandler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

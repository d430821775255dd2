// Package main provides the Courier API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/courier/pkg/cmd"
	"github.com/dukex/courier/pkg/config"
	"github.com/dukex/courier/pkg/eventbus"
	"github.com/dukex/courier/pkg/metrics"
	"github.com/dukex/courier/pkg/services"
	"github.com/dukex/courier/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger    *slog.Logger
	catalog   *cmd.Catalog
	config    services.DeliveryConfig
	eventBus  eventbus.EventBus
	metrics   *metrics.Prometheus
	instances map[string]config.Instance
	validate  *validator.Validate
}

// NewAPI creates the API. eventBus may be nil, which disables asynchronous
// deliveries.
func NewAPI(
	logger *slog.Logger,
	catalog *cmd.Catalog,
	deliveryConfig services.DeliveryConfig,
	eventBus eventbus.EventBus,
	prometheus *metrics.Prometheus,
	instances map[string]config.Instance,
) *API {
	deliveryConfig.Logger = logger

	if prometheus != nil {
		deliveryConfig.Metrics = prometheus
	}

	return &API{
		logger:    logger,
		catalog:   catalog,
		config:    deliveryConfig,
		eventBus:  eventBus,
		metrics:   prometheus,
		instances: instances,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	var publisher eventbus.EventPublisher
	if a.eventBus != nil {
		publisher = a.eventBus
	}

	handlers := web.NewAPIHandlers(services.NewDelivery(a.catalog, a.config), a.validate, publisher).
		WithInstances(a.instances)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Courier API")
	})

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	}

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}

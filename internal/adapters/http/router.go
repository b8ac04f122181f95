package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/pharmacover/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// RouteOptions tunes SetupRoutes.
type RouteOptions struct {
	// RateLimit is the number of requests per minute per IP; zero disables limiting.
	RateLimit int
	// OpenAPIPath overrides DefaultOpenAPIPath.
	OpenAPIPath string
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies, opts RouteOptions) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next:  func(c *fiber.Ctx) bool { return c.Path() == "/ws" },
	}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	if opts.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Public
	app.Get("/v1/health", HealthHandler())
	app.Get("/v1/ready", ReadyHandler(deps))
	app.Get("/v1/presets", PresetsHandler())
	SetupDocs(app, opts.OpenAPIPath)

	auth := AuthMiddleware(deps)

	v1 := app.Group("/v1", auth...)
	v1.Get("/me", timeout.NewWithContext(MeHandler(deps), requestTimeout))
	v1.Get("/stats/requests", timeout.NewWithContext(RequestStatsHandler(deps), requestTimeout))

	v1.Post("/searches/estimate", timeout.NewWithContext(EstimateHandler(deps), requestTimeout))
	v1.Get("/searches", timeout.NewWithContext(ListSearchesHandler(deps), requestTimeout))
	v1.Get("/searches/:id", timeout.NewWithContext(GetSearchHandler(deps), requestTimeout))
	v1.Get("/searches/:id/coverage", timeout.NewWithContext(CoverageHandler(deps), requestTimeout))
	v1.Get("/searches/:id/places.csv", timeout.NewWithContext(PlacesCSVHandler(deps), requestTimeout))

	// A synchronous search runs the whole grid inside the request.
	create := CreateSearchHandler(deps)
	if deps.SearchTimeout > 0 {
		create = timeout.NewWithContext(create, deps.SearchTimeout)
	}
	v1.Post("/searches", create)

	admin := v1.Group("/users", AdminOnly())
	admin.Get("/", timeout.NewWithContext(ListUsersHandler(deps), requestTimeout))
	admin.Post("/", timeout.NewWithContext(CreateUserHandler(deps), requestTimeout))
	admin.Delete("/:username", timeout.NewWithContext(DeleteUserHandler(deps), requestTimeout))
	admin.Put("/:username/credits", timeout.NewWithContext(SetCreditsHandler(deps), requestTimeout))

	app.Post("/graphql", append(auth, GraphQLHandler(deps))...)

	if deps.Relay != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", append(auth, websocket.New(WebSocketHandler(deps.Relay)))...)
	}
}

package router

import (
	"net/http"

	"github.com/anonto42/nano-midea/notifications/internal/handlers"
	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/realtime"
	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Dependencies are the wired components the routes are served by.
type Dependencies struct {
	Notifications repositories.NotificationRepository
	Authorizer    handlers.ChannelAuthorizer
	Events        handlers.EventSource
	WebSocket     *realtime.WebSocketHandler
	Identity      middleware.IdentityResolver
	InternalKey   string
	Log           *zap.Logger
}

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo, log *zap.Logger) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	e.Use(middleware.RequestLogger(log))
	// Upgraded websocket connections outlive the request span.
	e.Use(echo.WrapMiddleware(otelhttp.NewMiddleware("notifications",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/ws" }),
	)))
	log.Info("Global middleware configured.")
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Dependencies) {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Protected routes (require an authenticated identity) ---
	api := e.Group("/api/v1")
	api.Use(middleware.Authenticate(deps.Identity, false))
	log.Info("Authentication middleware applied to /api/v1 group.")

	notificationHandler := handlers.NewNotificationHandler(deps.Notifications, log)
	notificationHandler.RegisterNotificationRoutes(api)
	log.Info("Notification routes configured.")

	broadcastHandler := handlers.NewBroadcastAuthHandler(deps.Authorizer, log)
	broadcastHandler.RegisterBroadcastRoutes(api)
	log.Info("Broadcasting routes configured.")

	if deps.WebSocket != nil {
		deps.WebSocket.RegisterWebSocketRoutes(e, middleware.Authenticate(deps.Identity, true))
		log.Info("WebSocket route configured.")
	}

	// --- Service-to-service routes ---
	internal := e.Group("/internal", middleware.InternalKeyAuth(deps.InternalKey))
	eventsHandler := handlers.NewEventsHandler(deps.Events, log)
	eventsHandler.RegisterEventRoutes(internal)
	if deps.InternalKey == "" {
		log.Warn("Internal API key not set; /internal routes reject every request.")
	}
	log.Info("Event routes configured.")

	log.Info("All routes configured.")
}

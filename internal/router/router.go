package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/workshop-booking/internal/config"
	"github.com/iliyamo/workshop-booking/internal/handler"
	"github.com/iliyamo/workshop-booking/internal/middleware"
	"github.com/iliyamo/workshop-booking/internal/model"
)

// RegisterRoutes registers the probes used by load balancers.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers the identity endpoints.  Token exchange lives
// under /v1/auth without JWT; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// logout accepts either a bearer token or a refresh token in the body
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	auth.GET("/me", a.Me)
}

// RegisterBooking registers the free registration and checkout endpoints
// behind JWT, role and rate limiting.
func RegisterBooking(e *echo.Echo, r *handler.RegistrationHandler, me *handler.MeHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	guard := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
		middleware.RateLimit(rl, rdb),
	}
	e.POST("/registration/free", r.RegisterFree, guard...)
	e.POST("/checkout/create", r.CreateCheckout, guard...)

	g := e.Group("/v1/me", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	g.GET("/upcoming", me.Upcoming)
	g.GET("/purchases", me.Purchases)
}

// RegisterWebhook registers the payment provider callback.  It carries no
// JWT: the signature header is the only credential.
func RegisterWebhook(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/webhooks/payment", w.Payment)
}

// RegisterCatalog registers the public catalogue behind the response cache.
func RegisterCatalog(e *echo.Echo, c *handler.CatalogHandler, cc config.CacheConfig, rdb *redis.Client) {
	g := e.Group("/v1/workshops", middleware.ResponseCache(cc, rdb))
	g.GET("", c.ListWorkshops)
	g.GET("/:id", c.GetWorkshop)
	e.GET("/v1/search/sessions", c.SearchSessions, middleware.ResponseCache(cc, rdb))
}

// RegisterAdmin registers catalogue management for admins.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	g.POST("/workshops", a.CreateWorkshop)
	g.PUT("/workshops/:id", a.UpdateWorkshop)
	g.GET("/sessions/:id/participants", a.ListParticipants)
}

package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/museum-checkout/internal/config"
	"github.com/iliyamo/museum-checkout/internal/handler"
	"github.com/iliyamo/museum-checkout/internal/metrics"
	"github.com/iliyamo/museum-checkout/internal/middleware"
	"github.com/iliyamo/museum-checkout/internal/model"
)

// Deps is everything the route table needs.  Redis may be nil, in which
// case rate limiting and caching are pass-throughs.
type Deps struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
	DB        handler.Pinger

	Checkout *handler.CheckoutHandler
	Events   *handler.EventHandler
	Admin    *handler.AdminHandler
}

// RegisterRoutes registers the public probes and /metrics.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterCheckout registers the checkout routes under /v1/checkout.  POS
// sales need a token with any known role; donations accept guests; the
// membership signup desk is open but rate limited like the rest.
func RegisterCheckout(e *echo.Echo, d Deps) {
	// The limiter runs after authentication so buckets can be keyed per user.
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)
	g := e.Group("/v1/checkout")

	g.POST("/pos", d.Checkout.POS,
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleEmployee, model.RoleAdmin),
		limit)
	g.POST("/donations", d.Checkout.Donate, middleware.OptionalJWT(d.JWTSecret), limit)
	g.POST("/memberships", d.Checkout.SignupMembership, middleware.OptionalJWT(d.JWTSecret), limit)
}

// RegisterPublic registers the guest-facing event and donor wall routes.
// Availability responses are cached briefly in Redis.
func RegisterPublic(e *echo.Echo, d Deps) {
	v1 := e.Group("/v1")
	v1.GET("/events/:id/availability", d.Events.Availability, middleware.NewRedisCache(d.Cache, d.Redis))
	v1.POST("/events/:id/rsvp", d.Events.RSVP,
		middleware.OptionalJWT(d.JWTSecret), middleware.NewTokenBucket(d.RateLimit, d.Redis))
	v1.GET("/donations/public", d.Checkout.PublicDonations)
}

// RegisterAdmin registers staff routes under /v1/admin.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleEmployee, model.RoleAdmin),
	)
	g.PATCH("/giftshop/:id/stock", d.Admin.AdjustStock)
	g.GET("/notifications", d.Admin.Notifications)
}

// Register wires every route group.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d)
	RegisterCheckout(e, d)
	RegisterPublic(e, d)
	RegisterAdmin(e, d)
}

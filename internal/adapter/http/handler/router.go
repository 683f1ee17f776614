package handler

import (
	"time"

	"bank-ledger/internal/adapter/http/middleware"
	"bank-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc          ports.AuthService
	LedgerSvc        ports.LedgerService
	ReportingSvc     ports.ReportingService
	UserAdminSvc     ports.UserAdminService
	TokenSvc         ports.TokenService
	RateLimitStore   ports.RateLimitStore   // nil = rate limiting disabled
	IdempotencyCache ports.IdempotencyCache // nil = idempotent replays disabled
	IdempotencyTTL   time.Duration
	MaxInFlight      int64
	HealthCheckers   []ports.HealthChecker
	AuditSvc         ports.AuditService // nil = audit logging disabled
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()
	noop := func(c *gin.Context) { c.Next() }

	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return noop
		}
		rule, ok := rules[group]
		if !ok {
			return noop
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	idem := noop
	if deps.IdempotencyCache != nil {
		idem = middleware.Idempotency(deps.IdempotencyCache, deps.IdempotencyTTL, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes; the engine is only reachable past here ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	inFlight := middleware.MaxInFlight(deps.MaxInFlight)

	v1.POST("/auth/password", jwtAuth, rl("mutations"), authHandler.ChangePassword)

	accountHandler := NewAccountHandler(deps.LedgerSvc)
	accounts := v1.Group("/accounts", jwtAuth, inFlight)
	{
		accounts.GET("", rl("reads"), accountHandler.List)
		accounts.POST("", rl("mutations"), idem, accountHandler.Create)
		accounts.GET("/:iban", rl("reads"), accountHandler.Get)
		accounts.DELETE("/:iban", rl("mutations"), idem, accountHandler.Delete)
		accounts.GET("/:iban/balance", rl("reads"), accountHandler.Balance)
		accounts.GET("/:iban/transactions", rl("reads"), accountHandler.History)
		accounts.POST("/:iban/deposit", rl("mutations"), idem, accountHandler.Deposit)
		accounts.POST("/:iban/withdraw", rl("mutations"), idem, accountHandler.Withdraw)
		accounts.POST("/:iban/transfer", rl("mutations"), idem, accountHandler.Transfer)
	}

	adminHandler := NewAdminHandler(deps.ReportingSvc, deps.UserAdminSvc)
	admin := v1.Group("/admin", jwtAuth, middleware.RequireAdmin(), rl("admin"))
	{
		admin.GET("/summary", adminHandler.Summary)
		admin.GET("/users", adminHandler.ListUsers)
		admin.POST("/users/:username/block", adminHandler.Block)
		admin.POST("/users/:username/unblock", adminHandler.Unblock)
	}

	return r
}

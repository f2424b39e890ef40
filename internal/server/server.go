// Package server contains HTTP handlers for the tenant administration API.
package server

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"arbor/internal/cache"
	"arbor/internal/config"
	"arbor/internal/database"
	"arbor/internal/middleware"
	"arbor/internal/models"
	"arbor/internal/notifications"
	"arbor/internal/provider"
	"arbor/internal/repository"
	"arbor/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	connector      *database.BranchConnector

	requestRepo repository.TenantRequestRepository
	settingRepo repository.SettingRepository
	profileRepo repository.ProfileRepository

	notifier *notifications.Notifier

	lifecycleService *service.LifecycleService
	branchService    *service.BranchService
	domainService    *service.DomainService
	settingsService  *service.SettingsService
	resolverService  *service.ResolverService
	reconcileService *service.ReconcileService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	branchAPI := provider.NewBranchAPI(cfg.PlatformAPIURL, cfg.PlatformAPIToken)
	domainAPI := provider.NewDomainAPI(cfg.DomainAPIURL, cfg.DomainAPIToken)

	return newServer(cfg, db, redisClient, branchAPI, domainAPI, provider.NewProber())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and the
// provider clients.
func NewServerWithDeps(
	cfg *config.Config, db *gorm.DB, redisClient *redis.Client,
	branchAPI provider.BranchAPI, domainAPI provider.DomainAPI, prober provider.Prober,
) (*Server, error) {
	return newServer(cfg, db, redisClient, branchAPI, domainAPI, prober)
}

func newServer(
	cfg *config.Config, db *gorm.DB, redisClient *redis.Client,
	branchAPI provider.BranchAPI, domainAPI provider.DomainAPI, prober provider.Prober,
) (*Server, error) {
	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("arbor-api"),
		connector:      database.NewBranchConnector(cfg),
		requestRepo:    repository.NewTenantRequestRepository(db),
		settingRepo:    repository.NewSettingRepository(db),
		profileRepo:    repository.NewProfileRepository(db),
	}

	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
	}

	server.branchService = service.NewBranchService(
		branchAPI, server.connector, server.requestRepo, database.ExpectedBranchTables)
	server.domainService = service.NewDomainService(domainAPI, prober, server.requestRepo)
	server.lifecycleService = service.NewLifecycleService(
		server.requestRepo, server.profileRepo, server.branchService,
		server.domainService, server.notifier, cfg.RootDomain)
	server.settingsService = service.NewSettingsService(server.settingRepo, cfg.EditableKeys())
	server.resolverService = service.NewResolverService(
		server.requestRepo, cfg.RootDomain, cfg.ResolverTimeout())
	server.reconcileService = service.NewReconcileService(
		server.branchService, server.connector, server.profileRepo, cfg.ReconcileWorkers)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware runs before middlewares that can short-circuit (e.g.
	// limiter) so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Arbor Controller Metrics Dashboard",
	}))

	// Hostname resolution: called by the edge on every request, so it stays
	// outside the admin auth surface and outside the global limiter budget.
	api.Get("/resolve", s.ResolveHostname)

	// Admin surface
	admin := api.Group("/admin", s.AuthRequired(), s.AdminRequired())

	requests := admin.Group("/tenants/requests")
	requests.Post("/", middleware.RateLimit(
		s.redis, 10, 10*time.Minute, "tenant_request"), s.CreateTenantRequest)
	requests.Get("/", s.GetTenantRequests)
	requests.Get("/:id", s.GetTenantRequest)
	requests.Post("/:id/approve", s.ApproveTenantRequest)
	requests.Post("/:id/reject", s.RejectTenantRequest)
	requests.Delete("/:id", s.DeleteTenant)

	tenants := admin.Group("/tenants")
	tenants.Post("/:id/domain/bind", s.BindTenantDomain)
	tenants.Get("/:id/domain/verify", s.VerifyTenantDomain)
	tenants.Get("/:id/connectivity", s.CheckTenantConnectivity)

	branches := admin.Group("/branches")
	branches.Get("/", s.GetBranches)
	branches.Get("/:name/health", s.GetBranchHealth)
	branches.Delete("/:name", s.DeleteBranch)

	settings := admin.Group("/settings")
	settings.Get("/", s.GetSettings)
	settings.Get("/export", s.ExportSettings)
	settings.Post("/import", s.ImportSettings)
	settings.Get("/:key", s.GetSetting)
	settings.Put("/:key", s.PutSetting)
	settings.Delete("/:key", s.DeleteSettingOverride)

	admin.Post("/reconcile", s.RunReconciliation)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is an optimization here, not a dependency: the resolver and the
	// settings reads work without it. Report it, never fail readiness on it.
	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(uint)

		admin, _, err := s.adminFlags(c.UserContext(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}

		return c.Next()
	}
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		// Parse and validate token
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(s.config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token claims"))
		}

		if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != "arbor-api" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token issuer"))
		}
		if audience, audienceOk := claims["aud"].(string); !audienceOk || audience != "arbor-admin" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token audience"))
		}

		sub, ok := claims["sub"].(string)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid subject claim"))
		}
		userID, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid user ID in token"))
		}

		// Check JTI for revocation
		if jti, exists := claims["jti"].(string); exists && jti != "" {
			if s.redis != nil {
				isBlacklisted, err := s.redis.Exists(c.Context(), "blacklist:"+jti).Result()
				if err == nil && isBlacklisted > 0 {
					return models.RespondWithError(c, fiber.StatusUnauthorized,
						models.NewUnauthorizedError("Token has been revoked"))
				}
			}
		}

		// Store user ID in context
		c.Locals("userID", uint(userID))
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, uint(userID))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "Arbor Tenant Controller",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.connector.Close(); err != nil {
		log.Printf("error closing branch connections: %v", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}

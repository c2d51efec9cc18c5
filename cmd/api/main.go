package main

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"hotspot-billing.com/platform/internal/audit"
	"hotspot-billing.com/platform/internal/config"
	"hotspot-billing.com/platform/internal/handlers"
	"hotspot-billing.com/platform/internal/middleware"
	"hotspot-billing.com/platform/internal/vouchers"
	"hotspot-billing.com/platform/pkg/database"
	"hotspot-billing.com/platform/pkg/logger"
	"hotspot-billing.com/platform/pkg/redis"
)

func main() {
	// Load environment variables
	godotenv.Load()
	cfg := config.Load()

	log := logger.NewWithLevel(logger.Level(cfg.Log.Level))
	defer log.Sync()
	log.Info("Starting Hotspot Billing API", "version", handlers.Version)

	if cfg.Security.UsingDefaultSecret() {
		log.Warn("JWT_SECRET is not set, using the built-in development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()
	log.Info("Database connected successfully")

	applied, err := db.RunMigrations(cfg.Database.MigrationsPath)
	if err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}
	log.Info("Migrations completed", "files", applied)

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	caps, err := db.ProbeCapabilities(probeCtx)
	cancel()
	if err != nil {
		log.Fatal("Failed to inspect schema", "error", err)
	}
	log.Info("Schema capabilities", "hotspots_is_active", caps.HotspotsIsActive, "packages_is_active", caps.PackagesIsActive)

	var redisClient *redis.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, rate limiting disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Info("Redis connected", "limit", cfg.Redis.RateLimit, "window", cfg.Redis.RateLimitWindow.String())
		}
	}

	recorder := audit.NewRecorder(db, log, cfg.Vouchers.AuditBuffer)

	svc := vouchers.NewService(db, caps, log)
	h := handlers.New(db, svc, recorder, cfg, log)
	if redisClient != nil {
		h.WithCache(redisClient)
	}
	limiter := middleware.NewRateLimiter(redisClient, log, cfg.Redis.RateLimit, cfg.Redis.RateLimitWindow)

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatal("Invalid TRUSTED_PROXIES", "error", err)
	}

	srv := &http.Server{
		Handler:      newRouter(h, limiter, proxies, cfg, log),
		Addr:         ":" + cfg.Server.Port,
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			recorder.Close()
			log.Fatal("Server failed", "error", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
	}

	// Flush audit entries from in-flight requests before the pool closes.
	recorder.Close()
	log.Info("Server stopped")
}

func newRouter(h *handlers.Handler, limiter *middleware.RateLimiter, proxies []netip.Prefix, cfg *config.Config, log *logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RealIP(proxies), middleware.RequestID, middleware.Recover(log))

	// ============== VOUCHER INGESTION (API key) ==============
	batch := limiter.Middleware(http.HandlerFunc(h.CreateVoucherBatch))
	r.Handle("/vouchers", batch)
	r.Handle("/vouchers.php", batch)
	r.Handle("/api/vouchers", batch).Methods(http.MethodPost, http.MethodOptions)

	// ============== PUBLIC ROUTES ==============
	r.HandleFunc("/api/health", h.HealthCheck).Methods(http.MethodGet)
	r.Handle("/api/auth/login", limiter.Middleware(http.HandlerFunc(h.Login))).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// ============== RESELLER DASHBOARD (JWT) ==============
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.Security.JWTSecret))

	api.HandleFunc("/vouchers", h.GetVouchers).Methods(http.MethodGet)
	api.HandleFunc("/reseller/api-key", h.GenerateAPIKey).Methods(http.MethodPost)
	api.HandleFunc("/logs", h.GetAPILogs).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Authorization", "Content-Type"},
		ExposedHeaders:       []string{"X-Request-ID", "Retry-After"},
		OptionsSuccessStatus: http.StatusOK,
	})

	return c.Handler(r)
}

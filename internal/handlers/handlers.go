package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"hotspot-billing.com/platform/internal/audit"
	"hotspot-billing.com/platform/internal/config"
	"hotspot-billing.com/platform/internal/vouchers"
	"hotspot-billing.com/platform/pkg/database"
	"hotspot-billing.com/platform/pkg/logger"
)

const Version = "1.0.0"

// AuditSink receives one entry per API call. Implementations must not block.
type AuditSink interface {
	Record(e audit.Entry)
}

// Pinger reports whether an optional dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db       *database.DB
	vouchers *vouchers.Service
	audit    AuditSink
	cache    Pinger
	validate *validator.Validate
	logger   *logger.Logger

	jwtSecret    string
	jwtTTL       time.Duration
	maxBatchSize int
	now          func() time.Time
}

func New(db *database.DB, svc *vouchers.Service, sink AuditSink, cfg *config.Config, l *logger.Logger) *Handler {
	return &Handler{
		db:           db,
		vouchers:     svc,
		audit:        sink,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       l,
		jwtSecret:    cfg.Security.JWTSecret,
		jwtTTL:       cfg.Security.JWTTTL,
		maxBatchSize: cfg.Vouchers.MaxBatchSize,
		now:          time.Now,
	}
}

// WithCache makes HealthCheck report on the rate limiter's Redis.
func (h *Handler) WithCache(p Pinger) *Handler {
	h.cache = p
	return h
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := h.db.PingContext(r.Context()); err != nil {
		dbStatus = "disconnected"
	}

	data := map[string]interface{}{
		"version":   Version,
		"timestamp": h.now().Format(time.RFC3339),
		"database":  dbStatus,
	}
	if h.cache != nil {
		data["redis"] = "connected"
		if err := h.cache.Ping(r.Context()); err != nil {
			data["redis"] = "disconnected"
		}
	}

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Hotspot Billing API is running",
		Data:    data,
	})
}

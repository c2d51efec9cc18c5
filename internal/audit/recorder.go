package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"hotspot-billing.com/platform/pkg/database"
	"hotspot-billing.com/platform/pkg/logger"
	"hotspot-billing.com/platform/pkg/metrics"
)

// Entry is one API call. ResellerID is zero when the caller never
// authenticated.
type Entry struct {
	ResellerID   int
	Endpoint     string
	Method       string
	RequestBody  string
	ResponseBody string
	StatusCode   int
	IPAddress    string
	UserAgent    string
}

// Recorder writes entries to api_logs from a background goroutine. Record
// never blocks the caller: when the buffer is full the entry is dropped.
type Recorder struct {
	db      *database.DB
	logger  *logger.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	entries chan Entry
	done    chan struct{}
}

func NewRecorder(db *database.DB, l *logger.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	r := &Recorder{
		db:      db,
		logger:  l,
		timeout: 5 * time.Second,
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) Record(e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.entries <- e:
	default:
		metrics.AuditDropped.Inc()
		r.logger.Warn("Audit log buffer full, entry dropped", "endpoint", e.Endpoint, "status", e.StatusCode)
	}
}

// Close stops accepting entries and waits for buffered ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()

	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := Write(ctx, r.db, e); err != nil {
			metrics.AuditWriteErrors.Inc()
			r.logger.Warn("Failed to write audit log", "endpoint", e.Endpoint, "error", err)
		}
		cancel()
	}
}

// Write inserts a single entry synchronously.
func Write(ctx context.Context, db *database.DB, e Entry) error {
	resellerID := sql.NullInt64{Int64: int64(e.ResellerID), Valid: e.ResellerID != 0}

	_, err := db.ExecContext(ctx, `
		INSERT INTO api_logs (reseller_id, endpoint, method, request_data, response_data, status_code, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, resellerID, e.Endpoint, e.Method, e.RequestBody, e.ResponseBody, e.StatusCode, e.IPAddress, e.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to insert api log: %w", err)
	}
	return nil
}

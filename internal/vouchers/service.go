package vouchers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"hotspot-billing.com/platform/internal/models"
	"hotspot-billing.com/platform/pkg/database"
	"hotspot-billing.com/platform/pkg/logger"
)

var (
	ErrInvalidAPIKey  = errors.New("invalid API key or inactive account")
	ErrRouterNotFound = errors.New("router not found")
	ErrNoPackage      = errors.New("no package found")
)

// Service stores API-originated vouchers. Every method is safe for
// concurrent use; no state is shared between calls beyond the pool.
type Service struct {
	db     *database.DB
	caps   database.Capabilities
	logger *logger.Logger
	now    func() time.Time
}

func NewService(db *database.DB, caps database.Capabilities, l *logger.Logger) *Service {
	return &Service{db: db, caps: caps, logger: l, now: time.Now}
}

// AuthenticateAPIKey returns the active reseller owning apiKey.
func (s *Service) AuthenticateAPIKey(ctx context.Context, apiKey string) (models.Reseller, error) {
	var r models.Reseller
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_name, status FROM resellers
		WHERE api_key = $1 AND status = 'active'
	`, apiKey).Scan(&r.ID, &r.BusinessName, &r.Status)

	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrInvalidAPIKey
	}
	if err != nil {
		return r, fmt.Errorf("failed to authenticate api key: %w", err)
	}
	return r, nil
}

// ValidateRouter resolves a router name to the hotspot row owned by the
// reseller.
func (s *Service) ValidateRouter(ctx context.Context, resellerID int, name string) (models.Hotspot, error) {
	query := `SELECT id, name FROM hotspots WHERE reseller_id = $1 AND name = $2`
	if s.caps.HotspotsIsActive {
		query += ` AND is_active = TRUE`
	}

	h := models.Hotspot{ResellerID: resellerID, IsActive: true}
	err := s.db.QueryRowContext(ctx, query, resellerID, name).Scan(&h.ID, &h.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return h, ErrRouterNotFound
	}
	if err != nil {
		return h, fmt.Errorf("failed to validate router: %w", err)
	}
	return h, nil
}

const (
	MatchExact    = "exact"
	MatchPartial  = "partial"
	MatchFallback = "fallback"
)

type Resolution struct {
	Package models.Package
	Match   string
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Service) packageQuery(durationClause string) string {
	query := `SELECT id, name, duration FROM packages WHERE reseller_id = $1` + durationClause
	if s.caps.PackagesIsActive {
		query += ` AND is_active = TRUE`
	}
	return query + ` ORDER BY id ASC LIMIT 1`
}

// ResolvePackage tries every candidate as an exact duration, then every
// candidate as a substring, then falls back to the reseller's lowest-id
// package. The fallback ignores the requested validity entirely, so a 1h
// voucher can land on a 30 day plan.
func (s *Service) ResolvePackage(ctx context.Context, resellerID int, candidates []string) (Resolution, error) {
	exact := s.packageQuery(` AND duration = $2`)
	for _, c := range candidates {
		p, ok, err := s.findPackage(ctx, exact, resellerID, c)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{Package: p, Match: MatchExact}, nil
		}
	}

	partial := s.packageQuery(` AND duration LIKE $2`)
	for _, c := range candidates {
		p, ok, err := s.findPackage(ctx, partial, resellerID, "%"+likeEscaper.Replace(c)+"%")
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{Package: p, Match: MatchPartial}, nil
		}
	}

	p, ok, err := s.findPackage(ctx, s.packageQuery(""), resellerID)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{}, ErrNoPackage
	}

	s.logger.Warn("Package assigned by fallback", "reseller_id", resellerID, "candidates", candidates, "package_id", p.ID)
	return Resolution{Package: p, Match: MatchFallback}, nil
}

func (s *Service) findPackage(ctx context.Context, query string, args ...interface{}) (models.Package, bool, error) {
	var p models.Package
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.Name, &p.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, fmt.Errorf("failed to look up package: %w", err)
	}
	return p, true, nil
}

// CodeExists checks voucher codes across all resellers.
func (s *Service) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vouchers WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check voucher code: %w", err)
	}
	return exists, nil
}

type NewVoucher struct {
	Code       string
	Password   string
	PackageID  int
	ResellerID int
	RouterID   sql.NullInt64
	Profile    string
	Validity   string
	Comment    string
	Metadata   []byte
	CreatedAt  time.Time
}

// StoreVoucher inserts one API-created voucher and returns its id. The code
// doubles as the hotspot username.
func (s *Service) StoreVoucher(ctx context.Context, v NewVoucher) (int, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vouchers (code, username, password, package_id, reseller_id, router_id,
			profile, validity, comment, metadata, api_created, customer_phone, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, 'api', 'active', $11)
		RETURNING id
	`, v.Code, v.Code, v.Password, v.PackageID, v.ResellerID, v.RouterID,
		v.Profile, v.Validity, v.Comment, string(v.Metadata), v.CreatedAt).Scan(&id)

	if err != nil {
		return 0, err
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

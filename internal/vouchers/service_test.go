package vouchers

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hotspot-billing.com/platform/internal/models"
	"hotspot-billing.com/platform/pkg/database"
	"hotspot-billing.com/platform/pkg/logger"
)

var fixedNow = time.Date(2025, 10, 5, 22, 11, 52, 0, time.UTC)

func newTestService(t *testing.T, caps database.Capabilities) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	svc := NewService(&database.DB{DB: sqlDB}, caps, logger.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, mock
}

func exactly(query string) string {
	return "^" + regexp.QuoteMeta(query) + "$"
}

const (
	exactActiveQuery    = `SELECT id, name, duration FROM packages WHERE reseller_id = $1 AND duration = $2 AND is_active = TRUE ORDER BY id ASC LIMIT 1`
	partialActiveQuery  = `SELECT id, name, duration FROM packages WHERE reseller_id = $1 AND duration LIKE $2 AND is_active = TRUE ORDER BY id ASC LIMIT 1`
	fallbackActiveQuery = `SELECT id, name, duration FROM packages WHERE reseller_id = $1 AND is_active = TRUE ORDER BY id ASC LIMIT 1`
	exactAnyQuery       = `SELECT id, name, duration FROM packages WHERE reseller_id = $1 AND duration = $2 ORDER BY id ASC LIMIT 1`
	codeExistsQuery     = `SELECT EXISTS (SELECT 1 FROM vouchers WHERE code = $1)`
)

func packageRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "duration"})
}

func TestAuthenticateAPIKey(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{})

	mock.ExpectQuery(regexp.QuoteMeta("FROM resellers")).
		WithArgs("K").
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_name", "status"}).AddRow(1, "Acme", "active"))

	r, err := svc.AuthenticateAPIKey(context.Background(), "K")
	require.NoError(t, err)
	assert.Equal(t, 1, r.ID)
	assert.Equal(t, "Acme", r.BusinessName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateAPIKeyUnknownOrInactive(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{})

	mock.ExpectQuery(regexp.QuoteMeta("status = 'active'")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.AuthenticateAPIKey(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestAuthenticateAPIKeyDatabaseError(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{})

	mock.ExpectQuery("FROM resellers").WillReturnError(errors.New("connection refused"))

	_, err := svc.AuthenticateAPIKey(context.Background(), "K")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidAPIKey)
}

func TestValidateRouterWithActiveColumn(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{HotspotsIsActive: true})

	mock.ExpectQuery(exactly(`SELECT id, name FROM hotspots WHERE reseller_id = $1 AND name = $2 AND is_active = TRUE`)).
		WithArgs(1, "MainAP").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "MainAP"))

	h, err := svc.ValidateRouter(context.Background(), 1, "MainAP")
	require.NoError(t, err)
	assert.Equal(t, 3, h.ID)
	assert.Equal(t, 1, h.ResellerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateRouterWithoutActiveColumn(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{})

	mock.ExpectQuery(exactly(`SELECT id, name FROM hotspots WHERE reseller_id = $1 AND name = $2`)).
		WithArgs(1, "MainAP").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "MainAP"))

	_, err := svc.ValidateRouter(context.Background(), 1, "MainAP")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateRouterNotFound(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{HotspotsIsActive: true})

	mock.ExpectQuery("FROM hotspots").WithArgs(1, "OtherAP").WillReturnError(sql.ErrNoRows)

	_, err := svc.ValidateRouter(context.Background(), 1, "OtherAP")
	assert.ErrorIs(t, err, ErrRouterNotFound)
}

func TestResolvePackageExactMatchWins(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{PackagesIsActive: true})

	mock.ExpectQuery(exactly(exactActiveQuery)).
		WithArgs(1, "1 Hour").
		WillReturnRows(packageRows().AddRow(4, "Hourly", "1 Hour"))

	res, err := svc.ResolvePackage(context.Background(), 1, DurationCandidates("1h"))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Package.ID)
	assert.Equal(t, MatchExact, res.Match)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePackageTriesEveryExactCandidateBeforePartial(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{PackagesIsActive: true})

	mock.ExpectQuery(exactly(exactActiveQuery)).WithArgs(1, "2 Hours").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(exactly(exactActiveQuery)).WithArgs(1, "2 hours").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(exactly(exactActiveQuery)).
		WithArgs(1, "2 Hour").
		WillReturnRows(packageRows().AddRow(9, "Two", "2 Hour"))

	res, err := svc.ResolvePackage(context.Background(), 1, DurationCandidates("2h"))
	require.NoError(t, err)
	assert.Equal(t, 9, res.Package.ID)
	assert.Equal(t, MatchExact, res.Match)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePackagePartialMatch(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{PackagesIsActive: true})

	for _, c := range []string{"1 Day", "1 day", "1 Days"} {
		mock.ExpectQuery(exactly(exactActiveQuery)).WithArgs(1, c).WillReturnError(sql.ErrNoRows)
	}
	mock.ExpectQuery(exactly(partialActiveQuery)).
		WithArgs(1, "%1 Day%").
		WillReturnRows(packageRows().AddRow(11, "Daily", "1 Day Unlimited"))

	res, err := svc.ResolvePackage(context.Background(), 1, DurationCandidates("1d"))
	require.NoError(t, err)
	assert.Equal(t, 11, res.Package.ID)
	assert.Equal(t, MatchPartial, res.Match)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePackageEscapesLikePattern(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{PackagesIsActive: true})

	mock.ExpectQuery(exactly(exactActiveQuery)).WithArgs(1, "50%_off").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(exactly(partialActiveQuery)).
		WithArgs(1, `%50\%\_off%`).
		WillReturnRows(packageRows().AddRow(2, "Promo", "50%_off weekend"))

	res, err := svc.ResolvePackage(context.Background(), 1, DurationCandidates("50%_off"))
	require.NoError(t, err)
	assert.Equal(t, MatchPartial, res.Match)
}

// The fallback hands out an unrelated package when nothing matches. This
// asserts the behaviour exists, not that it is desirable.
func TestResolvePackageFallsBackToAnyActivePackage(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{PackagesIsActive: true})

	candidates := DurationCandidates("1h")
	for _, c := range candidates {
		mock.ExpectQuery(exactly(exactActiveQuery)).WithArgs(1, c).WillReturnError(sql.ErrNoRows)
	}
	for _, c := range candidates {
		mock.ExpectQuery(exactly(partialActiveQuery)).WithArgs(1, "%"+c+"%").WillReturnError(sql.ErrNoRows)
	}
	mock.ExpectQuery(exactly(fallbackActiveQuery)).
		WithArgs(1).
		WillReturnRows(packageRows().AddRow(30, "Monthly", "30 Days"))

	res, err := svc.ResolvePackage(context.Background(), 1, candidates)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Package.ID)
	assert.Equal(t, "30 Days", res.Package.Duration)
	assert.Equal(t, MatchFallback, res.Match)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePackageNoPackages(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{})

	mock.ExpectQuery(exactly(exactAnyQuery)).WithArgs(1, "99x").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("duration LIKE").WithArgs(1, "%99x%").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(exactly(`SELECT id, name, duration FROM packages WHERE reseller_id = $1 ORDER BY id ASC LIMIT 1`)).
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.ResolvePackage(context.Background(), 1, DurationCandidates("99x"))
	assert.ErrorIs(t, err, ErrNoPackage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePackageDatabaseError(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{})

	mock.ExpectQuery("FROM packages").WillReturnError(errors.New("timeout"))

	_, err := svc.ResolvePackage(context.Background(), 1, []string{"1 Hour"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPackage)
}

func TestCodeExists(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{})

	mock.ExpectQuery(exactly(codeExistsQuery)).
		WithArgs("V1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := svc.CodeExists(context.Background(), "V1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStoreVoucher(t *testing.T) {
	svc, mock := newTestService(t, database.Capabilities{})

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO vouchers")).
		WithArgs("V1", "V1", "secret", 7, 1, int64(3), "default", "3h", "note", `{"password":"secret"}`, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := svc.StoreVoucher(context.Background(), NewVoucher{
		Code:       "V1",
		Password:   "secret",
		PackageID:  7,
		ResellerID: 1,
		RouterID:   sql.NullInt64{Int64: 3, Valid: true},
		Profile:    "default",
		Validity:   "3h",
		Comment:    "note",
		Metadata:   []byte(`{"password":"secret"}`),
		CreatedAt:  fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("plain")))
}

func acme() models.Reseller {
	return models.Reseller{ID: 1, BusinessName: "Acme", Status: models.ResellerActive}
}

func mainAP() models.Hotspot {
	return models.Hotspot{ID: 3, ResellerID: 1, Name: "MainAP", IsActive: true}
}

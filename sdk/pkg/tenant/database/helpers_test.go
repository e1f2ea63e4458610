package database

import (
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/provider"
)

var acmeCreds = &provider.CredentialSet{
	Host:     "db.acme.internal",
	Port:     5432,
	Database: "acme",
	User:     "acme_app",
	Password: "s3cr:t/@",
}

// mockOpener 每次打开都创建一个新的 sqlmock 连接池，并记录打开次数与 DSN
type mockOpener struct {
	t *testing.T

	mu             sync.Mutex
	mocks          []sqlmock.Sqlmock
	dbs            []*sql.DB
	dsns           []string
	failValidation bool
	delay          time.Duration
}

func newMockOpener(t *testing.T) *mockOpener {
	return &mockOpener{t: t}
}

func (m *mockOpener) open(driver, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(m.t, err)

	validation := mock.ExpectExec(regexp.QuoteMeta(DefaultValidationQuery))
	m.mu.Lock()
	fail, delay := m.failValidation, m.delay
	m.mu.Unlock()
	if delay > 0 {
		validation.WillDelayFor(delay)
	}
	if fail {
		validation.WillReturnError(errors.New("connection refused"))
	} else {
		validation.WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectClose()

	m.mu.Lock()
	m.mocks = append(m.mocks, mock)
	m.dbs = append(m.dbs, sqlDB)
	m.dsns = append(m.dsns, dsn)
	m.mu.Unlock()

	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), cfg)
}

func (m *mockOpener) opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mocks)
}

func (m *mockOpener) mock(i int) sqlmock.Sqlmock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mocks[i]
}

func (m *mockOpener) setFailValidation(fail bool) {
	m.mu.Lock()
	m.failValidation = fail
	m.mu.Unlock()
}

func (m *mockOpener) setValidationDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

func newTestRegistry(t *testing.T, opener *mockOpener) *Registry {
	t.Helper()
	r := NewRegistry(WithOpener(opener.open))
	t.Cleanup(func() {
		r.Stop()
		r.DisposeAll()
	})
	return r
}

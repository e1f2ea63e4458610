package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Discard,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db, mock
}

func noop(context.Context, *gorm.DB, string) error { return nil }

func TestMigrator_Versions(t *testing.T) {
	m := NewMigrator(nil)
	m.Register("20240301", noop)
	m.Register("20240101", noop)
	m.Register("20240201", noop)

	assert.Equal(t, []string{"20240101", "20240201", "20240301"}, m.Versions())
}

func TestMigrator_Migrate(t *testing.T) {
	db, mock := newMockDB(t)

	m := NewMigrator(nil)
	m.Register("001", noop)
	m.Register("002", func(ctx context.Context, tx *gorm.DB, version string) error {
		return tx.Exec("CREATE TABLE orders (id INT)").Error
	})

	mock.ExpectExec(regexp.QuoteMeta(createTableSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(appliedSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE orders")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sys_migration")).
		WithArgs("002", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Migrate(context.Background(), "acme.example.com", db))
	assert.Equal(t, []string{"001", "002"}, m.Completed("acme.example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())

	// 全部完成后不再访问数据库
	require.NoError(t, m.Migrate(context.Background(), "acme.example.com", db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_MigrateFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	m := NewMigrator(nil)
	m.Register("001", func(context.Context, *gorm.DB, string) error {
		return errors.New("syntax error")
	})

	mock.ExpectExec(regexp.QuoteMeta(createTableSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(appliedSQL)).WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := m.Migrate(context.Background(), "acme.example.com", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Empty(t, m.Completed("acme.example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_NoVersions(t *testing.T) {
	db, mock := newMockDB(t)
	require.NoError(t, NewMigrator(nil).Migrate(context.Background(), "acme.example.com", db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_ConcurrentTenants(t *testing.T) {
	m := NewMigrator(nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m.state(fmt.Sprintf("tenant-%d.example.com", id))
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.tenants, 100)
}

func TestSQLFiles(t *testing.T) {
	dir := t.TempDir()
	sqlFile := filepath.Join(dir, "db.sql")
	content := `-- This is a comment
CREATE TABLE test (id INT);
-- Another comment
INSERT INTO test
  VALUES (1);
`
	require.NoError(t, os.WriteFile(sqlFile, []byte(content), 0644))

	statements, err := readStatements(sqlFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE test (id INT);", "INSERT INTO test VALUES (1);"}, statements)

	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE test (id INT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO test VALUES (1);")).WillReturnResult(sqlmock.NewResult(0, 1))

	fn := SQLFiles(filepath.Join(dir, "missing.sql"), sqlFile)
	require.NoError(t, fn(context.Background(), db, "001"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultSQLFiles(t *testing.T) {
	tests := []struct {
		name      string
		driver    string
		configDir string
		expected  []string
	}{
		{
			name:      "mysql driver",
			driver:    "mysql",
			configDir: "config",
			expected: []string{
				filepath.Join("config", "db-begin-mysql.sql"),
				filepath.Join("config", "db.sql"),
				filepath.Join("config", "db-end-mysql.sql"),
			},
		},
		{
			name:      "postgres driver",
			driver:    "postgres",
			configDir: "config",
			expected: []string{
				filepath.Join("config", "db.sql"),
				filepath.Join("config", "pg.sql"),
			},
		},
		{
			name:      "default driver",
			driver:    "sqlite3",
			configDir: "config",
			expected: []string{
				filepath.Join("config", "db.sql"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DefaultSQLFiles(tt.driver, tt.configDir))
		})
	}
}

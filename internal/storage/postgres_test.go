package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
)

const testOwnerID = "tenant-one"

// AnyTime matches any time.Time driver value.
type AnyTime struct{}

func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

func newTestRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock, func()) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db, PreferSimpleProtocol: true}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	assert.NoError(t, err)
	repo := &PostgresRepo{db: gormDB}
	teardown := func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
	return repo, mock, teardown
}

func contextWithTestTenant() context.Context {
	return tenant.WithOwnerID(context.Background(), testOwnerID)
}

func TestIsTransientError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"pg connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"pg insufficient resources", &pgconn.PgError{Code: "53300"}, true},
		{"pg serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"connection refused string", errors.New("dial tcp: connection refused"), true},
		{"io timeout string", errors.New("read tcp: i/o timeout"), true},
		{"broken pipe string", errors.New("write: broken pipe"), true},
		{"business error", errors.New("credential owner_id is required"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isTransientError(tc.err))
		})
	}
}

func TestCheckConstraintViolation(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected error
	}{
		{"nil error", nil, nil},
		{"record not found", gorm.ErrRecordNotFound, apperrors.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "uq_messages_owner_provider_message_id"}, apperrors.ErrDuplicate},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, apperrors.ErrBadRequest},
		{"not null violation", &pgconn.PgError{Code: "23502", ColumnName: "owner_id"}, apperrors.ErrBadRequest},
		{"check violation", &pgconn.PgError{Code: "23514"}, apperrors.ErrBadRequest},
		{"string too long", &pgconn.PgError{Code: "22001", ColumnName: "content"}, apperrors.ErrBadRequest},
		{"invalid text representation", &pgconn.PgError{Code: "22P02", DataTypeName: "jsonb"}, apperrors.ErrBadRequest},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperrors.ErrDatabase},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, apperrors.ErrDatabase},
		{"insufficient resources", &pgconn.PgError{Code: "53200"}, apperrors.ErrDatabase},
		{"connection exception", &pgconn.PgError{Code: "08003"}, apperrors.ErrDatabase},
		{"unhandled pg code", &pgconn.PgError{Code: "0A000"}, apperrors.ErrDatabase},
		{"plain error", errors.New("something broke"), apperrors.ErrDatabase},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := checkConstraintViolation(tc.err)
			if tc.expected == nil {
				assert.NoError(t, result)
				return
			}
			assert.ErrorIs(t, result, tc.expected)
		})
	}
}

func TestPostgresRepo_Close(t *testing.T) {
	repo, mock, _ := newTestRepo(t)
	mock.ExpectClose()

	err := repo.Close(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func cardRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "code", "barcode", "lost", "state", "created_at", "updated_at"})
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "card_id", "vehicle_class", "state", "entry_time", "exit_time",
		"cost", "discount", "total_paid", "payment_method", "cashier", "created_at", "updated_at",
	})
}

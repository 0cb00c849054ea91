package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestPingAndClose(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	// gorm pings once on open.
	mock.ExpectPing()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), GormConfig())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, Ping(context.Background(), db))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, Ping(context.Background(), db))

	mock.ExpectClose()
	assert.NoError(t, Close(db))
	assert.NoError(t, Close(nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_RequiresDSN(t *testing.T) {
	_, err := Connect("")
	assert.Error(t, err)
}

func TestQueryLogger_Trace(t *testing.T) {
	l := GormConfig().Logger.(*queryLogger)
	calls := 0
	fc := func() (string, int64) {
		calls++
		return "SELECT 1", 1
	}

	l.Trace(context.Background(), time.Now(), fc, nil)
	assert.Zero(t, calls, "fast successful queries are not rendered")

	l.Trace(context.Background(), time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Zero(t, calls)

	l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	assert.Equal(t, 1, calls)

	l.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Equal(t, 2, calls)

	l.LogMode(logger.Silent).Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Equal(t, 2, calls)
}

package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medfayda/internal/platform/config"
)

func TestOpen_EmptyURLMeansNoDatabase(t *testing.T) {
	pool, err := Open(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.Error(t, pool.Health(context.Background()))
	assert.NoError(t, pool.Close())
}

func TestPool_HealthAndMetrics(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectClose()

	pool := &Pool{db: db}
	assert.NoError(t, pool.Health(context.Background()))

	reg := prometheus.NewRegistry()
	require.NoError(t, pool.RegisterMetrics(reg))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	require.NoError(t, pool.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

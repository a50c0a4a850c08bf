package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/sessionctx/types"
)

func TestDialector_UnsupportedDriver(t *testing.T) {
	_, err := Dialector("oracle", "dsn")
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedDriver))

	for _, driver := range []string{"postgres", "mysql", "sqlite", "SQLite3"} {
		d, err := Dialector(driver, "dsn")
		require.NoError(t, err, driver)
		assert.NotNil(t, d)
	}
}

func TestOpen_SQLiteInMemory(t *testing.T) {
	cfg := Config{
		Driver: "sqlite",
		DSN:    "file:open_test?mode=memory&cache=shared",
		Pool:   PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1},
	}

	pm, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Ping(context.Background()))
	assert.False(t, pm.Closed())

	var one int
	require.NoError(t, pm.DB().Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpen_InvalidPool(t *testing.T) {
	_, err := Open(Config{Driver: "sqlite", DSN: ":memory:"}, nil)
	assert.Error(t, err)
}

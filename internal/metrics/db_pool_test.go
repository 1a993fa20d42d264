package metrics

import (
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestUpdateDBPoolStats(t *testing.T) {
	stats := sql.DBStats{
		InUse:              2,
		Idle:               6,
		MaxOpenConnections: 8,
	}

	UpdateDBPoolStats(stats)

	require.Equal(t, 2.0, testutil.ToFloat64(DBConnectionPoolSize.WithLabelValues("active")))
	require.Equal(t, 6.0, testutil.ToFloat64(DBConnectionPoolSize.WithLabelValues("idle")))
	require.Equal(t, 8.0, testutil.ToFloat64(DBConnectionPoolSize.WithLabelValues("max")))
}

package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/gridinv/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMetrics(t *testing.T) {
	metrics.InitRegistry()

	m := NewCacheMetrics()
	impl, ok := m.(*cacheMetrics)
	require.True(t, ok, "registry is initialized, expected the Prometheus implementation")

	m.ObserveOperation("badger", metrics.CacheSave, 1024, time.Millisecond, nil)
	m.ObserveOperation("badger", metrics.CacheLoad, 1024, time.Millisecond, nil)
	m.ObserveOperation("s3", metrics.CacheSave, 0, time.Second, errors.New("access denied"))
	m.RecordMiss("badger")

	assert.Equal(t, 1.0, testutil.ToFloat64(impl.operations.WithLabelValues("badger", metrics.CacheSave, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.operations.WithLabelValues("s3", metrics.CacheSave, "error")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(impl.bytes.WithLabelValues("badger", metrics.CacheLoad)))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.misses.WithLabelValues("badger")))
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordValidation("ok")
	c.RecordValidation("ok")
	c.RecordValidation("tag_mismatch")
	c.RecordLogin("QR_CODE", true)
	c.RecordLogin("MANUAL", false)
	c.RecordCirculation("borrow")
	c.RecordNotification("overdue", false)
	c.RecordTask("overdue_sweep", true)
	c.RecordRequest("/api/books", 200, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.validations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.validations.WithLabelValues("tag_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.logins.WithLabelValues("MANUAL", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.circulation.WithLabelValues("borrow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("overdue", "deduplicated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasks.WithLabelValues("overdue_sweep", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("/api/books", "200")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordValidation("ok")
		c.RecordLogin("MANUAL", true)
		c.RecordRequest("", 500, time.Second)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(reg)
	c.RecordCirculation("return")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `library_circulation_total{event="return"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-maplefresh/internal/obs"
)

func TestDomainMetricsRecordQuotes(t *testing.T) {
	obs.MustRegisterDomainMetrics("maplefresh_test", prometheus.NewRegistry())

	before := testutil.ToFloat64(obs.QuotesComputed.WithLabelValues("preview", "cleaning"))
	obs.ObserveQuote("preview", "cleaning", 214.70)
	require.Equal(t, before+1, testutil.ToFloat64(obs.QuotesComputed.WithLabelValues("preview", "cleaning")))

	obs.Inc(obs.BookingTransitions, "pending", "confirmed")
	require.GreaterOrEqual(t, testutil.ToFloat64(obs.BookingTransitions.WithLabelValues("pending", "confirmed")), float64(1))
}

func TestIncIgnoresNilVector(t *testing.T) {
	require.NotPanics(t, func() { obs.Inc(nil, "a") })
}

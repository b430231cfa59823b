package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "warn")
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "maplefresh", entry["service"])
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	newLogger(&buf, "json", "nonsense")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestRequestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	mw := RequestLogger{Logger: zerolog.New(&buf).Level(zerolog.InfoLevel)}.Middleware

	serve := func(path string, status int) map[string]any {
		buf.Reset()
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		if buf.Len() == 0 {
			return nil
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		return entry
	}

	require.Nil(t, serve("/health/live", http.StatusOK), "health probes log at debug")
	require.Equal(t, "error", serve("/health/ready", http.StatusServiceUnavailable)["level"])
	require.Equal(t, "warn", serve("/api/v1/quotes/x", http.StatusNotFound)["level"])
	require.Equal(t, "info", serve("/api/v1/quotes", http.StatusOK)["level"])
}

func TestInitTracerDisabledAndInvalid(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	require.Error(t, err)

	require.Nil(t, exporterOptions(""))
	require.Len(t, exporterOptions("otel-collector:4318"), 2)
	require.Len(t, exporterOptions("https://collector.example.com/v1/traces"), 1)
}

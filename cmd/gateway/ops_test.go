package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/AMonItor/gateway/pkg/gateway"
)

type fakeGateway struct {
	state gateway.State
}

func (f fakeGateway) State() gateway.State { return f.state }

func TestHealthz(t *testing.T) {
	reg := prometheus.NewRegistry()

	rec := httptest.NewRecorder()
	opsRouter(fakeGateway{state: gateway.StateConnected}, reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", rec.Body.String())

	rec = httptest.NewRecorder()
	opsRouter(fakeGateway{state: gateway.StateConnecting}, reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connecting", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	rec := httptest.NewRecorder()
	opsRouter(fakeGateway{}, reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "gateway_test_total 1"))
}

func TestVersionCommand(t *testing.T) {
	var out strings.Builder
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}

package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/luoyjx/minikv/server"
	"github.com/luoyjx/minikv/storage"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSaver struct {
	err error
}

func (s stubSaver) Save(_ *storage.Store) error { return s.err }
func (s stubSaver) LastSave() time.Time       { return time.Time{} }

func setupTestAdmin(t *testing.T) (*resty.Client, *server.Server) {
	t.Helper()

	store, err := storage.New()
	require.NoError(t, err)
	srv, err := server.New(store, zerolog.Nop(), server.WithServerID("admin-test"))
	require.NoError(t, err)
	return startAdmin(t, srv), srv
}

func startAdmin(t *testing.T, srv *server.Server) *resty.Client {
	t.Helper()

	reg := prometheus.NewRegistry()
	a := New("127.0.0.1:0", srv, reg, zerolog.Nop())
	reg.MustRegister(a.Metrics()...)
	reg.MustRegister(srv.Metrics()...)

	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	return resty.New().SetBaseURL(ts.URL).SetRetryCount(0)
}

func TestAdmin_Healthz(t *testing.T) {
	cl, _ := setupTestAdmin(t)

	resp, err := cl.R().Get("/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "ok", resp.String())

	resp, err = cl.R().Post("/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode())
}

func TestAdmin_Stats(t *testing.T) {
	cl, srv := setupTestAdmin(t)
	srv.Dispatch([]string{"SET", "a", "1"})
	srv.Dispatch([]string{"SET", "b", "2"})

	resp, err := cl.R().Get("/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	st := server.Stats{}
	require.NoError(t, json.Unmarshal(resp.Body(), &st))
	assert.Equal(t, "admin-test", st.ServerID)
	assert.Equal(t, 2, st.Keys)
	assert.False(t, st.Persistence)
}

func TestAdmin_Metrics(t *testing.T) {
	cl, srv := setupTestAdmin(t)
	srv.Dispatch([]string{"GET", "a"})
	srv.Dispatch([]string{"GET", "a"})
	srv.Dispatch([]string{"NOPE"})

	resp, err := cl.R().Get("/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(bytes.NewReader(resp.Body()))
	require.NoError(t, err)

	commands, ok := families["dispatcher_commands_cnt"]
	require.True(t, ok, "dispatcher counters exported")
	counts := map[string]float64{}
	for _, m := range commands.GetMetric() {
		counts[labelValue(m, "command")+"/"+labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, counts["get/ok"])
	assert.Equal(t, 1.0, counts["unknown/error"])

	assert.Contains(t, families, "admin_requests_cnt")
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestAdmin_SnapshotDisabled(t *testing.T) {
	cl, _ := setupTestAdmin(t)

	resp, err := cl.R().Post("/snapshot")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode())
}

func TestAdmin_Snapshot(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "ok", code: http.StatusOK},
		{name: "failure", err: errors.New("disk full"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := storage.New()
			require.NoError(t, err)
			srv, err := server.New(store, zerolog.Nop(), server.WithSaver(stubSaver{err: tt.err}))
			require.NoError(t, err)
			cl := startAdmin(t, srv)

			resp, err := cl.R().Post("/snapshot")
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode())
		})
	}
}

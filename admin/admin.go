package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/horockey/go-toolbox/http_helpers"
	"github.com/luoyjx/minikv/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Admin serves health, stats, metrics and snapshot endpoints over HTTP.
type Admin struct {
	serv    *http.Server
	srv     *server.Server
	logger  zerolog.Logger
	metrics *metrics
}

func New(
	addr string,
	srv *server.Server,
	gatherer prometheus.Gatherer,
	logger zerolog.Logger,
) *Admin {
	a := Admin{
		serv:    &http.Server{Addr: addr},
		srv:     srv,
		logger:  logger,
		metrics: newMetrics(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", a.healthzHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", a.statsHandler).Methods(http.MethodGet)
	router.HandleFunc("/snapshot", a.snapshotHandler).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.Use(a.metricsMW)

	a.serv.Handler = router

	return &a
}

// Handler returns the admin router.
func (a *Admin) Handler() http.Handler {
	return a.serv.Handler
}

func (a *Admin) Metrics() []prometheus.Collector {
	return a.metrics.list()
}

// Start serves until ctx is done, then shuts the server down.
func (a *Admin) Start(ctx context.Context) (resErr error) {
	ln, err := net.Listen("tcp", a.serv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.serv.Addr, err)
	}
	a.logger.Info().Str("addr", ln.Addr().String()).Msg("admin listening")

	var wg sync.WaitGroup
	defer wg.Wait()

	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.serv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		sdCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := a.serv.Shutdown(sdCtx); err != nil {
			resErr = fmt.Errorf("shutting down server: %w", err)
		}
		return resErr

	case err := <-errCh:
		return fmt.Errorf("running server: %w", err)
	}
}

func (a *Admin) metricsMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func(ts time.Time) {
			a.metrics.handleTimeHist.Observe(float64(time.Since(ts)))
		}(time.Now())
		a.metrics.requestsCnt.Inc()
		next.ServeHTTP(w, req)
	})
}

func (a *Admin) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *Admin) statsHandler(w http.ResponseWriter, _ *http.Request) {
	_ = http_helpers.RespondOK(w, a.srv.Stats())
}

func (a *Admin) snapshotHandler(w http.ResponseWriter, _ *http.Request) {
	err := a.srv.Save()
	switch {
	case err == nil:
		_ = http_helpers.RespondOK(w, nil)
	case errors.Is(err, server.ErrPersistenceDisabled):
		_ = http_helpers.RespondWithErr(w, http.StatusServiceUnavailable, err)
	default:
		a.logger.
			Error().
			Err(fmt.Errorf("saving snapshot: %w", err)).
			Send()
		_ = http_helpers.RespondWithErr(w, http.StatusInternalServerError, nil)
	}
}

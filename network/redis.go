package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/horockey/go-toolbox/options"
	"github.com/luoyjx/minikv/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/tidwall/redcon"
)

// ErrNotStarted is returned by Addr and Close before the listener is bound.
var ErrNotStarted = errors.New("listener not started")

// RedisServer accepts client connections and feeds their commands to the
// dispatcher. Both inline and RESP array requests are understood.
type RedisServer struct {
	server         *server.Server
	logger         zerolog.Logger
	maxConnections int

	mu       sync.Mutex
	listener *redcon.Server

	active  atomic.Int64
	metrics *metrics
}

type redisServerParams struct {
	maxConnections int
}

// Sets the limit of simultaneously served connections.
// Default is 0, no limit.
func WithMaxConnections(n int) options.Option[redisServerParams] {
	return func(target *redisServerParams) error {
		if n < 0 {
			return fmt.Errorf("max connections must not be negative, got %d", n)
		}
		target.maxConnections = n
		return nil
	}
}

// NewRedisServer creates a listener serving srv.
func NewRedisServer(srv *server.Server, logger zerolog.Logger, opts ...options.Option[redisServerParams]) (*RedisServer, error) {
	if srv == nil {
		return nil, errors.New("got nil server")
	}
	params := redisServerParams{}
	if err := options.ApplyOptions(&params, opts...); err != nil {
		return nil, fmt.Errorf("applying opts: %w", err)
	}
	return &RedisServer{
		server:         srv,
		logger:         logger,
		maxConnections: params.maxConnections,
		metrics:        newMetrics(),
	}, nil
}

// Start listens on addr and serves until Close. It blocks.
func (rs *RedisServer) Start(addr string) error {
	return rs.ListenAndServe(addr, nil)
}

// ListenAndServe is like Start, additionally sending nil to started once the
// socket is bound, or the bind error.
func (rs *RedisServer) ListenAndServe(addr string, started chan error) error {
	listener := redcon.NewServer(addr,
		rs.handleCommand,
		rs.handleConnect,
		rs.handleDisconnect,
	)

	rs.mu.Lock()
	rs.listener = listener
	rs.mu.Unlock()

	signal := make(chan error, 1)
	done := make(chan error, 1)
	go func() {
		done <- listener.ListenServeAndSignal(signal)
	}()

	if err := <-signal; err != nil {
		if started != nil {
			started <- err
		}
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	rs.logger.Info().Str("addr", listener.Addr().String()).Msg("listening")
	if started != nil {
		started <- nil
	}
	return <-done
}

// Addr returns the bound address.
func (rs *RedisServer) Addr() (net.Addr, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.listener == nil {
		return nil, ErrNotStarted
	}
	return rs.listener.Addr(), nil
}

// Close stops accepting and closes the listener.
func (rs *RedisServer) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.listener == nil {
		return ErrNotStarted
	}
	return rs.listener.Close()
}

// ActiveConnections returns the number of connections being served.
func (rs *RedisServer) ActiveConnections() int {
	return int(rs.active.Load())
}

// Metrics returns the listener collectors.
func (rs *RedisServer) Metrics() []prometheus.Collector {
	return rs.metrics.list()
}

func (rs *RedisServer) handleCommand(conn redcon.Conn, cmd redcon.Command) {
	args := make([]string, len(cmd.Args))
	for i, arg := range cmd.Args {
		args[i] = string(arg)
	}
	conn.WriteRaw(rs.server.Dispatch(args).Bytes())
}

func (rs *RedisServer) handleConnect(conn redcon.Conn) bool {
	if rs.maxConnections > 0 && rs.active.Load() >= int64(rs.maxConnections) {
		rs.metrics.rejectedCnt.Inc()
		rs.logger.Warn().
			Str("remote", conn.RemoteAddr()).
			Int("max_connections", rs.maxConnections).
			Msg("rejecting connection")
		conn.WriteError("ERR max number of clients reached")
		return false
	}
	rs.active.Add(1)
	rs.metrics.acceptedCnt.Inc()
	rs.logger.Debug().Str("remote", conn.RemoteAddr()).Msg("client connected")
	return true
}

func (rs *RedisServer) handleDisconnect(conn redcon.Conn, err error) {
	rs.active.Add(-1)
	ev := rs.logger.Debug().Str("remote", conn.RemoteAddr())
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("client disconnected")
}

package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/horockey/go-toolbox/options"
	"github.com/luoyjx/minikv/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Version is reported by INFO.
const Version = "0.3.0"

// ErrPersistenceDisabled is returned by Save when no snapshot path is configured.
var ErrPersistenceDisabled = errors.New("persistence disabled")

// Saver writes a snapshot of the store. It is satisfied by *persistence.Snapshotter.
type Saver interface {
	Save(store *storage.Store) error
	LastSave() time.Time
}

// Server dispatches parsed commands onto the store. It keeps no per-request
// state and is shared by every connection.
type Server struct {
	store    *storage.Store
	saver    Saver
	id       string
	started  time.Time
	logger   zerolog.Logger
	commands map[string]command
	metrics  *metrics
}

type command struct {
	// argument bounds, not counting the command name; maxArgs < 0 is unbounded
	minArgs int
	maxArgs int
	handler func(args []string) Reply
}

// Option configures a Server.
type Option = options.Option[serverParams]

type serverParams struct {
	saver Saver
	id    string
}

// Sets the snapshot writer used by SAVE.
// Default is none, SAVE then replies with an error.
func WithSaver(saver Saver) options.Option[serverParams] {
	return func(target *serverParams) error {
		if saver == nil {
			return errors.New("got nil saver")
		}
		target.saver = saver
		return nil
	}
}

// Sets the server run id.
// Default is a random UUID.
func WithServerID(id string) options.Option[serverParams] {
	return func(target *serverParams) error {
		if id == "" {
			return errors.New("got empty server id")
		}
		target.id = id
		return nil
	}
}

// New creates a Server on top of store.
func New(store *storage.Store, logger zerolog.Logger, opts ...options.Option[serverParams]) (*Server, error) {
	if store == nil {
		return nil, errors.New("got nil store")
	}
	params := serverParams{id: uuid.NewString()}
	if err := options.ApplyOptions(&params, opts...); err != nil {
		return nil, fmt.Errorf("applying opts: %w", err)
	}

	s := &Server{
		store:   store,
		saver:   params.saver,
		id:      params.id,
		started: store.Now(),
		logger:  logger,
		metrics: newMetrics(),
	}
	s.commands = map[string]command{
		"ping":   {minArgs: 0, maxArgs: 1, handler: s.ping},
		"echo":   {minArgs: 0, maxArgs: 1, handler: s.echo},
		"set":    {minArgs: 2, maxArgs: -1, handler: s.set},
		"get":    {minArgs: 1, maxArgs: 1, handler: s.get},
		"ttl":    {minArgs: 1, maxArgs: 1, handler: s.ttl},
		"pttl":   {minArgs: 1, maxArgs: 1, handler: s.pttl},
		"exists": {minArgs: 1, maxArgs: -1, handler: s.exists},
		"dbsize": {minArgs: 0, maxArgs: 0, handler: s.dbsize},
		"save":   {minArgs: 0, maxArgs: 0, handler: s.save},
		"info":   {minArgs: 0, maxArgs: 1, handler: s.info},
		"client": {minArgs: 0, maxArgs: -1, handler: s.client},
	}
	return s, nil
}

// Dispatch executes one command. args[0] is the command name, matched
// case-insensitively. Bad input always produces an error reply.
func (s *Server) Dispatch(args []string) (reply Reply) {
	if len(args) == 0 {
		return Error("empty command")
	}
	name := strings.ToLower(args[0])

	cmd, ok := s.commands[name]
	if !ok {
		s.metrics.observe("unknown", Error(""), 0)
		s.logger.Debug().Str("command", name).Msg("unknown command")
		return Error("unknown command")
	}

	defer func(ts time.Time) {
		s.metrics.observe(name, reply, time.Since(ts))
	}(time.Now())

	n := len(args) - 1
	if n < cmd.minArgs || (cmd.maxArgs >= 0 && n > cmd.maxArgs) {
		return Error(fmt.Sprintf("wrong number of arguments for '%s' command", name))
	}
	return cmd.handler(args[1:])
}

// Save writes a snapshot through the configured saver.
func (s *Server) Save() error {
	if s.saver == nil {
		return ErrPersistenceDisabled
	}
	return s.saver.Save(s.store)
}

// Stats is a summary of the server state.
type Stats struct {
	ServerID      string `json:"server_id"`
	Keys          int    `json:"keys"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Persistence   bool   `json:"persistence"`
	LastSaveUnix  int64  `json:"last_save_unix,omitempty"`
}

// Stats returns the current summary.
func (s *Server) Stats() Stats {
	st := Stats{
		ServerID:      s.id,
		Keys:          s.store.Len(),
		UptimeSeconds: int64(s.store.Now().Sub(s.started) / time.Second),
		Persistence:   s.saver != nil,
	}
	if s.saver != nil {
		if last := s.saver.LastSave(); !last.IsZero() {
			st.LastSaveUnix = last.Unix()
		}
	}
	return st
}

// ID returns the server run id.
func (s *Server) ID() string {
	return s.id
}

// Metrics returns the dispatcher collectors.
func (s *Server) Metrics() []prometheus.Collector {
	return s.metrics.list()
}

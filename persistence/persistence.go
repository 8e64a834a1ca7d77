package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/horockey/go-toolbox/options"
	"github.com/luoyjx/minikv/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	// ErrNoSnapshot is returned by Backend.Load when nothing was saved yet.
	ErrNoSnapshot = errors.New("persistence: no snapshot")
	// ErrCorrupt is returned when a stored snapshot cannot be decoded.
	ErrCorrupt = errors.New("persistence: corrupt snapshot")
)

// Backend stores and retrieves a single snapshot. Deadlines handed to Save
// and returned by Load are wall-clock instants without a monotonic reading.
type Backend interface {
	Save(snap storage.Snapshot) error
	Load() (storage.Snapshot, error)
	Path() string
}

// Supported snapshot encodings.
const (
	FormatJSON   = "json"
	FormatBinary = "binary"
	FormatBolt   = "bolt"
)

// NewBackend returns the backend for format writing to path.
func NewBackend(format, path string) (Backend, error) {
	if path == "" {
		return nil, errors.New("got empty snapshot path")
	}
	switch format {
	case FormatJSON, "":
		return NewJSONFile(path), nil
	case FormatBinary:
		return NewBinaryFile(path), nil
	case FormatBolt:
		return NewBoltFile(path), nil
	default:
		return nil, fmt.Errorf("unknown snapshot format: %s", format)
	}
}

// Snapshotter bridges a Store and a Backend. It translates deadlines between
// the process clock and wall-clock time and never lets a persistence failure
// escape as anything but a logged, returned error.
type Snapshotter struct {
	backend  Backend
	logger   zerolog.Logger
	now      func() time.Time
	interval time.Duration
	metrics  *metrics

	mu       sync.Mutex
	lastSave time.Time
}

type snapshotterParams struct {
	now      func() time.Time
	interval time.Duration
}

// Sets the time source used to rebase deadlines on load.
// Default is time.Now.
func WithClock(now func() time.Time) options.Option[snapshotterParams] {
	return func(target *snapshotterParams) error {
		if now == nil {
			return errors.New("got nil clock")
		}
		target.now = now
		return nil
	}
}

// Sets the period of background saves. Zero disables periodic saves,
// leaving only the final save on shutdown.
// Default is 0.
func WithInterval(d time.Duration) options.Option[snapshotterParams] {
	return func(target *snapshotterParams) error {
		if d < 0 {
			return fmt.Errorf("snapshot interval must not be negative, got: %s", d.String())
		}
		target.interval = d
		return nil
	}
}

// New creates a Snapshotter on top of backend.
func New(backend Backend, logger zerolog.Logger, opts ...options.Option[snapshotterParams]) (*Snapshotter, error) {
	if backend == nil {
		return nil, errors.New("got nil backend")
	}
	params := snapshotterParams{now: time.Now}
	if err := options.ApplyOptions(&params, opts...); err != nil {
		return nil, fmt.Errorf("applying opts: %w", err)
	}

	return &Snapshotter{
		backend:  backend,
		logger:   logger.With().Str("path", backend.Path()).Logger(),
		now:      params.now,
		interval: params.interval,
		metrics:  newMetrics(),
	}, nil
}

// Save writes the current contents of store.
func (sn *Snapshotter) Save(store *storage.Store) (resErr error) {
	defer func(ts time.Time) {
		sn.metrics.saveTimeHist.Observe(float64(time.Since(ts)))
		if resErr != nil {
			sn.metrics.saveErrCnt.Inc()
			sn.logger.Error().Err(resErr).Msg("snapshot save failed")
		}
	}(time.Now())

	sn.mu.Lock()
	defer sn.mu.Unlock()

	snap := toWallClock(store.Snapshot())
	if err := sn.backend.Save(snap); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	sn.lastSave = snap.TakenAt
	sn.metrics.saveCnt.Inc()
	sn.metrics.lastSaveGauge.Set(float64(snap.TakenAt.Unix()))
	sn.logger.Info().Int("keys", snap.Len()).Msg("snapshot saved")
	return nil
}

// Load reads the stored snapshot and rebases its deadlines on the current
// time. Keys whose deadline passed while the process was down are dropped.
// It reports false on a cold start, including unreadable or corrupt data.
func (sn *Snapshotter) Load() (storage.Snapshot, bool) {
	snap, err := sn.backend.Load()
	switch {
	case errors.Is(err, ErrNoSnapshot):
		sn.logger.Info().Msg("no snapshot found, starting empty")
		return storage.Snapshot{}, false
	case err != nil:
		sn.metrics.loadErrCnt.Inc()
		sn.logger.Error().Err(err).Msg("snapshot unreadable, starting empty")
		return storage.Snapshot{}, false
	}

	if err := snap.Validate(); err != nil {
		sn.metrics.loadErrCnt.Inc()
		sn.logger.Error().Err(fmt.Errorf("%w: %w", ErrCorrupt, err)).Msg("snapshot inconsistent, starting empty")
		return storage.Snapshot{}, false
	}

	snap, dropped := rebase(snap, sn.now())
	sn.logger.Info().
		Int("keys", snap.Len()).
		Int("expired", dropped).
		Time("taken_at", snap.TakenAt).
		Msg("snapshot loaded")
	return snap, true
}

// LoadInto loads the stored snapshot into store. It reports whether any
// snapshot was restored.
func (sn *Snapshotter) LoadInto(store *storage.Store) bool {
	snap, ok := sn.Load()
	if !ok {
		return false
	}
	store.Restore(snap)
	return true
}

// Run saves store every interval and once more when ctx is cancelled.
func (sn *Snapshotter) Run(ctx context.Context, store *storage.Store) {
	if sn.interval > 0 {
		ticker := time.NewTicker(sn.interval)
		defer ticker.Stop()

		for loop := true; loop; {
			select {
			case <-ctx.Done():
				loop = false
			case <-ticker.C:
				_ = sn.Save(store)
			}
		}
	} else {
		<-ctx.Done()
	}

	_ = sn.Save(store)
}

// LastSave returns the capture time of the last successful save.
func (sn *Snapshotter) LastSave() time.Time {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.lastSave
}

// Path returns the backend location.
func (sn *Snapshotter) Path() string {
	return sn.backend.Path()
}

// Metrics returns the snapshotter collectors.
func (sn *Snapshotter) Metrics() []prometheus.Collector {
	return sn.metrics.list()
}

// toWallClock converts process deadlines into wall-clock deadlines using the
// time remaining at capture, so a wall-clock step during the run is not
// written out.
func toWallClock(snap storage.Snapshot) storage.Snapshot {
	wallTaken := snap.TakenAt.Round(0)
	expiry := make(map[string]time.Time, len(snap.Expiry))
	for key, deadline := range snap.Expiry {
		expiry[key] = wallTaken.Add(deadline.Sub(snap.TakenAt))
	}
	return storage.Snapshot{
		Values:  snap.Values,
		Expiry:  expiry,
		TakenAt: wallTaken,
	}
}

// rebase turns wall-clock deadlines into deadlines relative to now and drops
// the keys already past theirs.
func rebase(snap storage.Snapshot, now time.Time) (storage.Snapshot, int) {
	values := make(map[string]string, len(snap.Values))
	for key, value := range snap.Values {
		values[key] = value
	}

	expiry := make(map[string]time.Time, len(snap.Expiry))
	dropped := 0
	for key, deadline := range snap.Expiry {
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			delete(values, key)
			dropped++
			continue
		}
		expiry[key] = now.Add(remaining)
	}

	return storage.Snapshot{
		Values:  values,
		Expiry:  expiry,
		TakenAt: snap.TakenAt,
	}, dropped
}

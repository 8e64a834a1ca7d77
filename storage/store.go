package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/horockey/go-toolbox/options"
	"github.com/prometheus/client_golang/prometheus"
)

// NoExpiry is reported by TTL for keys that never expire.
const NoExpiry time.Duration = -1

// Store is the in-memory key space shared by every connection and by the
// sweeper. Values and deadlines live in two maps keyed by the same key; a key
// without a deadline is absent from expiry. Every key in expiry is also in
// values, and both maps only change inside one critical section.
type Store struct {
	mu      sync.Mutex
	values  map[string]string
	expiry  map[string]time.Time
	now     func() time.Time
	metrics *metrics
}

type storeParams struct {
	now func() time.Time
}

// Sets the time source used for deadlines.
// Default is time.Now.
func WithClock(now func() time.Time) options.Option[storeParams] {
	return func(target *storeParams) error {
		if now == nil {
			return errors.New("got nil clock")
		}
		target.now = now
		return nil
	}
}

// New creates an empty store.
func New(opts ...options.Option[storeParams]) (*Store, error) {
	params := storeParams{now: time.Now}
	if err := options.ApplyOptions(&params, opts...); err != nil {
		return nil, fmt.Errorf("applying opts: %w", err)
	}

	s := &Store{
		values: make(map[string]string),
		expiry: make(map[string]time.Time),
		now:    params.now,
	}
	s.metrics = newMetrics(s)
	return s, nil
}

// Now returns the current time of the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Set stores value under key. A non-nil ttl sets the deadline to now+ttl,
// a nil ttl clears any previous deadline.
func (s *Store) Set(key, value string, ttl *time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	if ttl == nil {
		delete(s.expiry, key)
		return
	}
	s.expiry[key] = s.now().Add(*ttl)
}

// Get returns the value for key. Entries past their deadline are removed and
// reported absent even if the sweeper has not reached them yet.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expireLocked(key, s.now()) {
		return "", false
	}
	value, ok := s.values[key]
	return value, ok
}

// TTL returns the remaining time to live of key, or NoExpiry when the key has
// no deadline. The boolean is false if the key does not exist.
func (s *Store) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.expireLocked(key, now) {
		return 0, false
	}
	if _, ok := s.values[key]; !ok {
		return 0, false
	}
	deadline, ok := s.expiry[key]
	if !ok {
		return NoExpiry, true
	}
	return deadline.Sub(now), true
}

// Exists counts how many of keys are live. Repeated keys are counted each time.
func (s *Store) Exists(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, key := range keys {
		if s.expireLocked(key, now) {
			continue
		}
		if _, ok := s.values[key]; ok {
			n++
		}
	}
	return n
}

// Len returns the number of keys held, including expired keys not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// DeleteExpired removes every key whose deadline is not after now and returns
// the removed keys.
func (s *Store) DeleteExpired(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for key, deadline := range s.expiry {
		if deadline.After(now) {
			continue
		}
		delete(s.values, key)
		delete(s.expiry, key)
		removed = append(removed, key)
	}
	return removed
}

// Snapshot returns a point-in-time copy of the whole key space.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Values:  make(map[string]string, len(s.values)),
		Expiry:  make(map[string]time.Time, len(s.expiry)),
		TakenAt: s.now(),
	}
	for k, v := range s.values {
		snap.Values[k] = v
	}
	for k, d := range s.expiry {
		snap.Expiry[k] = d
	}
	return snap
}

// Restore replaces the whole key space with snap. It panics if snap holds a
// deadline for a key without a value.
func (s *Store) Restore(snap Snapshot) {
	if err := snap.Validate(); err != nil {
		panic(fmt.Sprintf("storage: restore: %v", err))
	}

	values := make(map[string]string, len(snap.Values))
	for k, v := range snap.Values {
		values[k] = v
	}
	expiry := make(map[string]time.Time, len(snap.Expiry))
	for k, d := range snap.Expiry {
		expiry[k] = d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values
	s.expiry = expiry
}

// Metrics returns the store collectors.
func (s *Store) Metrics() []prometheus.Collector {
	return s.metrics.list()
}

// expireLocked drops key if its deadline has passed. Callers hold s.mu.
func (s *Store) expireLocked(key string, now time.Time) bool {
	deadline, ok := s.expiry[key]
	if !ok || deadline.After(now) {
		return false
	}
	delete(s.values, key)
	delete(s.expiry, key)
	s.metrics.lazyExpiredCnt.Inc()
	return true
}

package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
)

// Snapshot is an immutable copy of the store contents. Expiry holds deadlines
// only for keys that have one.
type Snapshot struct {
	Values  map[string]string
	Expiry  map[string]time.Time
	TakenAt time.Time
}

// InconsistentSnapshotError reports deadlines recorded for keys that carry no value.
type InconsistentSnapshotError struct {
	Keys []string
}

func (err InconsistentSnapshotError) Error() string {
	return fmt.Sprintf("expiry without value for keys %v", err.Keys)
}

// Validate checks that every key in Expiry also exists in Values.
func (snap Snapshot) Validate() error {
	orphans := lo.Filter(lo.Keys(snap.Expiry), func(key string, _ int) bool {
		_, ok := snap.Values[key]
		return !ok
	})
	if len(orphans) == 0 {
		return nil
	}
	sort.Strings(orphans)
	return InconsistentSnapshotError{Keys: orphans}
}

// Len returns the number of keys in the snapshot.
func (snap Snapshot) Len() int {
	return len(snap.Values)
}

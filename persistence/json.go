package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/luoyjx/minikv/storage"
	"github.com/samber/lo"
)

// JSONFile keeps the snapshot as a JSON document:
//
//	{"taken_at": <unix ms>, "values": {"k": "v"}, "expiry": {"k": <unix ms> | null}}
type JSONFile struct {
	path string
}

type jsonSnapshot struct {
	TakenAt int64             `json:"taken_at"`
	Values  map[string]string `json:"values"`
	Expiry  map[string]*int64 `json:"expiry"`
}

// NewJSONFile returns a JSON backend writing to path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the snapshot file location.
func (f *JSONFile) Path() string {
	return f.path
}

// Save implements Backend.
func (f *JSONFile) Save(snap storage.Snapshot) error {
	doc := jsonSnapshot{
		TakenAt: snap.TakenAt.UnixMilli(),
		Values:  snap.Values,
		Expiry: lo.MapValues(snap.Expiry, func(deadline time.Time, _ string) *int64 {
			ms := deadline.UnixMilli()
			return &ms
		}),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}
	return writeFileAtomic(f.path, data)
}

// Load implements Backend.
func (f *JSONFile) Load() (storage.Snapshot, error) {
	data, err := readFile(f.path)
	if err != nil {
		return storage.Snapshot{}, err
	}

	var doc jsonSnapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return storage.Snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	snap := storage.Snapshot{
		Values:  doc.Values,
		Expiry:  make(map[string]time.Time, len(doc.Expiry)),
		TakenAt: time.UnixMilli(doc.TakenAt),
	}
	if snap.Values == nil {
		snap.Values = map[string]string{}
	}
	for key, ms := range doc.Expiry {
		// null means the key never expires
		if ms == nil {
			continue
		}
		snap.Expiry[key] = time.UnixMilli(*ms)
	}
	return snap, nil
}

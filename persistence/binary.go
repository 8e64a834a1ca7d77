package persistence

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/luoyjx/minikv/storage"
	"google.golang.org/protobuf/encoding/protowire"
)

// Binary layout: a 5-byte header (format version, big-endian payload length)
// followed by a protobuf-wire payload.
//
//	message Snapshot { int64 taken_at = 1; repeated Entry entries = 2; }
//	message Entry    { string key = 1; string value = 2; optional sint64 deadline = 3; }
const (
	binaryVersion    byte = 1
	binaryHeaderSize      = 5
	maxPayloadSize        = 1 << 30
)

const (
	fieldTakenAt protowire.Number = 1
	fieldEntry   protowire.Number = 2

	fieldEntryKey      protowire.Number = 1
	fieldEntryValue    protowire.Number = 2
	fieldEntryDeadline protowire.Number = 3
)

// BinaryFile keeps the snapshot in a compact length-prefixed binary file.
type BinaryFile struct {
	path string
}

// NewBinaryFile returns a binary backend writing to path.
func NewBinaryFile(path string) *BinaryFile {
	return &BinaryFile{path: path}
}

// Path returns the snapshot file location.
func (f *BinaryFile) Path() string {
	return f.path
}

// Save implements Backend.
func (f *BinaryFile) Save(snap storage.Snapshot) error {
	data, err := encodeBinary(snap)
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, data)
}

// Load implements Backend.
func (f *BinaryFile) Load() (storage.Snapshot, error) {
	data, err := readFile(f.path)
	if err != nil {
		return storage.Snapshot{}, err
	}
	snap, err := decodeBinary(data)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return snap, nil
}

func encodeBinary(snap storage.Snapshot) ([]byte, error) {
	var payload []byte
	payload = protowire.AppendTag(payload, fieldTakenAt, protowire.VarintType)
	payload = protowire.AppendVarint(payload, uint64(snap.TakenAt.UnixMilli()))

	// sorted so equal snapshots encode to equal bytes
	keys := make([]string, 0, len(snap.Values))
	for key := range snap.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var entry []byte
	for _, key := range keys {
		entry = entry[:0]
		entry = protowire.AppendTag(entry, fieldEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, key)
		entry = protowire.AppendTag(entry, fieldEntryValue, protowire.BytesType)
		entry = protowire.AppendString(entry, snap.Values[key])
		if deadline, ok := snap.Expiry[key]; ok {
			entry = protowire.AppendTag(entry, fieldEntryDeadline, protowire.VarintType)
			entry = protowire.AppendVarint(entry, protowire.EncodeZigZag(deadline.UnixMilli()))
		}

		payload = protowire.AppendTag(payload, fieldEntry, protowire.BytesType)
		payload = protowire.AppendBytes(payload, entry)
	}

	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("snapshot payload too large: %d bytes", len(payload))
	}

	buf := make([]byte, binaryHeaderSize+len(payload))
	buf[0] = binaryVersion
	binary.BigEndian.PutUint32(buf[1:binaryHeaderSize], uint32(len(payload)))
	copy(buf[binaryHeaderSize:], payload)
	return buf, nil
}

func decodeBinary(data []byte) (storage.Snapshot, error) {
	if len(data) < binaryHeaderSize {
		return storage.Snapshot{}, fmt.Errorf("file too short: %d bytes", len(data))
	}
	if data[0] != binaryVersion {
		return storage.Snapshot{}, fmt.Errorf("unsupported version: %d", data[0])
	}
	payloadLen := binary.BigEndian.Uint32(data[1:binaryHeaderSize])
	if int(payloadLen) != len(data)-binaryHeaderSize {
		return storage.Snapshot{}, fmt.Errorf("payload length %d does not match file size %d", payloadLen, len(data))
	}

	snap := storage.Snapshot{
		Values: map[string]string{},
		Expiry: map[string]time.Time{},
	}

	b := data[binaryHeaderSize:]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return storage.Snapshot{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldTakenAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return storage.Snapshot{}, protowire.ParseError(n)
			}
			snap.TakenAt = time.UnixMilli(int64(v))
			b = b[n:]
		case num == fieldEntry && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return storage.Snapshot{}, protowire.ParseError(n)
			}
			if err := decodeEntry(raw, &snap); err != nil {
				return storage.Snapshot{}, err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return storage.Snapshot{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return snap, nil
}

func decodeEntry(b []byte, snap *storage.Snapshot) error {
	var (
		key, value  string
		hasKey      bool
		deadline    int64
		hasDeadline bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldEntryKey && typ == protowire.BytesType:
			key, n = protowire.ConsumeString(b)
			hasKey = true
		case num == fieldEntryValue && typ == protowire.BytesType:
			value, n = protowire.ConsumeString(b)
		case num == fieldEntryDeadline && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			deadline = protowire.DecodeZigZag(v)
			hasDeadline = true
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}

	if !hasKey {
		return fmt.Errorf("entry without key")
	}
	snap.Values[key] = value
	if hasDeadline {
		snap.Expiry[key] = time.UnixMilli(deadline)
	}
	return nil
}

package cachez

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"time"
)

// Entry is a persisted blob together with the time it was written.
type Entry struct {
	Blob    []byte
	ModTime time.Time
}

// Backend stores persisted blobs by name. Expiry is decided by the caller
// from Entry.ModTime; backends never expire entries on their own.
type Backend interface {
	Driver() Driver
	Load(ctx context.Context, name string) (Entry, bool, error)
	Save(ctx context.Context, name string, blob []byte) error
	Delete(ctx context.Context, name string) error
	Flush(ctx context.Context) error
}

var (
	envelopeMagic = []byte("CZE1")

	ErrCorruptEntry = errors.New("cachez: corrupt persisted entry")
)

// encodeEnvelope prefixes blob with a write timestamp for backends that have
// no modification time of their own.
func encodeEnvelope(savedAt time.Time, blob []byte) []byte {
	out := make([]byte, 12, 12+len(blob))
	copy(out[:4], envelopeMagic)
	binary.BigEndian.PutUint64(out[4:12], uint64(savedAt.UnixNano()))
	return append(out, blob...)
}

func decodeEnvelope(data []byte) (Entry, error) {
	if len(data) < 12 || !bytes.Equal(data[:4], envelopeMagic) {
		return Entry{}, ErrCorruptEntry
	}
	savedAt := int64(binary.BigEndian.Uint64(data[4:12]))
	return Entry{
		Blob:    cloneBytes(data[12:]),
		ModTime: time.Unix(0, savedAt),
	}, nil
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	return clone
}

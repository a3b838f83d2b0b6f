package cachez

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
)

var errNATSUnavailable = errors.New("cachez: nats key-value unavailable")

// NATSKeyValue captures the subset of nats.KeyValue used by the backend.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

type natsBackend struct {
	kv     NATSKeyValue
	prefix string
}

// NewNATSBackend stores persisted entries in a JetStream key-value bucket.
// The revision's creation time serves as the entry's modification time.
//
// Example: JetStream KV backend
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	js, _ := nc.JetStream()
//	kv, _ := js.CreateKeyValue(&nats.KeyValueConfig{Bucket: "cachez"})
//	opt := cachez.WithBackend(cachez.NewNATSBackend(kv, "app"))
//	_ = opt
func NewNATSBackend(kv NATSKeyValue, prefix string) Backend {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &natsBackend{kv: kv, prefix: prefix}
}

func (b *natsBackend) Driver() Driver { return DriverNATS }

func (b *natsBackend) Load(_ context.Context, name string) (Entry, bool, error) {
	if b.kv == nil {
		return Entry{}, false, errNATSUnavailable
	}
	entry, err := b.kv.Get(b.key(name))
	if isNATSMiss(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return Entry{}, false, nil
	}
	return Entry{Blob: cloneBytes(entry.Value()), ModTime: entry.Created()}, true, nil
}

func (b *natsBackend) Save(_ context.Context, name string, blob []byte) error {
	if b.kv == nil {
		return errNATSUnavailable
	}
	_, err := b.kv.Put(b.key(name), cloneBytes(blob))
	return err
}

func (b *natsBackend) Delete(_ context.Context, name string) error {
	if b.kv == nil {
		return errNATSUnavailable
	}
	if err := b.kv.Purge(b.key(name)); err != nil && !isNATSMiss(err) {
		return err
	}
	return nil
}

func (b *natsBackend) Flush(_ context.Context) error {
	if b.kv == nil {
		return errNATSUnavailable
	}
	lister, err := b.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	scope := b.prefix + "."
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, scope) {
			continue
		}
		if err := b.kv.Purge(key); err != nil && !isNATSMiss(err) {
			return err
		}
	}
	for err := range lister.Error() {
		if err != nil {
			return err
		}
	}
	return nil
}

// key maps a name onto the NATS key alphabet; digests and extensions already fit.
func (b *natsBackend) key(name string) string {
	return b.prefix + "." + name
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

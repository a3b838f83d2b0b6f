package cachez

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/mitchellh/go-homedir"
)

const persistFolderName = ".cachez"

var persistFolder atomic.Pointer[string]

// SetPersistFolder sets the process-wide folder used by file-backed persisted
// functions. Files already written to the previous folder stay where they are.
// An empty path restores the default.
func SetPersistFolder(path string) {
	if path == "" {
		persistFolder.Store(nil)
		return
	}
	persistFolder.Store(&path)
}

// GetPersistFolder returns the configured persist folder, or ~/.cachez.
func GetPersistFolder() string {
	if p := persistFolder.Load(); p != nil {
		return *p
	}
	return defaultPersistFolder()
}

func defaultPersistFolder() string {
	home, err := homedir.Dir()
	if err != nil || home == "" {
		return persistFolderName
	}
	return filepath.Join(home, persistFolderName)
}

type persistConfig struct {
	backend     Backend
	codec       Codec
	compression Compression
	key         []byte
	module      string
	name        string
}

// PersistOption customizes a persisted function.
type PersistOption func(*persistConfig)

// WithBackend stores entries in b instead of the persist folder.
func WithBackend(b Backend) PersistOption {
	return func(cfg *persistConfig) {
		cfg.backend = b
	}
}

// WithCodec overrides the gob codec.
func WithCodec(c Codec) PersistOption {
	return func(cfg *persistConfig) {
		cfg.codec = c
	}
}

// WithCompression compresses blobs before they are stored.
func WithCompression(c Compression) PersistOption {
	return func(cfg *persistConfig) {
		cfg.compression = c
	}
}

// WithEncryptionKey seals blobs with AES-GCM. The key must be 16, 24 or 32 bytes.
func WithEncryptionKey(key []byte) PersistOption {
	return func(cfg *persistConfig) {
		cfg.key = cloneBytes(key)
	}
}

// WithName pins the module and function name that address entries. Use it for
// closures, whose runtime names change when surrounding code moves.
func WithName(module, name string) PersistOption {
	return func(cfg *persistConfig) {
		cfg.module = module
		cfg.name = name
	}
}

type persister[R any] struct {
	fn     Func[R]
	ttl    time.Duration
	cfg    persistConfig
	sealer *sealer
	err    error
}

// Persisted returns a wrapper that keeps results in durable storage for ttl.
// A call whose entry is missing or older than ttl invokes the function and
// overwrites the entry; otherwise the stored result is decoded and returned.
// Storage and decode errors are returned as-is. A corrupt entry is not
// recomputed.
//
// Example: persist for half a second
//
//	mul := cachez.Persisted[int](cachez.Period{Seconds: 0.5})(
//		func(ctx context.Context, args cachez.Args) (int, error) {
//			return base * cachez.Arg[int](args, 0), nil
//		},
//	)
//	v, _ := mul(ctx, cachez.Call(5))
func Persisted[R any](ttl Period, opts ...PersistOption) func(Func[R]) Func[R] {
	maxAge := ttl.Duration()
	return func(fn Func[R]) Func[R] {
		p := newPersister(fn, maxAge, opts)
		return p.call
	}
}

func newPersister[R any](fn Func[R], ttl time.Duration, opts []PersistOption) *persister[R] {
	module, name := splitFuncName(funcName(fn))
	cfg := persistConfig{
		codec:       GobCodec{},
		compression: defaultCompression(),
		module:      module,
		name:        name,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.backend == nil {
		cfg.backend = NewFileBackend("")
	}
	p := &persister[R]{fn: fn, ttl: ttl, cfg: cfg}
	if !cfg.compression.Valid() {
		p.err = fmt.Errorf("%w: %q", ErrUnsupportedCompression, cfg.compression)
	}
	if s, err := newSealer(cfg.key); err != nil {
		p.err = err
	} else {
		p.sealer = s
	}
	return p
}

func (p *persister[R]) call(ctx context.Context, args Args) (R, error) {
	start := time.Now()
	name := p.entryName(args)
	out, hit, err := p.loadOrCompute(ctx, name, args)
	observe(ctx, OpPersisted, name, hit, err, start, p.cfg.backend.Driver())
	return out, err
}

func (p *persister[R]) loadOrCompute(ctx context.Context, name string, args Args) (R, bool, error) {
	var zero R
	if p.fn == nil {
		return zero, false, ErrNilFunc
	}
	if p.err != nil {
		return zero, false, p.err
	}

	entry, ok, err := p.cfg.backend.Load(ctx, name)
	if err != nil {
		return zero, false, err
	}
	if ok {
		age := time.Since(entry.ModTime)
		if age <= p.ttl {
			out, err := p.decode(entry.Blob)
			if err != nil {
				return zero, false, err
			}
			return out, true, nil
		}
		Logger().Debug("persisted cache expired", "entry", name, "age", age, "ttl", p.ttl)
	}

	out, err := p.fn(ctx, args)
	if err != nil {
		return zero, false, err
	}
	blob, err := p.encode(out)
	if err != nil {
		return zero, false, err
	}
	if err := p.cfg.backend.Save(ctx, name, blob); err != nil {
		return zero, false, err
	}
	return out, false, nil
}

func (p *persister[R]) encode(v R) ([]byte, error) {
	raw, err := p.cfg.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode persisted result: %w", err)
	}
	packed, err := compress(p.cfg.compression, raw)
	if err != nil {
		return nil, err
	}
	return p.sealer.seal(packed)
}

func (p *persister[R]) decode(blob []byte) (R, error) {
	var out R
	plain, err := p.sealer.open(blob)
	if err != nil {
		return out, err
	}
	raw, err := decompress(plain)
	if err != nil {
		return out, err
	}
	if err := p.cfg.codec.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode persisted result: %w", err)
	}
	return out, nil
}

func (p *persister[R]) entryName(args Args) string {
	return PersistDigest(p.cfg.module, p.cfg.name, args) + "." + p.cfg.codec.Extension()
}

type keywordItem struct {
	Name  string
	Value any
}

// PersistDigest returns the sha256 hex digest addressing a persisted call.
// Keyword arguments are sorted by name so their order never matters.
func PersistDigest(module, name string, args Args) string {
	var positional []any
	if len(args.Positional) > 0 {
		positional = args.Positional
	}
	var items []keywordItem
	for _, k := range sortedNames(args.Keyword) {
		items = append(items, keywordItem{Name: k, Value: args.Keyword[k]})
	}
	raw := fmt.Sprintf("%s-%s-%#v-%#v", module, name, positional, items)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

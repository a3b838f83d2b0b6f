package cachez

import (
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

// Identity distinguishes one wrapped callable from another within a process.
// It is allocated once per wrap and never reused.
type Identity uint64

var identitySeq atomic.Uint64

// NewIdentity allocates a fresh callable identity.
func NewIdentity() Identity {
	return Identity(identitySeq.Add(1))
}

// Args carries the arguments of one call: positional values plus named ones.
//
// Example: positional and keyword arguments
//
//	args := cachez.Call(2, 4).With("scale", 10)
//	fmt.Println(args.Len(), args.At(1)) // 2 4
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Call builds Args from positional values.
func Call(positional ...any) Args {
	return Args{Positional: positional}
}

// With returns a copy of a with name bound to value.
func (a Args) With(name string, value any) Args {
	kw := make(map[string]any, len(a.Keyword)+1)
	for k, v := range a.Keyword {
		kw[k] = v
	}
	kw[name] = value
	return Args{Positional: a.Positional, Keyword: kw}
}

// Len reports the number of positional arguments.
func (a Args) Len() int { return len(a.Positional) }

// At returns the positional argument at i, or nil when out of range.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a.Positional) {
		return nil
	}
	return a.Positional[i]
}

// Named returns the keyword argument bound to name.
func (a Args) Named(name string) (any, bool) {
	v, ok := a.Keyword[name]
	return v, ok
}

// Arg returns the positional argument at i as T, or the zero value.
func Arg[T any](a Args, i int) T {
	v, _ := a.At(i).(T)
	return v
}

// Kwarg returns the keyword argument name as T.
func Kwarg[T any](a Args, name string) (T, bool) {
	raw, ok := a.Named(name)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// Signature identifies the argument set of one call. Two calls share a
// signature exactly when their arguments are == to each other, regardless of
// keyword order. Pointers and channels are keyed by identity, so mutating a
// pointee never changes a derived signature.
type Signature struct {
	positional string
	keyword    string
}

// String returns the signature as a single map key.
func (s Signature) String() string {
	return s.positional + "\x1e" + s.keyword
}

// SignatureOf derives the signature of args. Arguments must be comparable;
// slices, maps and funcs (directly or nested) yield ErrUnhashableArgument.
func SignatureOf(args Args) (Signature, error) {
	parts := make([]string, 0, len(args.Positional))
	for _, v := range args.Positional {
		enc, err := encodeArg(v)
		if err != nil {
			return Signature{}, err
		}
		parts = append(parts, enc)
	}

	names := sortedNames(args.Keyword)
	items := make([]string, 0, len(names))
	for _, name := range names {
		enc, err := encodeArg(args.Keyword[name])
		if err != nil {
			return Signature{}, fmt.Errorf("keyword %q: %w", name, err)
		}
		items = append(items, strconv.Quote(name)+"="+enc)
	}

	return Signature{
		positional: strings.Join(parts, "\x1f"),
		keyword:    strings.Join(items, "\x1f"),
	}, nil
}

// nanSeq gives every NaN its own encoding, since NaN != NaN.
var nanSeq atomic.Uint64

func encodeArg(v any) (string, error) {
	var b strings.Builder
	if err := encodeTyped(&b, reflect.ValueOf(v)); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encodeTyped(b *strings.Builder, v reflect.Value) error {
	if !v.IsValid() {
		b.WriteString("nil")
		return nil
	}
	b.WriteString(typeName(v.Type()))
	b.WriteByte(':')
	return encodeValue(b, v)
}

func encodeValue(b *strings.Builder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		encodeFloat(b, v.Float())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		b.WriteByte('(')
		encodeFloat(b, real(c))
		b.WriteByte(',')
		encodeFloat(b, imag(c))
		b.WriteByte(')')
	case reflect.String:
		b.WriteString(strconv.Quote(v.String()))
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		b.WriteString("0x")
		b.WriteString(strconv.FormatUint(uint64(v.Pointer()), 16))
	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("nil")
			return nil
		}
		return encodeTyped(b, v.Elem())
	case reflect.Array:
		b.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeValue(b, v.Index(i)); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case reflect.Struct:
		b.WriteByte('{')
		for i := 0; i < v.NumField(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeValue(b, v.Field(i)); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("%w: %s", ErrUnhashableArgument, v.Type())
	}
	return nil
}

func encodeFloat(b *strings.Builder, f float64) {
	switch {
	case math.IsNaN(f):
		b.WriteString("NaN#")
		b.WriteString(strconv.FormatUint(nanSeq.Add(1), 10))
	case f == 0:
		// -0 == 0
		b.WriteByte('0')
	default:
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
}

// typeName qualifies named types with their full package path.
func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func sortedNames(kw map[string]any) []string {
	names := make([]string, 0, len(kw))
	for name := range kw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// funcName reports the runtime name of fn, e.g. "github.com/acme/app.(*Repo).Load-fm".
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}

// splitFuncName separates the package path from the symbol name.
func splitFuncName(full string) (module, name string) {
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return "", full
	}
	cut := slash + 1 + dot
	return full[:cut], full[cut+1:]
}

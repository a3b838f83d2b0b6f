package cachez

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression names the algorithm applied to persisted blobs.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionSnappy Compression = "snappy"
	CompressionZstd   Compression = "zstd"
)

var (
	compressMagic = []byte("CMP1")

	ErrUnsupportedCompression = errors.New("cachez: unsupported compression")
	ErrCorruptCompression     = errors.New("cachez: corrupt compressed payload")
)

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

// Valid reports whether c is a known algorithm. The empty value means none.
func (c Compression) Valid() bool {
	switch c {
	case "", CompressionNone, CompressionGzip, CompressionSnappy, CompressionZstd:
		return true
	}
	return false
}

// compress frames value as magic + codec byte + payload. CompressionNone
// returns value untouched so uncompressed blobs carry no header.
func compress(codec Compression, value []byte) ([]byte, error) {
	var tag byte
	var payload []byte
	switch codec {
	case "", CompressionNone:
		return value, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		tag, payload = 'g', buf.Bytes()
	case CompressionSnappy:
		tag, payload = 's', snappy.Encode(nil, value)
	case CompressionZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, err
		}
		tag, payload = 'z', enc.EncodeAll(value, nil)
	default:
		return nil, ErrUnsupportedCompression
	}
	out := make([]byte, 0, len(compressMagic)+1+len(payload))
	out = append(out, compressMagic...)
	out = append(out, tag)
	return append(out, payload...), nil
}

func decompress(in []byte) ([]byte, error) {
	if len(in) < len(compressMagic)+1 || !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return in, nil
	}
	payload := in[len(compressMagic)+1:]
	switch in[len(compressMagic)] {
	case 'g':
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, ErrCorruptCompression
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 's':
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 'z':
		dec, err := zstdDecoder()
		if err != nil {
			return nil, err
		}
		out, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	default:
		return nil, ErrUnsupportedCompression
	}
}

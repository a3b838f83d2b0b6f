package cachez

import (
	"bytes"
	"errors"
	"testing"
)

func TestCompressNonePassesThrough(t *testing.T) {
	out, err := compress(CompressionNone, []byte("abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "abc" {
		t.Fatalf("unexpected output: %s", string(out))
	}
}

func TestDecompressPassThrough(t *testing.T) {
	out, err := decompress([]byte("plain"))
	if err != nil {
		t.Fatalf("decompress err: %v", err)
	}
	if string(out) != "plain" {
		t.Fatalf("expected passthrough")
	}
}

func TestDecompressShortInput(t *testing.T) {
	out, err := decompress([]byte("CMP"))
	if err != nil {
		t.Fatalf("decompress short err: %v", err)
	}
	if string(out) != "CMP" {
		t.Fatalf("expected passthrough on short input")
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("cachez "), 64)
	for _, c := range []Compression{CompressionGzip, CompressionSnappy, CompressionZstd} {
		encoded, err := compress(c, payload)
		if err != nil {
			t.Fatalf("%s compress failed: %v", c, err)
		}
		if !bytes.HasPrefix(encoded, compressMagic) {
			t.Fatalf("%s output missing header", c)
		}
		if len(encoded) >= len(payload) {
			t.Fatalf("%s did not shrink repetitive payload: %d >= %d", c, len(encoded), len(payload))
		}
		decoded, err := decompress(encoded)
		if err != nil {
			t.Fatalf("%s decompress failed: %v", c, err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Fatalf("%s round trip mismatch", c)
		}
	}
}

func TestCompressUnsupported(t *testing.T) {
	if _, err := compress(Compression("lz4"), []byte("x")); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("expected unsupported compression error, got %v", err)
	}
	if Compression("lz4").Valid() {
		t.Fatalf("lz4 should not be valid")
	}
}

func TestDecompressUnknownTag(t *testing.T) {
	in := append(append([]byte{}, compressMagic...), 'x', 0x00)
	if _, err := decompress(in); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("expected unsupported compression error, got %v", err)
	}
}

func TestDecompressCorruptGzip(t *testing.T) {
	in := append(append([]byte{}, compressMagic...), 'g', 0x01, 0x02)
	if _, err := decompress(in); !errors.Is(err, ErrCorruptCompression) {
		t.Fatalf("expected corrupt compression error, got %v", err)
	}
}

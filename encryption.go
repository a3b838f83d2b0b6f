package cachez

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	encryptionMagic = []byte("ENC1")

	ErrEncryptionKey = errors.New("cachez: encryption key must be 16, 24, or 32 bytes")
	ErrDecryptFailed = errors.New("cachez: decrypt failed")
)

// sealer encrypts persisted blobs with AES-GCM. A nil sealer passes blobs through.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) == 0 {
		return nil, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionKey
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	if s == nil {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := s.aead.Seal(nil, nonce, plain, nil)
	buf := make([]byte, 0, len(encryptionMagic)+1+len(nonce)+len(ct))
	buf = append(buf, encryptionMagic...)
	buf = append(buf, byte(len(nonce)))
	buf = append(buf, nonce...)
	return append(buf, ct...), nil
}

// open reverses seal. Blobs without the magic header are returned as-is so
// entries written before a key was configured still decode.
func (s *sealer) open(in []byte) ([]byte, error) {
	if s == nil {
		return in, nil
	}
	if len(in) < len(encryptionMagic)+1 || !bytes.Equal(in[:len(encryptionMagic)], encryptionMagic) {
		return in, nil
	}
	nonceLen := int(in[len(encryptionMagic)])
	offset := len(encryptionMagic) + 1
	if len(in) < offset+nonceLen {
		return nil, ErrDecryptFailed
	}
	plain, err := s.aead.Open(nil, in[offset:offset+nonceLen], in[offset+nonceLen:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

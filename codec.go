package cachez

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
)

// Codec turns results into bytes and back. The extension names persisted files.
type Codec interface {
	Extension() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// GobCodec is the default codec. Results whose static type is an interface
// need their concrete types registered with gob.Register.
type GobCodec struct{}

func (GobCodec) Extension() string { return "gob" }

func (GobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// JSONCodec stores results as JSON, readable by tools outside Go.
type JSONCodec struct{}

func (JSONCodec) Extension() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

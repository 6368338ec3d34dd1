package serializer

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// GenericBinary encodes values as self-describing MessagePack. It is
// selected with the "msgpack" serializer kind, for cache tiers whose
// values may include non-JSON-native
// shapes (e.g. raw byte bodies alongside decoded structures) and a
// language-neutral binary format avoids re-deriving a schema per backend.
type GenericBinary struct {
	base
}

// NewGenericBinary returns a Serializer backed by vmihailenco/msgpack.
func NewGenericBinary() *GenericBinary {
	return &GenericBinary{}
}

func (s *GenericBinary) Name() string { return "generic-binary" }

func (s *GenericBinary) EncodesToBytes() bool { return true }

func (s *GenericBinary) Encode(value any) ([]byte, error) {
	start := time.Now()
	if value == nil {
		return nil, nil
	}
	out, err := msgpack.Marshal(value)
	if err != nil {
		return nil, err
	}
	s.record(start, 0, len(out))
	return out, nil
}

func (s *GenericBinary) Decode(data []byte) (any, error) {
	start := time.Now()
	if data == nil {
		return nil, nil
	}
	var out any
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	s.record(start, len(data), 0)
	return out, nil
}

func (s *GenericBinary) Stats() Stats { return s.snapshot() }

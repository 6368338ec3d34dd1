// Package serializer provides the encode/decode boundary between cached
// bytes and in-memory values. Every backend in internal/cachekv that sets
// requires_encoding routes through one of these implementations before a
// value touches the wire or disk.
package serializer

import (
	"sync/atomic"
	"time"
)

// Stats accumulates per-serializer counters across its lifetime.
type Stats struct {
	Count    int64
	BytesIn  int64
	BytesOut int64
	Elapsed  time.Duration
}

// Serializer converts between arbitrary Go values and their wire bytes.
// A nil input must always decode/encode to a nil output: callers rely on
// this to distinguish "no data" from "zero-value data".
type Serializer interface {
	// Encode converts value to bytes. Encode(nil) returns nil, nil.
	Encode(value any) ([]byte, error)

	// Decode converts bytes back into a value. Decode(nil) returns nil, nil.
	Decode(data []byte) (any, error)

	// Name identifies the serializer variant for logging and stats.
	Name() string

	// EncodesToBytes reports whether Encode can turn an arbitrary value
	// into bytes. Identity cannot (it only passes []byte through
	// unchanged); a backend that RequiresEncoding paired with such a
	// serializer can never store anything but raw byte values.
	EncodesToBytes() bool

	// Stats returns a snapshot of this serializer's cumulative counters.
	Stats() Stats
}

// base centralizes the stats bookkeeping shared by every variant.
type base struct {
	count   atomic.Int64
	bytesIn atomic.Int64
	bytesOut atomic.Int64
	elapsed  atomic.Int64 // nanoseconds
}

func (b *base) record(start time.Time, in, out int) {
	b.count.Add(1)
	b.bytesIn.Add(int64(in))
	b.bytesOut.Add(int64(out))
	b.elapsed.Add(int64(time.Since(start)))
}

func (b *base) snapshot() Stats {
	return Stats{
		Count:    b.count.Load(),
		BytesIn:  b.bytesIn.Load(),
		BytesOut: b.bytesOut.Load(),
		Elapsed:  time.Duration(b.elapsed.Load()),
	}
}

package serializer

import "testing"

func TestIdentity_NilInNilOut(t *testing.T) {
	s := NewIdentity()
	out, err := s.Encode(nil)
	if err != nil || out != nil {
		t.Fatalf("Encode(nil) = %v, %v; want nil, nil", out, err)
	}
	dec, err := s.Decode(nil)
	if err != nil || dec != nil {
		t.Fatalf("Decode(nil) = %v, %v; want nil, nil", dec, err)
	}
}

func TestIdentity_RoundTrip(t *testing.T) {
	s := NewIdentity()
	in := []byte("payload")
	enc, err := s.Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	dec, err := s.Decode(enc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got, ok := dec.([]byte)
	if !ok || string(got) != "payload" {
		t.Fatalf("Decode() = %v, want payload", dec)
	}
	if stats := s.Stats(); stats.Count != 2 {
		t.Fatalf("Stats().Count = %d, want 2", stats.Count)
	}
}

func TestJSONBinary_RoundTrip(t *testing.T) {
	s := NewJSONBinary()
	in := map[string]any{"a": float64(1), "b": "two"}
	enc, err := s.Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	dec, err := s.Decode(enc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got, ok := dec.(map[string]any)
	if !ok || got["b"] != "two" {
		t.Fatalf("Decode() = %#v, want map with b=two", dec)
	}
}

func TestJSONBinary_NilInNilOut(t *testing.T) {
	s := NewJSONBinary()
	enc, err := s.Encode(nil)
	if err != nil || enc != nil {
		t.Fatalf("Encode(nil) = %v, %v; want nil, nil", enc, err)
	}
	dec, err := s.Decode(nil)
	if err != nil || dec != nil {
		t.Fatalf("Decode(nil) = %v, %v; want nil, nil", dec, err)
	}
}

func TestGenericBinary_RoundTrip(t *testing.T) {
	s := NewGenericBinary()
	in := map[string]any{"etag": "abc123", "last_mod": "yesterday"}
	enc, err := s.Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	dec, err := s.Decode(enc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got, ok := dec.(map[string]any)
	if !ok || got["etag"] != "abc123" {
		t.Fatalf("Decode() = %#v, want map with etag=abc123", dec)
	}
}

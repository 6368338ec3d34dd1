package obs

import (
	"strings"
	"testing"
)

func TestRedactor_GenericAPIKey(t *testing.T) {
	r := NewRedactor()

	input := "key: abcdef1234567890abcdef1234567890"
	result := r.Redact(input)

	if !strings.Contains(result, "[REDACTED_API_KEY]") {
		t.Errorf("expected generic api key to be redacted, got %q", result)
	}
}

func TestRedactor_BearerToken(t *testing.T) {
	r := NewRedactor()

	input := "Bearer eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0"
	result := r.Redact(input)

	if !strings.Contains(result, "Bearer [REDACTED]") {
		t.Errorf("expected bearer token to be redacted, got %q", result)
	}
}

func TestRedactor_QueryCredential(t *testing.T) {
	r := NewRedactor()

	input := "https://api.example.com/v1/persons?api_key=topsecret&page=1"
	result := r.Redact(input)

	if strings.Contains(result, "topsecret") {
		t.Errorf("expected api_key query param to be redacted, got %q", result)
	}
	if !strings.Contains(result, "page=1") {
		t.Errorf("expected unrelated query params to survive, got %q", result)
	}
}

func TestRedactor_RedactArguments(t *testing.T) {
	r := NewRedactor()

	args := map[string]string{
		"apiKey":  "abc123",
		"country": "US",
	}
	result := r.RedactArguments(args)

	if result["apiKey"] != "[REDACTED]" {
		t.Errorf("expected apiKey to be redacted, got %v", result["apiKey"])
	}
	if result["country"] != "US" {
		t.Errorf("expected country to be unchanged, got %v", result["country"])
	}
}

func TestRedactor_RedactHeaders(t *testing.T) {
	r := NewRedactor()

	headers := map[string][]string{
		"Authorization": {"Bearer token123"},
		"X-Api-Key":     {"secret"},
		"Content-Type":  {"application/json"},
		"Cookie":        {"session=abc123"},
	}

	result := r.RedactHeaders(headers)

	if result["Authorization"][0] != "[REDACTED]" {
		t.Errorf("expected Authorization to be redacted")
	}
	if result["X-Api-Key"][0] != "[REDACTED]" {
		t.Errorf("expected X-Api-Key to be redacted")
	}
	if result["Content-Type"][0] != "application/json" {
		t.Errorf("expected Content-Type to be unchanged")
	}
	if result["Cookie"][0] != "[REDACTED]" {
		t.Errorf("expected Cookie to be redacted")
	}
}

func TestRedactor_AddPattern(t *testing.T) {
	r := NewRedactor()

	r.AddPattern(`SECRET_[A-Z0-9]+`, "[CUSTOM_REDACTED]", "custom")

	input := "my secret is SECRET_ABC123"
	result := r.Redact(input)

	if !strings.Contains(result, "[CUSTOM_REDACTED]") {
		t.Errorf("expected custom pattern to be redacted, got %q", result)
	}
}

func TestRedactor_InvalidPattern(t *testing.T) {
	r := NewRedactor()

	r.AddPattern(`[invalid`, "replacement", "invalid")

	result := r.Redact("test")
	if result != "test" {
		t.Errorf("expected unchanged result, got %q", result)
	}
}

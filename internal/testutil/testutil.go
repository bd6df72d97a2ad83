// Package testutil holds the assertion helpers shared by the HTTP handler
// tests.
package testutil

import (
	"encoding/json"
	"io"
	"testing"
)

// AssertStatusCode fails the test when an HTTP status differs from want.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status = %d, want %d", got, want)
	}
}

// AssertNoError stops the test on an unexpected error.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError stops the test when an expected error did not occur.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}

// DecodeJSON decodes a JSON response body into v, failing the test if the
// body does not parse.
func DecodeJSON(t *testing.T, body io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

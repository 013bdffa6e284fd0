package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidInput, "test message: %s", "value")

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidInput)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "INVALID_INPUT: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrCodeWriteFailed, cause, "write chunks/a.js")

	if err.Code != ErrCodeWriteFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeWriteFailed)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	expected := "WRITE_FAILED: write chunks/a.js: disk full"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeGraphFetch, "test"),
			code:     ErrCodeGraphFetch,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeGraphFetch, "test"),
			code:     ErrCodeWriteFailed,
			expected: false,
		},
		{
			name:     "outer code wins",
			err:      Wrap(ErrCodeWriteFailed, New(ErrCodeInvalidPath, "inner"), "outer"),
			code:     ErrCodeWriteFailed,
			expected: true,
		},
		{
			name:     "wrapped with fmt",
			err:      fmt.Errorf("emit: %w", New(ErrCodeWriteFailed, "x")),
			code:     ErrCodeWriteFailed,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHas(t *testing.T) {
	nested := Wrap(ErrCodeWorkerSpawn, Wrap(ErrCodeWriteFailed, errors.New("eio"), "write"), "pool")

	if !Has(nested, ErrCodeWriteFailed) {
		t.Error("Has() should find nested WRITE_FAILED")
	}
	if Is(nested, ErrCodeWriteFailed) {
		t.Error("Is() should only consult the outermost code")
	}
	if Has(nested, ErrCodeGraphFetch) {
		t.Error("Has() found a code that is not in the chain")
	}
	if Has(nil, ErrCodeGraphFetch) {
		t.Error("Has(nil) = true")
	}
}

func TestIsInfrastructure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{New(ErrCodeUnsupportedFilesystem, "virtual"), true},
		{fmt.Errorf("emit: %w", New(ErrCodeGraphFetch, "refs")), true},
		{Wrap(ErrCodeInternal, New(ErrCodeWriteFailed, "w"), "x"), true},
		{New(ErrCodeInvalidInput, "bad"), false},
		{errors.New("plain"), false},
	}

	for _, tt := range tests {
		if got := IsInfrastructure(tt.err); got != tt.want {
			t.Errorf("IsInfrastructure(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeUnknownAsset, "test"),
			expected: ErrCodeUnknownAsset,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeInvalidInput, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "wrapped plain cause",
			err:      Wrap(ErrCodeWriteFailed, errors.New("permission denied"), "write index.js"),
			expected: "write index.js: permission denied",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

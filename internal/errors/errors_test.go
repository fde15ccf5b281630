package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestHandoffError_Error(t *testing.T) {
	err := &HandoffError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "handoff not found",
	}

	expected := "NOT_FOUND: handoff not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("events are required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "events are required" {
		t.Errorf("Message = %q, want %q", err.Message, "events are required")
	}
}

func TestNewInvalidID(t *testing.T) {
	err := NewInvalidID()

	if err.Code != ErrInvalidID {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidID)
	}
	if err.Details != nil {
		t.Errorf("Details = %v, want nil", err.Details)
	}
}

func TestNewInvalidRef(t *testing.T) {
	err := NewInvalidRef("hash", "must be 8 lowercase hex characters")

	if err.Code != ErrInvalidRef {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRef)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Details["field"] != "hash" {
		t.Errorf("Details[field] = %v, want %q", err.Details["field"], "hash")
	}
	if !strings.Contains(err.Message, "hash") {
		t.Errorf("Message = %q, want it to name the field", err.Message)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("01HZX")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "01HZX" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01HZX")
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("disk full"))
	if err.Message != "disk full" {
		t.Errorf("Message = %q, want %q", err.Message, "disk full")
	}

	err = NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestNewCancelled(t *testing.T) {
	err := NewCancelled("compact")
	if err.Code != ErrCancelled || err.Status != 499 {
		t.Errorf("got %s/%d, want %s/499", err.Code, err.Status, ErrCancelled)
	}
	if err.Message != "compact cancelled" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("x"), ErrNotFound, true},
		{"different code", NewNotFound("x"), ErrInternal, false},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil error", nil, ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

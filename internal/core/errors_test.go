package core

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"}
	if got := err.Error(); got != "invalid_request_error: bad request" {
		t.Errorf("Error() = %q, want %q", got, "invalid_request_error: bad request")
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	apiErr := NewUpstreamError("search failed", originalErr)

	if !errors.Is(apiErr, originalErr) {
		t.Errorf("errors.Is should find the wrapped error")
	}

	wrapped := fmt.Errorf("handler: %w", apiErr)
	var target *APIError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find the APIError")
	}
	if target.Type != ErrorTypeUpstream {
		t.Errorf("Type = %v, want %v", target.Type, ErrorTypeUpstream)
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{
			name:     "explicit status code",
			err:      &APIError{Type: ErrorTypeUpstream, StatusCode: http.StatusServiceUnavailable},
			expected: http.StatusServiceUnavailable,
		},
		{
			name:     "invalid request default",
			err:      &APIError{Type: ErrorTypeInvalidRequest},
			expected: http.StatusBadRequest,
		},
		{
			name:     "authentication default",
			err:      &APIError{Type: ErrorTypeAuthentication},
			expected: http.StatusUnauthorized,
		},
		{
			name:     "not found default",
			err:      &APIError{Type: ErrorTypeNotFound},
			expected: http.StatusNotFound,
		},
		{
			name:     "upstream default",
			err:      &APIError{Type: ErrorTypeUpstream},
			expected: http.StatusBadGateway,
		},
		{
			name:     "unknown error type",
			err:      &APIError{Type: ErrorType("unknown")},
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAPIError_ToJSON(t *testing.T) {
	err := NewNotFoundError("session not found")

	result := err.ToJSON()

	errorData, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatal("ToJSON() should return map with 'error' key")
	}
	if errorData["type"] != ErrorTypeNotFound {
		t.Errorf("ToJSON() type = %v, want %v", errorData["type"], ErrorTypeNotFound)
	}
	if errorData["message"] != "session not found" {
		t.Errorf("ToJSON() message = %v, want %v", errorData["message"], "session not found")
	}
}

func TestCoordinates_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Coordinates
		wantErr bool
	}{
		{"paris", NewCoordinates(2.3522, 48.8566), false},
		{"antimeridian", NewCoordinates(180, -90), false},
		{"longitude too large", NewCoordinates(181, 0), true},
		{"latitude too small", NewCoordinates(0, -91), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCloneResults_DoesNotShareDistance(t *testing.T) {
	d := 120.0
	in := []SearchResult{{ID: "a", Distance: &d}}
	out := CloneResults(in)
	*out[0].Distance = 999
	if *in[0].Distance != 120 {
		t.Errorf("clone mutated original distance: %v", *in[0].Distance)
	}
	if CloneResults(nil) != nil {
		t.Error("CloneResults(nil) should be nil")
	}
}

func TestRouteData_Valid(t *testing.T) {
	if (RouteData{}).Valid() {
		t.Error("zero route should not be valid")
	}
	if !(RouteData{DistanceMeters: 10, DurationSeconds: 5}).Valid() {
		t.Error("route with distance should be valid")
	}
	if !(RouteData{DistanceMeters: -1, DurationSeconds: 5}).Valid() {
		t.Error("negative distance is bad data, not a corrupt route")
	}
	if !(RouteData{Geometry: []Coordinates{{1, 2}, {1, 2}}}).Valid() {
		t.Error("route with geometry should be valid")
	}
	if (RouteData{DistanceMeters: 100}).Valid() {
		t.Error("route without geometry or duration should not be valid")
	}
	if (RouteData{DistanceMeters: math.NaN(), DurationSeconds: 5}).Valid() {
		t.Error("NaN distance should not be valid")
	}
	if (RouteData{DistanceMeters: 10, DurationSeconds: math.Inf(1)}).Valid() {
		t.Error("infinite duration should not be valid")
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ritaorion/district5b-portal/internal/usecase"
)

func respondWith(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("trace_id", "trace-1")

	RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "boom")

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rr, resp
}

func TestRespondWithMappedError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid state", usecase.ErrInvalidState, http.StatusConflict, "this item was already processed"},
		{"wrapped not found", fmt.Errorf("load: %w", usecase.ErrSubmissionNotFound), http.StatusNotFound, "submission not found"},
		{"unavailable", fmt.Errorf("store: %w: %w", usecase.ErrUnavailable, errors.New("refused")), http.StatusServiceUnavailable, msgUnavailable},
		{"unknown", errors.New("surprise"), http.StatusInternalServerError, "boom"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, resp := respondWith(t, tc.err)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if resp.Error != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, resp.Error)
			}
			if resp.TraceID != "trace-1" {
				t.Fatalf("expected trace id echoed, got %q", resp.TraceID)
			}
		})
	}
}

func TestRespondWithMappedErrorValidation(t *testing.T) {
	rr, resp := respondWith(t, &usecase.ValidationError{Fields: map[string]string{"title": "is required"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if resp.Fields["title"] != "is required" {
		t.Fatalf("expected field message, got %+v", resp.Fields)
	}
}

func TestAccountErrorsMapToConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, err := range []error{usecase.ErrConflict, usecase.ErrAlreadyActivated, usecase.ErrConcurrentUpdate} {
		rr := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rr)
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

		RespondWithMappedError(c, fmt.Errorf("resend: %w", err), accountErrorCases, http.StatusInternalServerError, "boom")
		if rr.Code != http.StatusConflict {
			t.Fatalf("%v: expected 409, got %d", err, rr.Code)
		}
	}
}

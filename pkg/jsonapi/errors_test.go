package jsonapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestError_With(t *testing.T) {
	base := NewError(422, "invalid_view", "view customer360 has no base")
	err := base.
		WithPointer("/queries/0/schema").
		WithParameter("schema").
		WithMeta("schema", "customer360")

	if err.Status != "422" || err.StatusCode() != 422 {
		t.Errorf("Status = %s", err.Status)
	}
	if err.Title != "Unprocessable Entity" {
		t.Errorf("Title = %s", err.Title)
	}
	if err.Source == nil || err.Source.Pointer != "/queries/0/schema" || err.Source.Parameter != "schema" {
		t.Errorf("Source = %+v", err.Source)
	}
	if err.Meta["schema"] != "customer360" {
		t.Errorf("Meta = %v", err.Meta)
	}
	if base.Source != nil || base.Meta != nil {
		t.Errorf("With* must not modify the receiver: %+v", base)
	}
}

func TestCommonErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        Error
		wantStatus string
		wantCode   string
		wantDetail string
	}{
		{"bad request", ErrBadRequest("invalid JSON"), "400", "bad_request", "invalid JSON"},
		{"unauthorized default", ErrUnauthorized(""), "401", "unauthorized", "Authentication required"},
		{"internal default", ErrInternal(""), "500", "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", tt.err.Status, tt.wantStatus)
			}
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.wantCode)
			}
			if tt.err.Detail != tt.wantDetail {
				t.Errorf("Detail = %v, want %v", tt.err.Detail, tt.wantDetail)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		errs       []Error
		wantStatus int
	}{
		{"uses first status", []Error{ErrBadRequest("a"), ErrInternal("b")}, http.StatusBadRequest},
		{"no errors", nil, http.StatusInternalServerError},
		{"missing status", []Error{{Code: "x"}}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.errs...)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != ContentType {
				t.Errorf("Content-Type = %s, want %s", ct, ContentType)
			}

			var doc Document
			if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(doc.Errors) == 0 {
				t.Error("document should carry errors")
			}
			if doc.JSONAPI == nil || doc.JSONAPI.Version != Version {
				t.Errorf("jsonapi = %+v", doc.JSONAPI)
			}
		})
	}
}

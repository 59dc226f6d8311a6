package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/planner"
	"github.com/goclaw/dayloop/pkg/storage"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		data       any
		wantBody   string
	}{
		{name: "plan dates", statusCode: http.StatusOK, data: map[string]any{"actor": "alice", "dates": []string{"2025-03-01"}}, wantBody: `{"actor":"alice","dates":["2025-03-01"]}`},
		{name: "accepted ticket", statusCode: http.StatusAccepted, data: map[string]string{"ticket_id": "t-1"}, wantBody: `{"ticket_id":"t-1"}`},
		{name: "no body", statusCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.statusCode, tt.data)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q", got)
			}
			if tt.data == nil {
				if w.Body.Len() != 0 {
					t.Errorf("body = %q, want empty", w.Body.String())
				}
				return
			}
			var got, want any
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			_ = json.Unmarshal([]byte(tt.wantBody), &want)
			if fmt.Sprint(got) != fmt.Sprint(want) {
				t.Errorf("body = %v, want %v", got, want)
			}
		})
	}
}

func TestErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationFailed, "kind is required",
		map[string]any{"fields": map[string]string{"Kind": "required"}}, "req-9")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != ErrCodeValidationFailed || body.Error.RequestID != "req-9" {
		t.Errorf("error = %+v", body.Error)
	}
	fields, _ := body.Error.Details["fields"].(map[string]any)
	if fields["Kind"] != "required" {
		t.Errorf("details = %v", body.Error.Details)
	}
}

func TestError_OmitsEmptyDetails(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, ErrCodeActorNotFound, `actor "carol" not found`, "req-1")

	var raw map[string]map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["error"]["details"]; ok {
		t.Errorf("details present in %s", w.Body.String())
	}
	if raw["error"]["message"] != `actor "carol" not found` {
		t.Errorf("message = %v", raw["error"]["message"])
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "unknown actor", err: &actor.UnknownActorError{Name: "carol"}, wantStatus: http.StatusNotFound, wantCode: ErrCodeActorNotFound},
		{name: "wrapped unknown actor", err: fmt.Errorf("lookup: %w", &actor.UnknownActorError{Name: "carol"}), wantStatus: http.StatusNotFound, wantCode: ErrCodeActorNotFound},
		{name: "missing document", err: &storage.NotFoundError{EntityType: "plan", ID: "alice/20250301"}, wantStatus: http.StatusNotFound, wantCode: ErrCodeNotFound},
		{name: "unknown kind", err: &action.UnknownKindError{Kind: plan.ActionKind("fly")}, wantStatus: http.StatusBadRequest, wantCode: ErrCodeUnknownActionKind},
		{name: "bad params", err: &plan.ParamsError{Kind: plan.KindMove, Cause: errors.New("destination is required")}, wantStatus: http.StatusBadRequest, wantCode: ErrCodeInvalidParams},
		{name: "planner input", err: &planner.InputInvalidError{Field: "plan", Reason: "nil plan"}, wantStatus: http.StatusBadRequest, wantCode: ErrCodeValidationFailed},
		{name: "memory input", err: &memory.InputInvalidError{Field: "merge_target", Reason: "out of range"}, wantStatus: http.StatusBadRequest, wantCode: ErrCodeValidationFailed},
		{name: "scheduler closed", err: action.ErrSchedulerClosed, wantStatus: http.StatusServiceUnavailable, wantCode: ErrCodeActorClosed},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout, wantCode: ErrCodeGatewayTimeout},
		{name: "other", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantCode: ErrCodeInternalServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := Classify(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("Classify() = (%d, %s), want (%d, %s)", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

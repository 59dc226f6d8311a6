package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goclaw/dayloop/pkg/api/response"
)

func serveTimeout(d time.Duration, h http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actors/alice/plan/revise", nil)
	req = req.WithContext(WithRequestID(req.Context(), "req-7"))
	rec := httptest.NewRecorder()
	Timeout(d)(h).ServeHTTP(rec, req)
	return rec
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		name     string
		limit    time.Duration
		work     time.Duration
		wantCode int
	}{
		{"fast revision", 200 * time.Millisecond, 0, http.StatusCreated},
		{"slow revision", 20 * time.Millisecond, 300 * time.Millisecond, http.StatusGatewayTimeout},
		{"limit disabled", 0, 30 * time.Millisecond, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveTimeout(tt.limit, func(w http.ResponseWriter, _ *http.Request) {
				time.Sleep(tt.work)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"revised":true}`))
			})

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusGatewayTimeout {
				if rec.Header().Get("Content-Type") != "application/json" || rec.Body.String() != `{"revised":true}` {
					t.Errorf("response = %q %q", rec.Header(), rec.Body)
				}
				return
			}
			var body response.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != response.ErrCodeGatewayTimeout || body.Error.RequestID != "req-7" {
				t.Errorf("error = %+v", body.Error)
			}
		})
	}
}

func TestTimeout_LateHandlerIsSilenced(t *testing.T) {
	release := make(chan struct{})
	late := make(chan error, 1)
	rec := serveTimeout(10*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("X-Plan-Version", "3")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("too late"))
		late <- err
	})
	close(release)

	select {
	case err := <-late:
		if !errors.Is(err, http.ErrHandlerTimeout) {
			t.Errorf("late Write() = %v, want ErrHandlerTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not finish")
	}
	if rec.Code != http.StatusGatewayTimeout || rec.Header().Get("X-Plan-Version") != "" {
		t.Errorf("late handler leaked into the response: %d %v", rec.Code, rec.Header())
	}
}

func TestTimeout_RepanicsOnCallerGoroutine(t *testing.T) {
	defer func() {
		if r := recover(); r != "planner exploded" {
			t.Errorf("recovered %v", r)
		}
	}()
	serveTimeout(time.Second, func(http.ResponseWriter, *http.Request) {
		panic("planner exploded")
	})
	t.Error("panic swallowed")
}

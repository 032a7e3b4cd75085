package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	return got
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       any
		wantStatus int
		wantKey    string
		wantValue  any
	}{
		{name: "ok", status: http.StatusOK, body: map[string]string{"status": "ok"}, wantStatus: http.StatusOK, wantKey: "status", wantValue: "ok"},
		{name: "created", status: http.StatusCreated, body: map[string]int{"dateTime": 1700000000}, wantStatus: http.StatusCreated, wantKey: "dateTime", wantValue: float64(1700000000)},
		{name: "unencodable value", status: http.StatusOK, body: map[string]any{"ch": make(chan int)}, wantStatus: http.StatusInternalServerError, wantKey: "message", wantValue: "failed to encode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.status, tt.body)

			if got := w.Header().Get("Content-Type"); got != contentTypeJSON {
				t.Errorf("Content-Type = %q; want %q", got, contentTypeJSON)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("Code = %d; want %d", w.Code, tt.wantStatus)
			}
			if got := decodeBody(t, w)[tt.wantKey]; got != tt.wantValue {
				t.Errorf("body[%s] = %v; want %v", tt.wantKey, got, tt.wantValue)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "'limit' must be > 0")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusBadRequest)
	}
	got := decodeBody(t, w)
	if got["error"] != "Bad Request" {
		t.Errorf("error = %v; want Bad Request", got["error"])
	}
	if got["message"] != "'limit' must be > 0" {
		t.Errorf("message = %v", got["message"])
	}
}

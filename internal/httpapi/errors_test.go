package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"emotiond/internal/stream"
	"emotiond/pkg/types"
)

func TestConnectStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{stream.ErrCapacityExceeded(20), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", stream.ErrCapacityExceeded(20)), http.StatusServiceUnavailable},
		{stream.ErrAuthentication(errBadToken), http.StatusUnauthorized},
		{mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := connectStatus(tc.err); got != tc.want {
			t.Fatalf("connectStatus(%v)=%d want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONError(rec, http.StatusUnauthorized, "nope")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rec.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Error != "nope" || body.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected body: %+v", body)
	}
}

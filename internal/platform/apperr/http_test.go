package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPError_StatusByKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("quantity must be positive"), http.StatusBadRequest},
		{BusinessRule("insufficient available stock"), http.StatusConflict},
		{NotFound("batch not found"), http.StatusNotFound},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPError(tc.err); got.Code != tc.want {
			t.Errorf("HTTPError(%v): expected %d, got %d", tc.err, tc.want, got.Code)
		}
	}
}

func TestHTTPError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("dispense item: %w", NotFound("batch B001 not found"))
	if got := HTTPError(wrapped); got.Code != http.StatusNotFound {
		t.Errorf("expected 404 for wrapped not-found, got %d", got.Code)
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindSentinelMapping(t *testing.T) {
	err := E(KindNotFound, "store.GetDevice", nil)
	if !stderrors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is(err, ErrNotFound)")
	}
	if stderrors.Is(err, ErrConflict) {
		t.Fatalf("not-found error should not match ErrConflict")
	}
}

func TestWrappedErrorPreserved(t *testing.T) {
	inner := fmt.Errorf("disk on fire")
	err := E(KindTransient, "store.InsertReading", inner)
	if !stderrors.Is(err, inner) {
		t.Fatalf("wrapped error lost")
	}
	if KindOf(err) != KindTransient {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}
}

func TestKindOfUntyped(t *testing.T) {
	if got := KindOf(fmt.Errorf("plain")); got != KindInternal {
		t.Fatalf("untyped error should be internal, got %v", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:            http.StatusNotFound,
		KindConflict:            http.StatusConflict,
		KindValidation:          http.StatusUnprocessableEntity,
		KindInvariant:           http.StatusBadRequest,
		KindUnauthorized:        http.StatusUnauthorized,
		KindForbidden:           http.StatusForbidden,
		KindTransient:           http.StatusServiceUnavailable,
		KindUpstreamUnavailable: http.StatusBadGateway,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(E(kind, "op", nil)); got != want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", kind, got, want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(E(KindTransient, "op", nil)) {
		t.Fatalf("transient should be retryable")
	}
	if IsRetryable(E(KindValidation, "op", nil)) {
		t.Fatalf("validation should not be retryable")
	}
}

func TestErrorStringIncludesOp(t *testing.T) {
	err := Ef(KindConflict, "store.CreateTenant", "slug %q taken", "bobs-garage")
	want := `store.CreateTenant: slug "bobs-garage" taken`
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

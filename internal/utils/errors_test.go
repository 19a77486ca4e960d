package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := ValidationError("engine.Generate", "time horizon must be positive")
	want := "engine.Generate: time horizon must be positive"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	inner := errors.New("connection refused")
	wrapped := ExternalDependencyError("repo.FetchSeries", "history fetch failed", inner)
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error must unwrap to the cause")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ValidationError("op", "m"), KindValidation},
		{InsufficientDataError("op", "m"), KindInsufficientData},
		{ModelFittingError("op", "m", nil), KindModelFitting},
		{ExternalDependencyError("op", "m", nil), KindExternalDependency},
		{errors.New("plain"), ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", InsufficientDataError("features.Prepare", "empty series"))
	if KindOf(err) != KindInsufficientData {
		t.Errorf("kind lost through wrapping: %q", KindOf(err))
	}
	if IsValidation(err) {
		t.Error("insufficient data must not report as validation")
	}
}

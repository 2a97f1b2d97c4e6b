package domain

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestApplicationErrWrapsAndUnwraps(t *testing.T) {
	base := errors.New("duplicate entry")
	err := ApplicationErr(base)

	if !IsApplicationErr(err) {
		t.Fatal("expected application kind")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected Unwrap to reach the base error")
	}
	if err.Error() != "duplicate entry" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestApplicationErrNil(t *testing.T) {
	if ApplicationErr(nil) != nil {
		t.Fatal("expected nil in, nil out")
	}
}

func TestIsApplicationErrThroughWrapping(t *testing.T) {
	err := pkgerrors.Wrap(ApplicationErr(errors.New("not found")), "loading record")
	if !IsApplicationErr(err) {
		t.Fatal("expected kind to survive wrapping")
	}
}

func TestIsApplicationErrDefaultsToInternal(t *testing.T) {
	if IsApplicationErr(errors.New("boom")) {
		t.Fatal("untagged errors must be internal")
	}
	if IsApplicationErr(&CommandError{Kind: KindInternal, Err: errors.New("boom")}) {
		t.Fatal("internal kind must not read as application")
	}
}

func TestInvalidStateErrorMessage(t *testing.T) {
	err := &InvalidStateError{
		Command:        "doWork",
		Actual:         StatusStarted,
		ExpectedStates: []Status{StatusInitialized, StatusShuttingDown},
	}
	want := `command "doWork" is not valid in state Started (expected one of: Initialized, ShuttingDown)`
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestIsCancellation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrCancelled, true},
		{"wrapped sentinel", pkgerrors.Wrap(ErrCancelled, "stopping"), true},
		{"operation cancelled", &OperationCancelledError{Command: "doWork"}, true},
		{"context canceled", context.Canceled, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"ordinary error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsCancellation(tc.err); got != tc.want {
			t.Errorf("%s: IsCancellation = %v, want %v", tc.name, got, tc.want)
		}
	}
}

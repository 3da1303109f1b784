package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestArchiveErrorMatchesKind(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{KindInvalidInput, ErrInvalidInput},
		{KindIoFailure, ErrIoFailure},
		{KindCompressionFailure, ErrCompressionFailure},
		{KindContainerFailure, ErrContainerFailure},
	}

	for _, tt := range tests {
		err := fmt.Errorf("outer: %w", New("package", "src", tt.kind, fs.ErrPermission))
		if !stderrors.Is(err, tt.sentinel) {
			t.Errorf("kind %v: expected errors.Is to match %v", tt.kind, tt.sentinel)
		}
		if !stderrors.Is(err, fs.ErrPermission) {
			t.Errorf("kind %v: cause lost from chain", tt.kind)
		}
		if got := KindOf(err); got != tt.kind {
			t.Errorf("KindOf = %v, want %v", got, tt.kind)
		}
	}
}

func TestArchiveErrorDoesNotMatchOtherKinds(t *testing.T) {
	err := New("unpack", "a.box", KindCompressionFailure, ErrUnknownFormat)
	if stderrors.Is(err, ErrContainerFailure) {
		t.Fatal("compression failure matched container sentinel")
	}
}

func TestArchiveErrorMessage(t *testing.T) {
	err := New("unpack", "data.tar.zst", KindCompressionFailure, ErrUnknownFormat)
	want := "unpack data.tar.zst: compression failure: unrecognized compression frame"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := New("package", "", KindInvalidInput, nil)
	if bare.Error() != "package: invalid input" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(stderrors.New("plain")) != KindUnknown {
		t.Error("expected KindUnknown for a plain error")
	}
}

package domain

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"user", ErrMissingFiles, KindUser},
		{"wrapped io", fmt.Errorf("encode image: %w", NewError(KindIO, io.ErrUnexpectedEOF)), KindIO},
		{"transport", NewError(KindTransport, errors.New("dial tcp: refused")), KindTransport},
		{"plain", errors.New("boom"), KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	if got := ErrMissingFiles.Error(); got != MissingFilesMessage {
		t.Errorf("user error message = %q, want %q", got, MissingFilesMessage)
	}
	e := NewError(KindProtocol, errors.New("missing text field"))
	if got := e.Error(); got != "protocol: missing text field" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(e, e.Err) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestSubmissionStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateSubmitting.String() != "submitting" {
		t.Fatalf("unexpected state names: %s %s", StateIdle, StateSubmitting)
	}
}

func TestPathContentReopensFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cctv.jpg")
	if err := os.WriteFile(path, []byte("frame"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := PathContent(path)
	for i := 0; i < 2; i++ {
		rc, err := c.Open()
		if err != nil {
			t.Fatalf("Open() #%d: %v", i, err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		if string(b) != "frame" {
			t.Fatalf("read %q", b)
		}
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Open(); err == nil {
		t.Fatal("expected error after file removal")
	}
}

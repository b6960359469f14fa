package savestate

import "testing"

func TestWrapUnwrapRoundTrip(t *testing.T) {
	rom := []byte("pretend rom bytes")
	ram := []byte{1, 2, 3, 4, 5}

	blob := Wrap(rom, ram)

	got, err := Unwrap(rom, blob)
	if err != nil {
		t.Fatalf("Unwrap failed: %v", err)
	}
	if string(got) != string(ram) {
		t.Errorf("Unwrap returned %v; want %v", got, ram)
	}
}

func TestUnwrapRejectsMismatchedROM(t *testing.T) {
	blob := Wrap([]byte("rom a"), []byte{9, 9, 9})

	_, err := Unwrap([]byte("rom b"), blob)
	if err != ErrROMMismatch {
		t.Errorf("expected ErrROMMismatch, got %v", err)
	}
}

func TestUnwrapRejectsTruncatedBlob(t *testing.T) {
	if _, err := Unwrap([]byte("rom"), []byte{1, 2, 3}); err == nil {
		t.Error("expected an error for a truncated blob")
	}
}

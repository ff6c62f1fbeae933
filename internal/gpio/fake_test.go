package gpio

import (
	"errors"
	"testing"
)

func TestFakeWriterSet(t *testing.T) {
	f := NewFakeWriter()

	if err := f.Set(5, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Set(54, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Set(5, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.Values[5] {
		t.Errorf("pin 5: got on, want off")
	}
	if !f.Values[54] {
		t.Errorf("pin 54: got off, want on")
	}
	want := []Write{{5, true}, {54, true}, {5, false}}
	if len(f.Writes) != len(want) {
		t.Fatalf("writes: got %d, want %d", len(f.Writes), len(want))
	}
	for i := range want {
		if f.Writes[i] != want[i] {
			t.Errorf("write %d: got %+v, want %+v", i, f.Writes[i], want[i])
		}
	}
}

func TestFakeWriterError(t *testing.T) {
	f := NewFakeWriter()
	f.SetError = errors.New("line busy")

	if err := f.Set(5, true); err == nil {
		t.Error("expected error, got nil")
	}
	if len(f.Writes) != 0 {
		t.Errorf("failed write was recorded: %+v", f.Writes)
	}
}

func TestFakeWriterCloseDropsLines(t *testing.T) {
	f := NewFakeWriter()
	f.Set(54, true)

	if err := f.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("expected Closed to be true")
	}
	if f.Values[54] {
		t.Error("pin 54 still on after Close")
	}

	f.Reset()
	if f.Closed || len(f.Writes) != 0 {
		t.Error("Reset did not clear state")
	}
}

// Verify FakeWriter implements Writer interface
var _ Writer = (*FakeWriter)(nil)

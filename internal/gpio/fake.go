package gpio

// FakeWriter is a test double that records line writes.
type FakeWriter struct {
	// Values holds the last value written per offset.
	Values map[int]bool

	// Writes records every Set call in order.
	Writes []Write

	// Closed tracks if Close was called.
	Closed bool

	// SetError, if set, will be returned by Set.
	SetError error
}

// Write is a single recorded Set call.
type Write struct {
	Offset int
	On     bool
}

// NewFakeWriter creates an empty FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{Values: make(map[int]bool)}
}

// Set records the write.
func (f *FakeWriter) Set(offset int, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Values[offset] = on
	f.Writes = append(f.Writes, Write{Offset: offset, On: on})
	return nil
}

// Close marks the writer as closed and drops every line low.
func (f *FakeWriter) Close() error {
	for off := range f.Values {
		f.Values[off] = false
	}
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakeWriter) Reset() {
	f.Values = make(map[int]bool)
	f.Writes = nil
	f.Closed = false
	f.SetError = nil
}

//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives output lines on actual hardware using the Linux GPIO
// character device.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewRealWriter requests the given offsets as outputs, initially low.
func NewRealWriter(chipName string, offsets ...int) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	w := &RealWriter{chip: chip, lines: make(map[int]*gpiocdev.Line)}
	for _, off := range offsets {
		if _, ok := w.lines[off]; ok {
			continue
		}
		// Start low so a heater relay never closes before the controller
		// has decided it should.
		line, err := chip.RequestLine(off, gpiocdev.AsOutput(0))
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("request pin %d: %w", off, err)
		}
		w.lines[off] = line
	}
	return w, nil
}

// Set drives the line.
func (w *RealWriter) Set(offset int, on bool) error {
	line, ok := w.lines[offset]
	if !ok {
		return fmt.Errorf("pin %d not requested", offset)
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", offset, err)
	}
	return nil
}

// Close drives every line low, then reconfigures it to input with pull-down
// (matching Pi boot defaults) before releasing it.
func (w *RealWriter) Close() error {
	var errs []error

	for off, line := range w.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear pin %d: %w", off, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", off, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", off, err))
		}
	}
	w.lines = nil
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

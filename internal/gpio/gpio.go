// Package gpio drives digital output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Writer drives digital output lines identified by chip line offset.
type Writer interface {
	// Set drives the line high (on) or low.
	Set(offset int, on bool) error

	// Close releases GPIO resources, leaving lines in a safe state.
	Close() error
}

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

package adapter

import "codeberg.org/mutker/packmon/internal/bms"

// Adapter is the sensor abstraction the acquisition loop reads from.
// ReadSample must return promptly relative to the acquisition period; a
// stalled read is caught only by the watchdog's overrun check, never by
// a timeout on the call itself.
type Adapter interface {
	ReadSample() (bms.Sample, error)
}

package bms

import "strings"

// NumCells is the number of series cells in the monitored pack.
const NumCells = 5

// Sample is one timestamped measurement of all cell voltages, pack
// voltage, and pack current. Samples are immutable once produced and are
// copied by value across the queue boundary. The pack voltage is the sum
// of the per-cell voltages as computed by the adapter at sampling time.
type Sample struct {
	CellV     [NumCells]float64
	PackV     float64
	PackI     float64
	Timestamp uint32
}

// IsZero reports whether the sample is the wiped zero value. Consumed
// samples are zeroed in place in the ring buffer.
func (s Sample) IsZero() bool {
	return s == Sample{}
}

// Flags is the violation bitmask carried by every stats window.
// Bit 0 marks valid data, bits 1-10 are per-cell under/over-voltage
// pairs, bits 11-12 are pack under/over-current.
type Flags uint16

const (
	FlagValid            Flags = 0x0001
	FlagPackUndercurrent Flags = 0x0800
	FlagPackOvercurrent  Flags = 0x1000
)

// UndervoltageFlag returns the under-voltage bit for the given cell.
func UndervoltageFlag(cell int) Flags {
	return 1 << (uint(cell)*2 + 1)
}

// OvervoltageFlag returns the over-voltage bit for the given cell.
func OvervoltageFlag(cell int) Flags {
	return 1 << (uint(cell)*2 + 2)
}

// Has reports whether all bits of mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// Violations returns the mask with the valid-data marker stripped,
// leaving only actual limit violations.
func (f Flags) Violations() Flags {
	return f &^ FlagValid
}

// String renders the set violation bits for logs, e.g.
// "cell2:under cell4:over pack:overcurrent".
func (f Flags) String() string {
	if f.Violations() == 0 {
		return "none"
	}

	var parts []string
	names := [...]struct {
		mask Flags
		name string
	}{
		{UndervoltageFlag(0), "cell0:under"},
		{OvervoltageFlag(0), "cell0:over"},
		{UndervoltageFlag(1), "cell1:under"},
		{OvervoltageFlag(1), "cell1:over"},
		{UndervoltageFlag(2), "cell2:under"},
		{OvervoltageFlag(2), "cell2:over"},
		{UndervoltageFlag(3), "cell3:under"},
		{OvervoltageFlag(3), "cell3:over"},
		{UndervoltageFlag(4), "cell4:under"},
		{OvervoltageFlag(4), "cell4:over"},
		{FlagPackUndercurrent, "pack:undercurrent"},
		{FlagPackOvercurrent, "pack:overcurrent"},
	}
	for _, n := range names {
		if f.Has(n.mask) {
			parts = append(parts, n.name)
		}
	}

	return strings.Join(parts, " ")
}

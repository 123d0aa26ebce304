package bms

// Limits are the configured battery thresholds. The aggregation engine
// consults the cell voltage and pack current limits for its violation
// scan; the pack voltage limits are used by the configuration console
// for plausibility checks only.
type Limits struct {
	CellVoltageMin float64
	CellVoltageMax float64
	PackVoltageMin float64
	PackVoltageMax float64
	CurrentMin     float64
	CurrentMax     float64
}

// Check returns the violation bits for one sample. Cell voltages are
// evaluated against the per-cell limits, pack current against the
// current limits. The valid-data marker is never set here.
func (l Limits) Check(s Sample) Flags {
	var flags Flags

	for i := 0; i < NumCells; i++ {
		if s.CellV[i] < l.CellVoltageMin {
			flags |= UndervoltageFlag(i)
		}
		if s.CellV[i] > l.CellVoltageMax {
			flags |= OvervoltageFlag(i)
		}
	}

	if s.PackI < l.CurrentMin {
		flags |= FlagPackUndercurrent
	}
	if s.PackI > l.CurrentMax {
		flags |= FlagPackOvercurrent
	}

	return flags
}

// Package stats implements the aggregation engine: pure computation of
// statistics windows over the staged sample ring. A batch with no limit
// violations collapses into one window; a batch containing a violation
// is split into sub-windows for finer temporal localization of the
// fault. Retiring consumed samples is the caller's move, which is what
// lets the processing loop hold samples back until the telemetry sink
// has acknowledged them.
package stats

import (
	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/errors"
)

// Window is the aggregate over a contiguous run of samples. The JSON
// field set is the wire format: one window serializes to one
// self-contained message.
type Window struct {
	Timestamp   uint32                `json:"timestamp"`
	SampleCount int                   `json:"sample_count"`
	Flags       bms.Flags             `json:"cell_errors"`
	CellVAvg    [bms.NumCells]float64 `json:"cell_v_avg"`
	CellVMin    [bms.NumCells]float64 `json:"cell_v_min"`
	CellVMax    [bms.NumCells]float64 `json:"cell_v_max"`
	PackVAvg    float64               `json:"pack_v_avg"`
	PackVMin    float64               `json:"pack_v_min"`
	PackVMax    float64               `json:"pack_v_max"`
	PackIAvg    float64               `json:"pack_i_avg"`
	PackIMin    float64               `json:"pack_i_min"`
	PackIMax    float64               `json:"pack_i_max"`
}

type Config struct {
	Limits        bms.Limits
	BatchSize     int
	SubwindowSize int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:     20,
		SubwindowSize: 4,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.BatchSize <= 0 || c.SubwindowSize <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "batch and subwindow sizes must be positive")
	}
	if c.BatchSize%c.SubwindowSize != 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "batch size must be a multiple of the subwindow size")
	}

	return nil
}

type Engine struct {
	limits    bms.Limits
	batch     int
	subwindow int
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		limits:    cfg.Limits,
		batch:     cfg.BatchSize,
		subwindow: cfg.SubwindowSize,
	}, nil
}

// Compute aggregates one batch of staged samples into windows. It
// requires a full batch; with fewer samples it computes nothing and
// returns a zero consumed count. The ring is read but never advanced:
// the caller retires the consumed samples once it has decided their
// fate.
func (e *Engine) Compute(ring *bms.Ring) ([]Window, int) {
	if ring == nil || ring.Len() < e.batch {
		return nil, 0
	}

	// First pass: scan the whole batch for limit violations.
	var flags bms.Flags
	for i := 0; i < e.batch; i++ {
		flags |= e.limits.Check(ring.At(i))
	}

	if flags.Violations() == 0 {
		return []Window{e.window(ring, 0, e.batch)}, e.batch
	}

	windows := make([]Window, 0, e.batch/e.subwindow)
	for offset := 0; offset < e.batch; offset += e.subwindow {
		windows = append(windows, e.window(ring, offset, e.subwindow))
	}

	return windows, e.batch
}

// window aggregates size samples starting at offset into one finalized
// window. The same function serves the full-batch and sub-window paths.
func (e *Engine) window(ring *bms.Ring, offset, size int) Window {
	first := ring.At(offset)

	w := Window{Timestamp: first.Timestamp}
	for c := 0; c < bms.NumCells; c++ {
		w.CellVMin[c] = first.CellV[c]
		w.CellVMax[c] = first.CellV[c]
	}
	w.PackVMin = first.PackV
	w.PackVMax = first.PackV
	w.PackIMin = first.PackI
	w.PackIMax = first.PackI

	for i := 0; i < size; i++ {
		s := ring.At(offset + i)

		for c := 0; c < bms.NumCells; c++ {
			v := s.CellV[c]
			w.CellVAvg[c] += v
			if v < w.CellVMin[c] {
				w.CellVMin[c] = v
			}
			if v > w.CellVMax[c] {
				w.CellVMax[c] = v
			}
		}

		w.PackVAvg += s.PackV
		if s.PackV < w.PackVMin {
			w.PackVMin = s.PackV
		}
		if s.PackV > w.PackVMax {
			w.PackVMax = s.PackV
		}

		w.PackIAvg += s.PackI
		if s.PackI < w.PackIMin {
			w.PackIMin = s.PackI
		}
		if s.PackI > w.PackIMax {
			w.PackIMax = s.PackI
		}

		w.Flags |= e.limits.Check(s)
		w.SampleCount++
	}

	inv := 1.0 / float64(w.SampleCount)
	for c := 0; c < bms.NumCells; c++ {
		w.CellVAvg[c] *= inv
	}
	w.PackVAvg *= inv
	w.PackIAvg *= inv

	w.Flags |= bms.FlagValid

	return w
}

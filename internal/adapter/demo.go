package adapter

import (
	crand "crypto/rand"
	"encoding/binary"

	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/logger"
)

const (
	// probability of an under- or over-voltage excursion per cell per sample
	demoUndervoltageP = 0.02
	demoOvervoltageP  = 0.02

	fallbackSeed = 0x12345678
)

// demo generates plausible battery samples: per-cell voltages uniform
// within the configured limits, with occasional excursions of 0.1-0.3 V
// beyond them. The pack voltage is the sum of the cells; the pack
// current spans an asymmetric range, which is a quirk of this generator
// and not a property of the measurement core. Deterministic for a fixed
// seed. Not safe for concurrent use; the acquisition loop is the only
// caller.
type demo struct {
	limits bms.Limits
	state  uint32
	ticks  uint32
}

func newDemo(seed uint32, limits bms.Limits, log logger.Logger) *demo {
	if seed == 0 {
		var buf [4]byte
		if _, err := crand.Read(buf[:]); err == nil {
			seed = binary.LittleEndian.Uint32(buf[:])
		}
		if seed == 0 {
			seed = fallbackSeed
		}
	}

	log.Debug().Uint32("seed", seed).Msg("Demo adapter initialized (random cell voltages)")

	return &demo{
		limits: limits,
		state:  seed,
	}
}

func (d *demo) ReadSample() (bms.Sample, error) {
	var s bms.Sample

	for i := 0; i < bms.NumCells; i++ {
		r := d.rand01()
		v := d.limits.CellVoltageMin + r*(d.limits.CellVoltageMax-d.limits.CellVoltageMin)

		e := d.rand01()
		if e < demoUndervoltageP {
			v -= 0.1 + d.rand01()*0.2
		} else if e > 1.0-demoOvervoltageP {
			v += 0.1 + d.rand01()*0.2
		}

		s.CellV[i] = v
		s.PackV += v
	}

	s.PackI = d.limits.CurrentMin + d.rand01()*d.limits.CurrentMax*2.0

	d.ticks++
	s.Timestamp = d.ticks

	return s, nil
}

// rand32 is the xorshift32 generator.
func (d *demo) rand32() uint32 {
	x := d.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	d.state = x

	return x
}

// rand01 scales 24 random bits into [0, 1).
func (d *demo) rand01() float64 {
	return float64(d.rand32()&0xFFFFFF) / float64(0x1000000)
}

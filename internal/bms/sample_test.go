package bms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagBitLayout(t *testing.T) {
	assert.Equal(t, Flags(0x0001), FlagValid)
	assert.Equal(t, Flags(0x0002), UndervoltageFlag(0))
	assert.Equal(t, Flags(0x0004), OvervoltageFlag(0))
	assert.Equal(t, Flags(0x0200), UndervoltageFlag(4))
	assert.Equal(t, Flags(0x0400), OvervoltageFlag(4))
	assert.Equal(t, Flags(0x0800), FlagPackUndercurrent)
	assert.Equal(t, Flags(0x1000), FlagPackOvercurrent)
}

func TestFlagsViolations(t *testing.T) {
	f := FlagValid | UndervoltageFlag(2)
	assert.Equal(t, UndervoltageFlag(2), f.Violations())
	assert.True(t, f.Has(FlagValid))
	assert.True(t, f.Has(UndervoltageFlag(2)))
	assert.False(t, f.Has(OvervoltageFlag(2)))
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", FlagValid.String())
	f := FlagValid | UndervoltageFlag(2) | FlagPackOvercurrent
	assert.Equal(t, "cell2:under pack:overcurrent", f.String())
}

func TestSampleIsZero(t *testing.T) {
	assert.True(t, Sample{}.IsZero())
	assert.False(t, Sample{PackI: 0.1}.IsZero())
}

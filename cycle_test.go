package cyclekit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCycleValidation(t *testing.T) {
	charge := testHalfCycle(t, Charge)
	discharge := testHalfCycle(t, Discharge)

	_, err := NewCycle(0, nil, nil)
	assert.Error(t, err)

	_, err = NewCycle(0, discharge, nil)
	assert.Error(t, err, "discharge in the charge slot must be rejected")

	_, err = NewCycle(0, nil, charge)
	assert.Error(t, err, "charge in the discharge slot must be rejected")

	c, err := NewCycle(3, charge, discharge)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Number())
}

func TestCycleIdenticalLegsEfficiencies(t *testing.T) {
	c, err := NewCycle(0, testHalfCycle(t, Charge), testHalfCycle(t, Discharge))
	require.NoError(t, err)

	ce, ok := c.CoulombEfficiency().Value()
	require.True(t, ok)
	assert.InDelta(t, 100, ce, 1e-9)

	ee, ok := c.EnergyEfficiency().Value()
	require.True(t, ok)
	assert.InDelta(t, 100, ee, 1e-9)

	ve, ok := c.VoltageEfficiency().Value()
	require.True(t, ok)
	assert.InDelta(t, 100, ve, 1e-9)
}

func TestCycleMissingLegEfficiencies(t *testing.T) {
	c, err := NewCycle(0, testHalfCycle(t, Charge), nil)
	require.NoError(t, err)

	assert.True(t, c.CoulombEfficiency().IsMissing())
	assert.True(t, c.EnergyEfficiency().IsMissing())
	assert.True(t, c.VoltageEfficiency().IsMissing())
}

func TestCycleDegenerateCharge(t *testing.T) {
	// Zero current makes charge capacity and energy zero.
	charge, err := NewHalfCycle(rampSeries(0, 5), constSeries(1.2, 5), constSeries(0, 5), Charge, time.Now())
	require.NoError(t, err)
	c, err := NewCycle(0, charge, testHalfCycle(t, Discharge))
	require.NoError(t, err)

	for _, e := range []Efficiency{c.CoulombEfficiency(), c.EnergyEfficiency(), c.VoltageEfficiency()} {
		assert.True(t, e.IsDegenerate())
		v, ok := e.Value()
		require.True(t, ok)
		assert.Equal(t, float64(DegenerateEfficiency), v)
	}
}

func TestCycleConcatenatedSeries(t *testing.T) {
	charge := testHalfCycle(t, Charge)
	discharge := testHalfCycle(t, Discharge)
	c, err := NewCycle(0, charge, discharge)
	require.NoError(t, err)

	voltage := c.Voltage()
	require.Len(t, voltage, 10)
	assert.Equal(t, append(append([]float64{}, charge.Voltage()...), discharge.Voltage()...), voltage)

	// Each leg keeps its own time basis.
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 0, 1, 2, 3, 4}, c.Time())

	single, err := NewCycle(1, charge, nil)
	require.NoError(t, err)
	assert.Equal(t, charge.Voltage(), single.Voltage())
}

func TestTimeAdjustSharedStart(t *testing.T) {
	c, err := NewCycle(0, testHalfCycle(t, Charge), testHalfCycle(t, Discharge))
	require.NoError(t, err)

	ct, dt, err := TimeAdjust(c, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, ct)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, dt)

	ct, dt, err = TimeAdjust(c, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, ct)
	assert.Equal(t, []float64{4, 3, 2, 1, 0}, dt)
}

func TestTimeAdjustContinuingClock(t *testing.T) {
	charge := testHalfCycle(t, Charge)
	discharge, err := NewHalfCycle(rampSeries(1, 5), constSeries(1.2, 5), constSeries(0.8, 5), Discharge, time.Now())
	require.NoError(t, err)
	c, err := NewCycle(0, charge, discharge)
	require.NoError(t, err)

	ct, dt, err := TimeAdjust(c, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, ct)
	assert.Equal(t, []float64{-4, -3, -2, -1, 0}, dt)
}

func TestTimeAdjustNeedsBothLegs(t *testing.T) {
	c, err := NewCycle(0, testHalfCycle(t, Charge), nil)
	require.NoError(t, err)

	_, _, err = TimeAdjust(c, false)
	assert.Error(t, err)
}

func TestCycleTimestampFallsBackToDischarge(t *testing.T) {
	discharge := testHalfCycle(t, Discharge)
	c, err := NewCycle(0, nil, discharge)
	require.NoError(t, err)
	assert.Equal(t, discharge.Timestamp(), c.Timestamp())
}

func TestEfficiencyValueStates(t *testing.T) {
	_, ok := MissingEfficiency().Value()
	assert.False(t, ok)

	v, ok := NormalEfficiency(97.5).Value()
	require.True(t, ok)
	assert.Equal(t, 97.5, v)

	assert.False(t, math.IsNaN(DegenerateEfficiencyValue().Float()))
	assert.Equal(t, float64(DegenerateEfficiency), DegenerateEfficiencyValue().Float())
}

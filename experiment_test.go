package cyclekit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateExperiment(t *testing.T) *RateExperiment {
	t.Helper()
	exp, err := NewRateExperiment(
		[]float64{0.5, 1.0},
		[]*CellCycling{
			fadingCells(t, []float64{1.0, 0.9}),
			fadingCells(t, []float64{0.8, 0.7}),
		},
	)
	require.NoError(t, err)
	return exp
}

func TestNewRateExperimentLengthMismatch(t *testing.T) {
	_, err := NewRateExperiment([]float64{0.5}, nil)
	assert.Error(t, err)
}

func TestRateExperimentReferenceValidation(t *testing.T) {
	exp := rateExperiment(t)

	assert.Error(t, exp.SetReference(2, 0))
	assert.Error(t, exp.SetReference(-1, 0))
	assert.Error(t, exp.SetReference(0, 5))
	assert.NoError(t, exp.SetReference(1, 1))

	step, cycle := exp.Reference()
	assert.Equal(t, 1, step)
	assert.Equal(t, 1, cycle)
}

func TestRateExperimentCapacityRetention(t *testing.T) {
	exp := rateExperiment(t)

	retention, err := exp.CapacityRetention()
	require.NoError(t, err)
	want := []float64{100, 90, 80, 70}
	require.Len(t, retention, 4)
	for i, w := range want {
		assert.InDelta(t, w, retention[i], 1e-9)
	}

	require.NoError(t, exp.SetReference(1, 0))
	retention, err = exp.CapacityRetention()
	require.NoError(t, err)
	assert.InDelta(t, 125, retention[0], 1e-9)
	assert.InDelta(t, 100, retention[2], 1e-9)
}

func TestRateExperimentFlattenedEfficiencies(t *testing.T) {
	exp := rateExperiment(t)

	ce := exp.CoulombEfficiencies()
	want := []float64{100, 90, 80, 70}
	require.Len(t, ce, 4)
	for i, w := range want {
		assert.InDelta(t, w, ce[i], 1e-9)
	}

	ee := exp.EnergyEfficiencies()
	for i, w := range want {
		assert.InDelta(t, w, ee[i], 1e-9)
	}

	ve := exp.VoltageEfficiencies()
	for _, v := range ve {
		assert.InDelta(t, 100, v, 1e-9)
	}
}

func TestRateExperimentDegenerateChargeSentinel(t *testing.T) {
	deadCharge, err := NewHalfCycle(rampSeries(0, 5), constSeries(1.2, 5), constSeries(0, 5), Charge, time.Now())
	require.NoError(t, err)
	degenerate, err := NewCycle(0, deadCharge, testHalfCycle(t, Discharge))
	require.NoError(t, err)

	exp, err := NewRateExperiment([]float64{0.5}, []*CellCycling{NewCellCycling([]*Cycle{degenerate})})
	require.NoError(t, err)

	assert.Equal(t, []float64{101}, exp.CoulombEfficiencies())
	assert.Equal(t, []float64{101}, exp.EnergyEfficiencies())
	assert.Equal(t, []float64{101}, exp.VoltageEfficiencies())
}

func TestRateExperimentMissingLegIsNaN(t *testing.T) {
	chargeOnly, err := NewCycle(0, testHalfCycle(t, Charge), nil)
	require.NoError(t, err)
	full, err := NewCycle(1, testHalfCycle(t, Charge), testHalfCycle(t, Discharge))
	require.NoError(t, err)

	exp, err := NewRateExperiment([]float64{0.5}, []*CellCycling{NewCellCycling([]*Cycle{full, chargeOnly})})
	require.NoError(t, err)

	ce := exp.CoulombEfficiencies()
	require.Len(t, ce, 2)
	assert.InDelta(t, 100, ce[0], 1e-9)
	assert.True(t, math.IsNaN(ce[1]))

	cap := exp.Capacity()
	assert.False(t, math.IsNaN(cap[0]))
	assert.True(t, math.IsNaN(cap[1]))
}

func TestRateExperimentDischargeScalars(t *testing.T) {
	exp := rateExperiment(t)

	caps := exp.Capacity()
	require.Len(t, caps, 4)
	assert.InDelta(t, 0.888889, caps[0], 1e-6)
	assert.InDelta(t, 0.9*0.888889, caps[1], 1e-6)

	energies := exp.TotalEnergy()
	assert.InDelta(t, 1.066667, energies[0], 1e-6)

	powers := exp.AveragePower()
	assert.InDelta(t, 0.96, powers[0], 1e-9)
	assert.InDelta(t, 0.9*0.96, powers[1], 1e-9)
}

func TestRateExperimentAppend(t *testing.T) {
	a := rateExperiment(t)
	b := rateExperiment(t)

	a.Append(b)
	assert.Equal(t, []float64{0.5, 1.0, 0.5, 1.0}, a.Currents())
	assert.Len(t, a.Steps(), 4)

	retention, err := a.CapacityRetention()
	require.NoError(t, err)
	assert.Len(t, retention, 8)
}

package cyclekit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fadingCells builds a cycling set whose discharge capacities scale by the
// given factors relative to the first cycle.
func fadingCells(t *testing.T, scales []float64) *CellCycling {
	t.Helper()
	cycles := make([]*Cycle, len(scales))
	for i, s := range scales {
		charge, err := NewHalfCycle(rampSeries(0, 5), constSeries(1.2, 5), constSeries(0.8, 5), Charge, time.Now())
		require.NoError(t, err)
		discharge, err := NewHalfCycle(rampSeries(0, 5), constSeries(1.2, 5), constSeries(0.8*s, 5), Discharge, time.Now())
		require.NoError(t, err)
		cycles[i], err = NewCycle(i, charge, discharge)
		require.NoError(t, err)
	}
	return NewCellCycling(cycles)
}

func TestCellCyclingVisibility(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9, 0.8, 0.7, 0.6})

	assert.Equal(t, 5, cc.Len())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, cc.Numbers())

	require.NoError(t, cc.Hide([]int{1}))
	assert.Equal(t, 4, cc.Len())
	assert.Equal(t, []int{0, 2, 3, 4}, cc.Numbers())

	_, err := cc.Get(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unhide")

	c, err := cc.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Number())

	require.NoError(t, cc.Unhide([]int{1}))
	assert.Equal(t, 5, cc.Len())
	restored, err := cc.Get(1)
	require.NoError(t, err)
	ce, ok := restored.CoulombEfficiency().Value()
	require.True(t, ok)
	assert.InDelta(t, 90, ce, 1e-9, "hiding must not alter derived values")
}

func TestCellCyclingHideOutOfRange(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9})
	assert.Error(t, cc.Hide([]int{5}))
	assert.Error(t, cc.Unhide([]int{-1}))
	assert.Equal(t, 2, cc.Len(), "a failed hide must not change the mask")
}

func TestCapacityRetention(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9, 0.8, 0.7, 0.6})

	retention, err := cc.CapacityRetention()
	require.NoError(t, err)
	want := []float64{100, 90, 80, 70, 60}
	require.Len(t, retention, 5)
	for i, w := range want {
		assert.InDelta(t, w, retention[i], 1e-9)
	}
}

func TestCapacityRetentionMovedReference(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9, 0.8, 0.7, 0.6})
	require.NoError(t, cc.SetReference(1))

	retention, err := cc.CapacityRetention()
	require.NoError(t, err)
	want := []float64{111.111111, 100, 88.888889, 77.777778, 66.666667}
	for i, w := range want {
		assert.InDelta(t, w, retention[i], 1e-5)
	}
}

func TestCapacityRetentionReferenceFollowsVisibleSequence(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9, 0.8, 0.7, 0.6})
	require.NoError(t, cc.Hide([]int{0}))

	retention, err := cc.CapacityRetention()
	require.NoError(t, err)
	require.Len(t, retention, 4)
	assert.InDelta(t, 100, retention[0], 1e-9, "reference 0 must resolve to the first visible cycle")
}

func TestCapacityRetentionMissingDischarge(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9})
	chargeOnly, err := NewCycle(2, testHalfCycle(t, Charge), nil)
	require.NoError(t, err)
	cc = NewCellCycling(append(cc.Cycles(), chargeOnly))

	retention, err := cc.CapacityRetention()
	require.NoError(t, err)
	require.Len(t, retention, 3)
	assert.True(t, math.IsNaN(retention[2]))
}

func TestCapacityRetentionReferenceNeedsDischarge(t *testing.T) {
	chargeOnly, err := NewCycle(0, testHalfCycle(t, Charge), nil)
	require.NoError(t, err)
	cc := NewCellCycling([]*Cycle{chargeOnly})

	_, err = cc.CapacityRetention()
	assert.Error(t, err)
}

func TestFitRetention(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9, 0.8, 0.7, 0.6})
	require.NoError(t, cc.FitRetention(0, 4))

	slope, err := cc.FitSlope()
	require.NoError(t, err)
	assert.InDelta(t, -10, slope, 1e-9)

	intercept, err := cc.FitIntercept()
	require.NoError(t, err)
	assert.InDelta(t, 100, intercept, 1e-9)

	corr, err := cc.FitCorrelation()
	require.NoError(t, err)
	assert.InDelta(t, -1, corr, 1e-9)

	fade, err := cc.CapacityFade()
	require.NoError(t, err)
	assert.InDelta(t, 10, fade, 1e-9)
}

func TestFitRetentionBadRange(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9, 0.8})
	assert.Error(t, cc.FitRetention(2, 1))
	assert.Error(t, cc.FitRetention(0, 9))
	assert.Error(t, cc.FitRetention(-1, 2))
}

func TestPredictRetention(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9, 0.8, 0.7, 0.6})

	_, err := cc.PredictRetention([]float64{5})
	assert.Error(t, err, "prediction before fitting must fail")

	require.NoError(t, cc.FitRetention(0, 4))
	predicted, err := cc.PredictRetention([]float64{5, 6, 7, 9})
	require.NoError(t, err)
	want := []float64{50, 40, 30, 10}
	for i, w := range want {
		assert.InDelta(t, w, predicted[i], 1e-9)
	}
}

func TestRetentionThreshold(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 0.9, 0.8, 0.7, 0.6})
	require.NoError(t, cc.FitRetention(0, 4))

	thresholds, err := cc.RetentionThreshold([]float64{40, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{6, 10}, thresholds)
}

func TestRetentionThresholdZeroSlope(t *testing.T) {
	cc := fadingCells(t, []float64{1.0, 1.0, 1.0})
	require.NoError(t, cc.FitRetention(0, 3))

	_, err := cc.RetentionThreshold([]float64{50})
	assert.Error(t, err)
}

func TestFitRetentionExponential(t *testing.T) {
	scales := make([]float64, 8)
	for i := range scales {
		scales[i] = math.Exp(-0.1 * float64(i))
	}
	cc := fadingCells(t, scales)

	fit, err := cc.FitRetentionExponential()
	require.NoError(t, err)
	assert.InDelta(t, 100, fit.A, 1e-2)
	assert.InDelta(t, 0.1, fit.K, 1e-3)
	assert.InDelta(t, 100*math.Exp(-0.5), fit.Predict(5), 1e-1)
}

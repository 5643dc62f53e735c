package cyclekit

import (
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/stat"
)

// CellCycling aggregates the cycle sequence of one experiment. Cycles are
// held in construction order and never removed; analysis sees them through a
// visibility mask that Hide and Unhide toggle. Derived series are recomputed
// from the visible cycles on every read.
type CellCycling struct {
	cycles    []*Cycle
	numbers   []int
	reference int

	fitted       bool
	slope        float64
	intercept    float64
	correlation  float64
	capacityFade float64
}

// NewCellCycling wraps a cycle sequence. The reference cycle for retention
// computations defaults to the first visible cycle.
func NewCellCycling(cycles []*Cycle) *CellCycling {
	cc := &CellCycling{cycles: cycles}
	cc.refreshNumbers()
	return cc
}

// refreshNumbers rebuilds the visible cycle-number list after any change to
// the visibility mask.
func (cc *CellCycling) refreshNumbers() {
	cc.numbers = cc.numbers[:0]
	for _, c := range cc.cycles {
		if !c.hidden {
			cc.numbers = append(cc.numbers, c.number)
		}
	}
}

// Len is the number of visible cycles.
func (cc *CellCycling) Len() int { return len(cc.numbers) }

// Numbers lists the construction-order numbers of the visible cycles.
func (cc *CellCycling) Numbers() []int {
	out := make([]int, len(cc.numbers))
	copy(out, cc.numbers)
	return out
}

// Cycles returns the visible cycles in order.
func (cc *CellCycling) Cycles() []*Cycle {
	out := make([]*Cycle, 0, len(cc.numbers))
	for _, c := range cc.cycles {
		if !c.hidden {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the cycle at the given absolute (construction-order) index.
// Requesting a hidden cycle is a usage error; the message says how to make
// the cycle visible again.
func (cc *CellCycling) Get(index int) (*Cycle, error) {
	if index < 0 || index >= len(cc.cycles) {
		return nil, fmt.Errorf("cycle index %d out of range [0, %d)", index, len(cc.cycles))
	}
	c := cc.cycles[index]
	if c.hidden {
		return nil, fmt.Errorf("cycle %d is hidden; call Unhide([]int{%d}) to access it", index, index)
	}
	return c, nil
}

// Hide masks the cycles at the given absolute indices out of analysis.
// The underlying data is untouched.
func (cc *CellCycling) Hide(indices []int) error {
	if err := cc.setHidden(indices, true); err != nil {
		return err
	}
	cc.refreshNumbers()
	return nil
}

// Unhide restores previously hidden cycles to analysis.
func (cc *CellCycling) Unhide(indices []int) error {
	if err := cc.setHidden(indices, false); err != nil {
		return err
	}
	cc.refreshNumbers()
	return nil
}

func (cc *CellCycling) setHidden(indices []int, hidden bool) error {
	for _, i := range indices {
		if i < 0 || i >= len(cc.cycles) {
			return fmt.Errorf("cycle index %d out of range [0, %d)", i, len(cc.cycles))
		}
	}
	for _, i := range indices {
		cc.cycles[i].hidden = hidden
	}
	return nil
}

// Reference is the visible-sequence index of the retention reference cycle.
func (cc *CellCycling) Reference() int { return cc.reference }

// SetReference selects which visible cycle anchors the retention series.
func (cc *CellCycling) SetReference(index int) error {
	if index < 0 || index >= len(cc.numbers) {
		return fmt.Errorf("reference index %d out of range: %d visible cycles", index, len(cc.numbers))
	}
	cc.reference = index
	return nil
}

// referenceCycle resolves the reference index against the visible sequence.
func (cc *CellCycling) referenceCycle() (*Cycle, error) {
	visible := cc.Cycles()
	if cc.reference < 0 || cc.reference >= len(visible) {
		return nil, fmt.Errorf("reference index %d out of range: %d visible cycles", cc.reference, len(visible))
	}
	return visible[cc.reference], nil
}

// CapacityRetention computes, for each visible cycle, its discharge capacity
// relative to the reference cycle's as a percentage. Cycles without a
// discharge leg yield NaN. The reference cycle must have a discharge leg.
func (cc *CellCycling) CapacityRetention() ([]float64, error) {
	ref, err := cc.referenceCycle()
	if err != nil {
		return nil, err
	}
	if ref.Discharge() == nil {
		return nil, fmt.Errorf("reference cycle %d has no discharge half-cycle", ref.Number())
	}
	refCap := ref.Discharge().Capacity()

	visible := cc.Cycles()
	out := make([]float64, len(visible))
	for i, c := range visible {
		if c.Discharge() == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = 100 * c.Discharge().Capacity() / refCap
	}
	return out, nil
}

// CoulombEfficiencies returns the coulombic efficiency of each visible
// cycle, serialized: normal ratios as-is, degenerate cycles as the
// DegenerateEfficiency sentinel, missing legs as NaN.
func (cc *CellCycling) CoulombEfficiencies() []float64 {
	return cc.efficiencySeries((*Cycle).CoulombEfficiency)
}

// EnergyEfficiencies returns the serialized energy efficiency of each
// visible cycle.
func (cc *CellCycling) EnergyEfficiencies() []float64 {
	return cc.efficiencySeries((*Cycle).EnergyEfficiency)
}

// VoltageEfficiencies returns the serialized voltage efficiency of each
// visible cycle.
func (cc *CellCycling) VoltageEfficiencies() []float64 {
	return cc.efficiencySeries((*Cycle).VoltageEfficiency)
}

func (cc *CellCycling) efficiencySeries(get func(*Cycle) Efficiency) []float64 {
	visible := cc.Cycles()
	out := make([]float64, len(visible))
	for i, c := range visible {
		if v, ok := get(c).Value(); ok {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// FitRetention fits an ordinary least squares line through the retention
// values of the visible cycles in the half-open index range [start, end)
// against their positions. Cycles whose retention is NaN are excluded from
// the fit. The slope, intercept and correlation are stored for prediction;
// capacity fade is the negated slope, so degradation reads positive.
func (cc *CellCycling) FitRetention(start, end int) error {
	retention, err := cc.CapacityRetention()
	if err != nil {
		return err
	}
	if start < 0 || end > len(retention) || start >= end {
		return fmt.Errorf("fit range [%d, %d) invalid for %d retention values", start, end, len(retention))
	}

	var xs, ys []float64
	for i := start; i < end; i++ {
		if math.IsNaN(retention[i]) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, retention[i])
	}
	if len(xs) < 2 {
		return fmt.Errorf("fit range [%d, %d) has %d usable retention values, need at least 2", start, end, len(xs))
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	cc.intercept = alpha
	cc.slope = beta
	cc.correlation = stat.Correlation(xs, ys, nil)
	cc.capacityFade = -beta
	cc.fitted = true
	return nil
}

// FitSlope is the slope of the last retention fit.
func (cc *CellCycling) FitSlope() (float64, error) {
	if !cc.fitted {
		return 0, errNotFitted()
	}
	return cc.slope, nil
}

// FitIntercept is the intercept of the last retention fit.
func (cc *CellCycling) FitIntercept() (float64, error) {
	if !cc.fitted {
		return 0, errNotFitted()
	}
	return cc.intercept, nil
}

// FitCorrelation is the Pearson correlation of the last retention fit.
func (cc *CellCycling) FitCorrelation() (float64, error) {
	if !cc.fitted {
		return 0, errNotFitted()
	}
	return cc.correlation, nil
}

// CapacityFade is the negated slope of the last retention fit.
func (cc *CellCycling) CapacityFade() (float64, error) {
	if !cc.fitted {
		return 0, errNotFitted()
	}
	return cc.capacityFade, nil
}

func errNotFitted() error {
	return fmt.Errorf("no retention fit available; call FitRetention first")
}

// PredictRetention evaluates the fitted retention line at the given cycle
// numbers.
func (cc *CellCycling) PredictRetention(numbers []float64) ([]float64, error) {
	if !cc.fitted {
		return nil, errNotFitted()
	}
	out := make([]float64, len(numbers))
	for i, n := range numbers {
		out[i] = cc.slope*n + cc.intercept
	}
	return out, nil
}

// RetentionThreshold inverts the fitted line to find the cycle number at
// which each target retention would be reached, rounded down.
func (cc *CellCycling) RetentionThreshold(targets []float64) ([]int, error) {
	if !cc.fitted {
		return nil, errNotFitted()
	}
	if cc.slope == 0 {
		return nil, fmt.Errorf("retention fit slope is zero, thresholds are undefined")
	}
	out := make([]int, len(targets))
	for i, target := range targets {
		out[i] = int(math.Floor((target - cc.intercept) / cc.slope))
	}
	return out, nil
}

// ExponentialFit holds the parameters of a retention ~ A*exp(-K*n) fit.
type ExponentialFit struct {
	A float64
	K float64
}

// FitRetentionExponential fits an exponential decay through the retention
// values of the visible cycles, for chemistries whose fade is not linear.
// NaN retention values are excluded.
func (cc *CellCycling) FitRetentionExponential() (ExponentialFit, error) {
	retention, err := cc.CapacityRetention()
	if err != nil {
		return ExponentialFit{}, err
	}

	var xs, ys []float64
	for i, r := range retention {
		if math.IsNaN(r) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, r)
	}
	if len(xs) < 2 {
		return ExponentialFit{}, fmt.Errorf("exponential fit needs at least 2 retention values, got %d", len(xs))
	}

	fnc := func(dst, p []float64) {
		for i := range xs {
			dst[i] = ys[i] - p[0]*math.Exp(-p[1]*xs[i])
		}
	}
	jac := lm.NumJac{Func: fnc}

	problem := lm.LMProblem{
		Dim:        2,
		Size:       len(xs),
		Func:       fnc,
		Jac:        jac.Jac,
		InitParams: []float64{ys[0], 0.01},
		Tau:        1e-13,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}

	fit := ExponentialFit{}
	fitErr := fmt.Errorf("exponential retention fit did not converge")
	// The solver panics on singular Jacobians; report that as a fit failure.
	func() {
		defer func() {
			if r := recover(); r != nil {
				fitErr = fmt.Errorf("exponential retention fit failed: %v", r)
			}
		}()
		res, err := lm.LM(problem, &lm.Settings{Iterations: 1000, ObjectiveTol: 1e-16})
		if err != nil {
			fitErr = fmt.Errorf("exponential retention fit failed: %w", err)
			return
		}
		fit = ExponentialFit{A: res.X[0], K: res.X[1]}
		fitErr = nil
	}()
	return fit, fitErr
}

// Predict evaluates the exponential fit at a cycle number.
func (f ExponentialFit) Predict(n float64) float64 {
	return f.A * math.Exp(-f.K*n)
}

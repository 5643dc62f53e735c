package cyclekit

import (
	"fmt"
	"math"
	"strings"
)

// RateExperiment is a sequence of cell-cycling steps, each acquired at a
// nominal current rate. Derived series flatten the visible cycles of every
// step in step-then-cycle order.
type RateExperiment struct {
	currents []float64
	steps    []*CellCycling

	refStep  int
	refCycle int
}

// NewRateExperiment pairs current rates with their cell-cycling steps. The
// two lists must have the same length. The retention reference defaults to
// the first cycle of the first step.
func NewRateExperiment(currents []float64, steps []*CellCycling) (*RateExperiment, error) {
	if len(currents) != len(steps) {
		return nil, fmt.Errorf("current list has %d entries, cycling list has %d", len(currents), len(steps))
	}
	return &RateExperiment{currents: currents, steps: steps}, nil
}

// Currents lists the nominal current of each step in A.
func (e *RateExperiment) Currents() []float64 {
	out := make([]float64, len(e.currents))
	copy(out, e.currents)
	return out
}

// Steps returns the cell-cycling steps in order.
func (e *RateExperiment) Steps() []*CellCycling { return e.steps }

// Reference is the (step, cycle) pair anchoring the retention series.
func (e *RateExperiment) Reference() (step, cycle int) { return e.refStep, e.refCycle }

// SetReference validates and stores the retention reference datapoint. Both
// indices are checked against their dimension; out of range in either is an
// error, never a clamp.
func (e *RateExperiment) SetReference(step, cycle int) error {
	if step < 0 || step >= len(e.steps) {
		return fmt.Errorf("reference step %d out of range: %d steps available", step, len(e.steps))
	}
	if cycle < 0 || cycle >= e.steps[step].Len() {
		return fmt.Errorf("reference cycle %d out of range: step %d has %d visible cycles", cycle, step, e.steps[step].Len())
	}
	e.refStep = step
	e.refCycle = cycle
	return nil
}

// Append concatenates another experiment's steps onto this one in place.
func (e *RateExperiment) Append(other *RateExperiment) {
	e.currents = append(e.currents, other.currents...)
	e.steps = append(e.steps, other.steps...)
}

// CapacityRetention flattens, across all steps, each visible cycle's
// discharge capacity relative to the reference datapoint's as a percentage.
// Cycles without a discharge leg yield NaN.
func (e *RateExperiment) CapacityRetention() ([]float64, error) {
	if e.refStep < 0 || e.refStep >= len(e.steps) {
		return nil, fmt.Errorf("reference step %d out of range: %d steps available", e.refStep, len(e.steps))
	}
	refCycles := e.steps[e.refStep].Cycles()
	if e.refCycle < 0 || e.refCycle >= len(refCycles) {
		return nil, fmt.Errorf("reference cycle %d out of range: step %d has %d visible cycles", e.refCycle, e.refStep, len(refCycles))
	}
	refC := refCycles[e.refCycle]
	if refC.Discharge() == nil {
		return nil, fmt.Errorf("reference datapoint (%d, %d) has no discharge half-cycle", e.refStep, e.refCycle)
	}
	refCap := refC.Discharge().Capacity()

	var out []float64
	for _, step := range e.steps {
		for _, c := range step.Cycles() {
			if c.Discharge() == nil {
				out = append(out, math.NaN())
				continue
			}
			out = append(out, 100*c.Discharge().Capacity()/refCap)
		}
	}
	return out, nil
}

// CoulombEfficiencies flattens the serialized coulombic efficiency of every
// visible cycle across all steps.
func (e *RateExperiment) CoulombEfficiencies() []float64 {
	return e.flattenEfficiency((*Cycle).CoulombEfficiency)
}

// EnergyEfficiencies flattens the serialized energy efficiency of every
// visible cycle across all steps.
func (e *RateExperiment) EnergyEfficiencies() []float64 {
	return e.flattenEfficiency((*Cycle).EnergyEfficiency)
}

// VoltageEfficiencies flattens the serialized voltage efficiency of every
// visible cycle across all steps.
func (e *RateExperiment) VoltageEfficiencies() []float64 {
	return e.flattenEfficiency((*Cycle).VoltageEfficiency)
}

// flattenEfficiency serializes one efficiency ratio per visible cycle. The
// same degenerate-charge policy applies as in per-cycle computation; it is
// not re-derived here.
func (e *RateExperiment) flattenEfficiency(get func(*Cycle) Efficiency) []float64 {
	var out []float64
	for _, step := range e.steps {
		for _, c := range step.Cycles() {
			if v, ok := get(c).Value(); ok {
				out = append(out, v)
			} else {
				out = append(out, math.NaN())
			}
		}
	}
	return out
}

// Capacity flattens the discharge capacity (mAh) of every visible cycle.
// Cycles without a discharge leg yield NaN.
func (e *RateExperiment) Capacity() []float64 {
	return e.flattenDischarge((*HalfCycle).Capacity)
}

// TotalEnergy flattens the discharge energy (mWh) of every visible cycle.
func (e *RateExperiment) TotalEnergy() []float64 {
	return e.flattenDischarge((*HalfCycle).TotalEnergy)
}

// AveragePower flattens the mean discharge power (W) of every visible cycle.
func (e *RateExperiment) AveragePower() []float64 {
	return e.flattenDischarge((*HalfCycle).AveragePower)
}

func (e *RateExperiment) flattenDischarge(get func(*HalfCycle) float64) []float64 {
	var out []float64
	for _, step := range e.steps {
		for _, c := range step.Cycles() {
			if c.Discharge() == nil {
				out = append(out, math.NaN())
				continue
			}
			out = append(out, get(c.Discharge()))
		}
	}
	return out
}

func (e *RateExperiment) String() string {
	var b strings.Builder
	b.WriteString("Rate Experiment\n")
	b.WriteString("----------------------------------------\n")
	for i, rate := range e.currents {
		fmt.Fprintf(&b, "%gA : %d cycles\n", rate, e.steps[i].Len())
	}
	b.WriteString("----------------------------------------\n")
	return b.String()
}

package cyclekit

import (
	"fmt"
	"math"
	"time"
)

// Cycle pairs a charge half-cycle with the discharge that follows it and
// derives the coulombic, energy and voltage efficiencies of the pair. Either
// leg may be absent; the corresponding efficiencies are then missing.
type Cycle struct {
	number    int
	hidden    bool
	charge    *HalfCycle
	discharge *HalfCycle

	coulomb Efficiency
	energy  Efficiency
	voltage Efficiency
}

// NewCycle builds a cycle from its two legs. At least one leg must be
// present. number is the position of the cycle in its sequence.
func NewCycle(number int, charge, discharge *HalfCycle) (*Cycle, error) {
	if charge == nil && discharge == nil {
		return nil, fmt.Errorf("cycle %d has neither a charge nor a discharge half-cycle", number)
	}
	if charge != nil && charge.Type() != Charge {
		return nil, fmt.Errorf("cycle %d: charge leg has type %s", number, charge.Type())
	}
	if discharge != nil && discharge.Type() != Discharge {
		return nil, fmt.Errorf("cycle %d: discharge leg has type %s", number, discharge.Type())
	}

	c := &Cycle{
		number:    number,
		charge:    charge,
		discharge: discharge,
	}
	c.calculateEfficiencies()
	return c, nil
}

// calculateEfficiencies derives the three ratios from the two legs. A leg
// with non-positive capacity or energy yields degenerate ratios rather than
// division artifacts.
func (c *Cycle) calculateEfficiencies() {
	c.coulomb = MissingEfficiency()
	c.energy = MissingEfficiency()
	c.voltage = MissingEfficiency()

	if c.charge == nil || c.discharge == nil {
		return
	}

	if c.charge.Capacity() <= 0 || c.charge.TotalEnergy() <= 0 {
		c.coulomb = DegenerateEfficiencyValue()
		c.energy = DegenerateEfficiencyValue()
		c.voltage = DegenerateEfficiencyValue()
		return
	}

	ce := 100 * c.discharge.Capacity() / c.charge.Capacity()
	ee := 100 * c.discharge.TotalEnergy() / c.charge.TotalEnergy()
	c.coulomb = NormalEfficiency(ce)
	c.energy = NormalEfficiency(ee)
	c.voltage = NormalEfficiency(100 * ee / ce)
}

// Number is the position of the cycle within its sequence.
func (c *Cycle) Number() int { return c.number }

// Charge returns the charge leg, or nil when absent.
func (c *Cycle) Charge() *HalfCycle { return c.charge }

// Discharge returns the discharge leg, or nil when absent.
func (c *Cycle) Discharge() *HalfCycle { return c.discharge }

// Hidden reports whether the cycle is currently masked out of analysis.
func (c *Cycle) Hidden() bool { return c.hidden }

// Timestamp is the start time of the earliest present leg.
func (c *Cycle) Timestamp() time.Time {
	if c.charge != nil {
		return c.charge.Timestamp()
	}
	return c.discharge.Timestamp()
}

// CoulombEfficiency is 100 * discharge capacity / charge capacity.
func (c *Cycle) CoulombEfficiency() Efficiency { return c.coulomb }

// EnergyEfficiency is 100 * discharge energy / charge energy.
func (c *Cycle) EnergyEfficiency() Efficiency { return c.energy }

// VoltageEfficiency is 100 * energy efficiency / coulomb efficiency.
func (c *Cycle) VoltageEfficiency() Efficiency { return c.voltage }

// Time returns the charge-then-discharge concatenation of the time series,
// each leg keeping its own time basis.
func (c *Cycle) Time() []float64 { return c.concat((*HalfCycle).Time) }

// Voltage returns the charge-then-discharge concatenation of the voltage
// series.
func (c *Cycle) Voltage() []float64 { return c.concat((*HalfCycle).Voltage) }

// Current returns the charge-then-discharge concatenation of the current
// series.
func (c *Cycle) Current() []float64 { return c.concat((*HalfCycle).Current) }

// Power returns the charge-then-discharge concatenation of the power series.
func (c *Cycle) Power() []float64 { return c.concat((*HalfCycle).Power) }

// Energy returns the charge-then-discharge concatenation of the cumulative
// energy series.
func (c *Cycle) Energy() []float64 { return c.concat((*HalfCycle).Energy) }

// Q returns the charge-then-discharge concatenation of the accumulated
// charge series.
func (c *Cycle) Q() []float64 { return c.concat((*HalfCycle).Q) }

func (c *Cycle) concat(series func(*HalfCycle) []float64) []float64 {
	if c.charge == nil {
		return series(c.discharge)
	}
	if c.discharge == nil {
		return series(c.charge)
	}
	cs, ds := series(c.charge), series(c.discharge)
	out := make([]float64, 0, len(cs)+len(ds))
	out = append(out, cs...)
	out = append(out, ds...)
	return out
}

// TimeAdjust puts the charge and discharge time series on comparable scales.
// When the two legs start at different raw time values (continuing clock
// across the pair) the charge series is shifted to start at zero and the
// discharge series has its own last value subtracted, so it ends at zero.
// When they already start together both come back unmodified. With reverse
// set, the discharge series is additionally reflected about the final charge
// time and made positive, giving a mirrored scale useful for overlays.
func TimeAdjust(c *Cycle, reverse bool) (chargeTime, dischargeTime []float64, err error) {
	if c.Charge() == nil || c.Discharge() == nil {
		return nil, nil, fmt.Errorf("cycle %d: time adjustment needs both half-cycles", c.Number())
	}

	ct := c.Charge().Time()
	dt := c.Discharge().Time()

	if dt[0] != ct[0] {
		chargeTime = make([]float64, len(ct))
		for i, t := range ct {
			chargeTime[i] = t - ct[0]
		}
		dischargeTime = make([]float64, len(dt))
		last := dt[len(dt)-1]
		for i, t := range dt {
			dischargeTime[i] = t - last
		}
	} else {
		chargeTime = append([]float64(nil), ct...)
		dischargeTime = append([]float64(nil), dt...)
	}

	if reverse {
		pivot := chargeTime[len(chargeTime)-1]
		for i, t := range dischargeTime {
			dischargeTime[i] = math.Abs(t - pivot)
		}
	}
	return chargeTime, dischargeTime, nil
}

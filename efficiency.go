package cyclekit

import "fmt"

// DegenerateEfficiency is the value a degenerate efficiency serializes to.
// It is deliberately out of the physical 0..100 range so that downstream
// filters can recognize cycles whose charge leg carried no usable capacity
// or energy.
const DegenerateEfficiency = 101

// EfficiencyState distinguishes the three outcomes of an efficiency
// computation.
type EfficiencyState int

const (
	// EfficiencyMissing means one of the two half-cycles needed for the
	// ratio is absent.
	EfficiencyMissing EfficiencyState = iota
	// EfficiencyNormal is a regular computed ratio.
	EfficiencyNormal
	// EfficiencyDegenerate means the charge leg had non-positive capacity
	// or energy, making the ratio meaningless.
	EfficiencyDegenerate
)

// Efficiency is a tagged efficiency value. The zero value is Missing.
type Efficiency struct {
	state EfficiencyState
	value float64
}

// NormalEfficiency wraps a computed ratio.
func NormalEfficiency(v float64) Efficiency {
	return Efficiency{state: EfficiencyNormal, value: v}
}

// MissingEfficiency reports that the ratio could not be formed.
func MissingEfficiency() Efficiency {
	return Efficiency{state: EfficiencyMissing}
}

// DegenerateEfficiencyValue marks the ratio as meaningless.
func DegenerateEfficiencyValue() Efficiency {
	return Efficiency{state: EfficiencyDegenerate}
}

// State reports which of the three outcomes this value holds.
func (e Efficiency) State() EfficiencyState { return e.state }

// IsMissing reports whether the ratio could not be formed at all.
func (e Efficiency) IsMissing() bool { return e.state == EfficiencyMissing }

// IsDegenerate reports whether the ratio was meaningless.
func (e Efficiency) IsDegenerate() bool { return e.state == EfficiencyDegenerate }

// Value returns the computed ratio. It is only meaningful when the state is
// Normal; degenerate values report the DegenerateEfficiency sentinel and
// missing values report 0 with ok=false.
func (e Efficiency) Value() (float64, bool) {
	switch e.state {
	case EfficiencyNormal:
		return e.value, true
	case EfficiencyDegenerate:
		return DegenerateEfficiency, true
	default:
		return 0, false
	}
}

// Float returns the serialized form used by reports: the ratio itself for
// normal values and the DegenerateEfficiency sentinel for degenerate ones.
// Calling Float on a missing efficiency is a programming error.
func (e Efficiency) Float() float64 {
	v, ok := e.Value()
	if !ok {
		panic("cyclekit: Float called on missing efficiency")
	}
	return v
}

func (e Efficiency) String() string {
	switch e.state {
	case EfficiencyNormal:
		return fmt.Sprintf("%.4f%%", e.value)
	case EfficiencyDegenerate:
		return "degenerate"
	default:
		return "missing"
	}
}

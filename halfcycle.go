package cyclekit

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// HalfCycleType labels a half-cycle as either a charge or a discharge
// excursion.
type HalfCycleType int

const (
	Charge HalfCycleType = iota
	Discharge
)

func (t HalfCycleType) String() string {
	switch t {
	case Charge:
		return "charge"
	case Discharge:
		return "discharge"
	default:
		return fmt.Sprintf("HalfCycleType(%d)", int(t))
	}
}

// ParseHalfCycleType converts the label used by instrument exports into a
// HalfCycleType.
func ParseHalfCycleType(s string) (HalfCycleType, error) {
	switch s {
	case "charge":
		return Charge, nil
	case "discharge":
		return Discharge, nil
	default:
		return 0, fmt.Errorf("unknown half-cycle type %q", s)
	}
}

// HalfCycle holds the data of a single contiguous charge or discharge
// excursion together with the observables derived from it: accumulated
// charge, instantaneous power and energy, total capacity and total energy.
// All derived values are computed once at construction; a HalfCycle is
// immutable afterwards.
//
// Conventions: time is in seconds relative to the first sample, voltage in V,
// current in A (only the magnitude is used), accumulated charge in mAh,
// power in W, energy in mWh.
type HalfCycle struct {
	kind      HalfCycleType
	timestamp time.Time

	time    []float64
	voltage []float64
	current []float64

	q      []float64
	power  []float64
	energy []float64

	capacity    float64
	totalEnergy float64
}

// NewHalfCycle builds a HalfCycle from parallel time/voltage/current series.
// The three series must have the same length with at least two samples, and
// kind must be Charge or Discharge.
func NewHalfCycle(timeSeries, voltage, current []float64, kind HalfCycleType, timestamp time.Time) (*HalfCycle, error) {
	if kind != Charge && kind != Discharge {
		return nil, fmt.Errorf("invalid half-cycle type %d", int(kind))
	}
	if len(timeSeries) != len(voltage) || len(timeSeries) != len(current) {
		return nil, fmt.Errorf("series length mismatch: time=%d voltage=%d current=%d",
			len(timeSeries), len(voltage), len(current))
	}
	if len(timeSeries) < 2 {
		return nil, fmt.Errorf("half-cycle needs at least 2 samples, got %d", len(timeSeries))
	}

	// Copy the input series so later caller mutations cannot invalidate the
	// derived values computed below.
	h := &HalfCycle{
		kind:      kind,
		timestamp: timestamp,
		time:      append([]float64(nil), timeSeries...),
		voltage:   append([]float64(nil), voltage...),
		current:   append([]float64(nil), current...),
	}
	h.calculateQ()
	h.calculateEnergy()
	return h, nil
}

// calculateQ computes the accumulated charge series (mAh) and the total
// capacity. The first element has no preceding sample and is NaN.
func (h *HalfCycle) calculateQ() {
	n := len(h.time)
	h.q = make([]float64, n)
	h.q[0] = math.NaN()

	acc := 0.0
	for i := 1; i < n; i++ {
		dt := h.time[i] - h.time[i-1]
		acc += math.Abs(h.current[i]*dt) / 3.6
		h.q[i] = acc
	}
	h.capacity = h.q[n-1]
}

// calculateEnergy computes the instantaneous power (W) and energy (mWh)
// series and the total energy. The first energy element is NaN, matching Q.
func (h *HalfCycle) calculateEnergy() {
	n := len(h.time)
	h.power = make([]float64, n)
	h.energy = make([]float64, n)
	h.energy[0] = math.NaN()

	for i := 0; i < n; i++ {
		h.power[i] = math.Abs(h.current[i] * h.voltage[i])
	}

	acc := 0.0
	for i := 1; i < n; i++ {
		dt := h.time[i] - h.time[i-1]
		// Divides by the same 3.6 used for the charge increment. Inherited
		// behavior: historical datasets depend on these values, so the
		// conversion is kept as-is.
		acc += h.power[i] * dt / 3.6
		h.energy[i] = acc
	}
	h.totalEnergy = h.energy[n-1]
}

// Type reports whether the half-cycle is a charge or a discharge.
func (h *HalfCycle) Type() HalfCycleType { return h.kind }

// Timestamp is the absolute time at which acquisition of this half-cycle
// started.
func (h *HalfCycle) Timestamp() time.Time { return h.timestamp }

// Len is the number of samples in the half-cycle.
func (h *HalfCycle) Len() int { return len(h.time) }

// Time is the time series in seconds, relative to the first sample.
func (h *HalfCycle) Time() []float64 { return h.time }

// Voltage is the voltage series in V.
func (h *HalfCycle) Voltage() []float64 { return h.voltage }

// Current is the current series in A.
func (h *HalfCycle) Current() []float64 { return h.current }

// Q is the accumulated charge series in mAh. Q[0] is NaN.
func (h *HalfCycle) Q() []float64 { return h.q }

// Power is the instantaneous power series in W.
func (h *HalfCycle) Power() []float64 { return h.power }

// Energy is the cumulative energy series in mWh. Energy[0] is NaN.
func (h *HalfCycle) Energy() []float64 { return h.energy }

// Capacity is the total accumulated charge in mAh.
func (h *HalfCycle) Capacity() float64 { return h.capacity }

// TotalEnergy is the total exchanged energy in mWh.
func (h *HalfCycle) TotalEnergy() float64 { return h.totalEnergy }

// AveragePower is the mean of the instantaneous power series in W.
func (h *HalfCycle) AveragePower() float64 { return stat.Mean(h.power, nil) }

// Join merges partial half-cycles into a single logical one, concatenating
// the series in list order. The time series of fragment k+1 is shifted past
// the end of fragment k, continuing the accumulated time scale with the last
// sample spacing of the previous fragment, so no overlap is introduced at
// fragment boundaries. Timestamp and type are taken from the first fragment.
// Fragments of mixed type cannot be merged and fail the whole operation.
func Join(fragments []*HalfCycle) (*HalfCycle, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("no half-cycle fragments to join")
	}

	kind := fragments[0].kind
	timestamp := fragments[0].timestamp
	for i, frag := range fragments {
		if frag.kind != kind {
			return nil, fmt.Errorf("fragment %d is a %s, expected %s", i, frag.kind, kind)
		}
	}

	total := 0
	for _, frag := range fragments {
		total += frag.Len()
	}

	voltage := make([]float64, 0, total)
	current := make([]float64, 0, total)
	for _, frag := range fragments {
		voltage = append(voltage, frag.voltage...)
		current = append(current, frag.current...)
	}

	timeSeries := make([]float64, 0, total)
	dt := 0.0
	for i, frag := range fragments {
		offset := 0.0
		if i > 0 {
			offset = timeSeries[len(timeSeries)-1]
		}
		for _, t := range frag.time {
			timeSeries = append(timeSeries, t+offset+dt)
		}
		dt = timeSeries[len(timeSeries)-1] - timeSeries[len(timeSeries)-2]
	}

	return NewHalfCycle(timeSeries, voltage, current, kind, timestamp)
}

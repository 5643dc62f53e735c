package cyclekit

import (
	"fmt"
	"sort"
)

// A Record is one parsed, time-zeroed half-cycle keyed by an opaque
// identifier (typically the originating filename, possibly suffixed when a
// single file carries several cycles).
type Record struct {
	ID        string
	HalfCycle *HalfCycle
}

// GroupingStrategy decides which records are fragments of the same logical
// half-cycle. Implementations return an ordered list of groups, each group
// an ordered list of record identifiers.
type GroupingStrategy interface {
	Group(records map[string]*HalfCycle) ([][]string, error)
}

// TimestampGrouping is the default strategy: records are sorted by their
// acquisition timestamp and same-typed runs of adjacent records are
// collected into one group. The heuristic assumes instrument exports
// interleave charge and discharge, so a type change marks a group boundary.
// It does not inspect magnitudes or physical continuity.
type TimestampGrouping struct{}

func (TimestampGrouping) Group(records map[string]*HalfCycle) ([][]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	ordered := make([]Record, 0, len(records))
	for id, h := range records {
		if h == nil {
			return nil, fmt.Errorf("record %q has no half-cycle", id)
		}
		ordered = append(ordered, Record{ID: id, HalfCycle: h})
	}
	// Map iteration order is random; the identifier breaks timestamp ties
	// so grouping is deterministic across runs.
	sort.Slice(ordered, func(i, j int) bool {
		ti, tj := ordered[i].HalfCycle.Timestamp(), ordered[j].HalfCycle.Timestamp()
		if ti.Equal(tj) {
			return ordered[i].ID < ordered[j].ID
		}
		return ti.Before(tj)
	})

	var groups [][]string
	var current []string
	currentType := ordered[0].HalfCycle.Type()
	for _, rec := range ordered {
		if len(current) > 0 && rec.HalfCycle.Type() != currentType {
			groups = append(groups, current)
			current = nil
		}
		currentType = rec.HalfCycle.Type()
		current = append(current, rec.ID)
	}
	groups = append(groups, current)
	return groups, nil
}

// ExplicitGrouping bypasses the timestamp heuristic: the caller declares the
// fragment groups directly, in order. This is the escape hatch for ambiguous
// or out-of-order instrument exports.
type ExplicitGrouping struct {
	Groups [][]string
}

func (g ExplicitGrouping) Group(records map[string]*HalfCycle) ([][]string, error) {
	for _, group := range g.Groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("explicit grouping contains an empty group")
		}
		for _, id := range group {
			if _, ok := records[id]; !ok {
				return nil, fmt.Errorf("explicit grouping references unknown record %q", id)
			}
		}
	}
	return g.Groups, nil
}

// ResolveGroups turns each group of fragment identifiers into a single
// HalfCycle, merging multi-record groups.
func ResolveGroups(records map[string]*HalfCycle, groups [][]string) ([]*HalfCycle, error) {
	resolved := make([]*HalfCycle, 0, len(groups))
	for gi, group := range groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("group %d is empty", gi)
		}
		if len(group) == 1 {
			h, ok := records[group[0]]
			if !ok {
				return nil, fmt.Errorf("group %d references unknown record %q", gi, group[0])
			}
			resolved = append(resolved, h)
			continue
		}
		fragments := make([]*HalfCycle, 0, len(group))
		for _, id := range group {
			h, ok := records[id]
			if !ok {
				return nil, fmt.Errorf("group %d references unknown record %q", gi, id)
			}
			fragments = append(fragments, h)
		}
		merged, err := Join(fragments)
		if err != nil {
			return nil, fmt.Errorf("merging group %d: %w", gi, err)
		}
		resolved = append(resolved, merged)
	}
	return resolved, nil
}

// pairingState captures the charge-leads pairing automaton. A charge opens a
// cycle and waits for its discharge partner; a discharge arriving while
// nothing is held becomes a discharge-only cycle on its own.
type pairingState int

const (
	pairingIdle pairingState = iota
	pairingHoldingCharge
)

// AssembleCycles pairs an ordered half-cycle list into cycles. Policy:
// charge opens a cycle. A discharge following a held charge completes it; a
// discharge with no held charge becomes a discharge-only cycle; a second
// charge arriving while one is held emits the held one as a charge-only
// cycle rather than dropping it. A charge still held at the end of input is
// emitted charge-only. Cycle numbers are a 0-based running counter.
func AssembleCycles(halfCycles []*HalfCycle) ([]*Cycle, error) {
	var (
		cycles []*Cycle
		held   *HalfCycle
		state  = pairingIdle
	)

	emit := func(charge, discharge *HalfCycle) error {
		c, err := NewCycle(len(cycles), charge, discharge)
		if err != nil {
			return err
		}
		cycles = append(cycles, c)
		return nil
	}

	for _, h := range halfCycles {
		switch h.Type() {
		case Charge:
			if state == pairingHoldingCharge {
				if err := emit(held, nil); err != nil {
					return nil, err
				}
			}
			held = h
			state = pairingHoldingCharge
		case Discharge:
			if state == pairingHoldingCharge {
				if err := emit(held, h); err != nil {
					return nil, err
				}
				held = nil
				state = pairingIdle
			} else {
				if err := emit(nil, h); err != nil {
					return nil, err
				}
			}
		}
	}
	if state == pairingHoldingCharge {
		if err := emit(held, nil); err != nil {
			return nil, err
		}
	}
	return cycles, nil
}

// BuildCycles runs the full reconstruction pipeline: grouping, fragment
// merging and pairing. A nil strategy uses TimestampGrouping. With clean
// set, physically implausible and one-legged cycles are hidden (never
// deleted, see ApplyCleanFilter).
func BuildCycles(records map[string]*HalfCycle, strategy GroupingStrategy, clean bool) ([]*Cycle, error) {
	if strategy == nil {
		strategy = TimestampGrouping{}
	}
	groups, err := strategy.Group(records)
	if err != nil {
		return nil, fmt.Errorf("grouping records: %w", err)
	}
	resolved, err := ResolveGroups(records, groups)
	if err != nil {
		return nil, err
	}
	cycles, err := AssembleCycles(resolved)
	if err != nil {
		return nil, err
	}
	if clean {
		ApplyCleanFilter(cycles)
	}
	return cycles, nil
}

// ApplyCleanFilter hides cycles whose energy efficiency exceeds 100
// (physically impossible, so a reconstruction or measurement artifact) and
// cycles missing a leg. Data is never removed, only masked.
func ApplyCleanFilter(cycles []*Cycle) {
	for _, c := range cycles {
		ee := c.EnergyEfficiency()
		if v, ok := ee.Value(); ok && v > 100 {
			c.hidden = true
		} else if c.Charge() == nil || c.Discharge() == nil {
			c.hidden = true
		}
	}
}

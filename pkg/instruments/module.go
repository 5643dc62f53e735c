package instruments

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/echemtools/cyclekit"
)

// moduleHeader carries the experiment sequence declared at the top of a
// Biologic battery-module export: per-step operation type and current rate,
// plus the acquisition start time.
type moduleHeader struct {
	start      time.Time
	operations map[int]cyclekit.HalfCycleType
	currents   map[int]float64
	european   bool
}

func parseModuleHeader(lines []string) (*moduleHeader, int, error) {
	raw := map[string][]string{}
	keywords := []string{"Ns", "ctrl1_val", "ctrl_type", "charge/discharge"}

	var dateStr, timeStr string
	dataHeaderIdx := -1
	for i, line := range lines {
		for _, kw := range keywords {
			if strings.HasPrefix(line, kw+" ") {
				raw[kw] = strings.Fields(line)[1:]
			}
		}
		if strings.Contains(line, "Acquisition started on :") {
			fields := strings.Split(line, " ")
			timeStr = fields[len(fields)-1]
			dateStr = fields[len(fields)-2]
		}
		if strings.HasPrefix(line, "mode") {
			dataHeaderIdx = i
			break
		}
	}
	if dataHeaderIdx < 0 {
		return nil, 0, fmt.Errorf("no data table found")
	}
	for _, kw := range keywords {
		if len(raw[kw]) == 0 {
			return nil, 0, fmt.Errorf("missing %q field in module header", kw)
		}
	}

	// A comma anywhere in the current rates marks a European export.
	european := strings.Contains(strings.Join(raw["ctrl1_val"], " "), ",")

	if dateStr == "" || timeStr == "" {
		return nil, 0, fmt.Errorf("no acquisition timestamp found")
	}
	start, err := parseModuleTimestamp(dateStr, timeStr, european)
	if err != nil {
		return nil, 0, err
	}

	h := &moduleHeader{
		start:      start,
		operations: map[int]cyclekit.HalfCycleType{},
		currents:   map[int]float64{},
		european:   european,
	}

	n := len(raw["Ns"])
	for _, kw := range keywords[1:] {
		if len(raw[kw]) < n {
			n = len(raw[kw])
		}
	}
	for i := 0; i < n; i++ {
		if strings.EqualFold(raw["ctrl_type"][i], "loop") {
			continue
		}
		ns, err := strconv.Atoi(raw["Ns"][i])
		if err != nil {
			return nil, 0, fmt.Errorf("malformed Ns entry %q: %w", raw["Ns"][i], err)
		}
		kind, err := cyclekit.ParseHalfCycleType(strings.ToLower(raw["charge/discharge"][i]))
		if err != nil {
			return nil, 0, fmt.Errorf("step %d: %w", ns, err)
		}
		rate, err := strconv.ParseFloat(strings.Replace(raw["ctrl1_val"][i], ",", ".", 1), 64)
		if err != nil {
			return nil, 0, fmt.Errorf("step %d current rate: %w", ns, err)
		}
		h.operations[ns] = kind
		h.currents[ns] = rate
	}
	return h, dataHeaderIdx, nil
}

// parseModuleTimestamp handles module exports whose date field order does
// not match their number format: a month above 12 means the two fields are
// swapped, regardless of the detected locale.
func parseModuleTimestamp(dateStr, timeStr string, european bool) (time.Time, error) {
	dateParts := strings.Split(dateStr, "/")
	if len(dateParts) != 3 {
		return time.Time{}, fmt.Errorf("malformed date %q", dateStr)
	}
	if european {
		dateParts[0], dateParts[1] = dateParts[1], dateParts[0]
	}
	month, err := strconv.Atoi(dateParts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q", dateStr)
	}
	if month > 12 {
		dateParts[0], dateParts[1] = dateParts[1], dateParts[0]
	}
	return parseExportTimestamp(strings.Join(dateParts, "/"), timeStr, false)
}

// moduleStep is one contiguous run of data rows sharing a step label.
type moduleStep struct {
	label     int
	halfCycle *cyclekit.HalfCycle
}

// ParseBatteryModule reads a Biologic battery-module export describing a
// multi-rate experiment and reconstructs it as a RateExperiment: data rows
// are split into half-cycles on step-label changes, half-cycles are paired
// into cycles, and cycles are split into cell-cycling steps whenever the
// programmed current rate changes. A charge left unpaired at a rate
// boundary or at the end of the file becomes a charge-only cycle.
func ParseBatteryModule(r io.Reader) (*cyclekit.RateExperiment, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	header, dataHeaderIdx, err := parseModuleHeader(lines)
	if err != nil {
		return nil, err
	}

	var (
		steps     []moduleStep
		lastLabel = -1
		rawTime   []float64
		voltage   []float64
		current   []float64
	)

	flush := func() error {
		if len(rawTime) == 0 {
			return nil
		}
		kind, ok := header.operations[lastLabel]
		if !ok {
			return fmt.Errorf("data references undeclared step %d", lastLabel)
		}
		start := rawTime[0]
		timeSeries := make([]float64, len(rawTime))
		for i, t := range rawTime {
			timeSeries[i] = t - start
		}
		h, err := cyclekit.NewHalfCycle(timeSeries, voltage, current, kind,
			header.start.Add(time.Duration(start*float64(time.Second))))
		if err != nil {
			return fmt.Errorf("step %d: %w", lastLabel, err)
		}
		steps = append(steps, moduleStep{label: lastLabel, halfCycle: h})
		rawTime, voltage, current = nil, nil, nil
		return nil
	}

	for i := dataHeaderIdx + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		sline := strings.Fields(lines[i])
		if len(sline) < 12 {
			return nil, fmt.Errorf("data row %d has %d fields", i, len(sline))
		}
		label, err := strconv.Atoi(sline[6])
		if err != nil {
			return nil, fmt.Errorf("row %d step label: %w", i, err)
		}
		if lastLabel < 0 {
			lastLabel = label
		} else if label != lastLabel {
			if err := flush(); err != nil {
				return nil, err
			}
			lastLabel = label
		}

		t, err := parseLocalizedFloat(sline[8], true)
		if err != nil {
			return nil, fmt.Errorf("row %d time: %w", i, err)
		}
		v, err := parseLocalizedFloat(sline[10], true)
		if err != nil {
			return nil, fmt.Errorf("row %d voltage: %w", i, err)
		}
		c, err := parseLocalizedFloat(sline[11], true)
		if err != nil {
			return nil, fmt.Errorf("row %d current: %w", i, err)
		}
		rawTime = append(rawTime, t)
		voltage = append(voltage, v)
		current = append(current, c/1000)
	}
	if lastLabel < 0 {
		return nil, fmt.Errorf("no data rows found")
	}
	if err := flush(); err != nil {
		return nil, err
	}

	var (
		currents      []float64
		cyclingSteps  []*cyclekit.CellCycling
		cycles        []*cyclekit.Cycle
		pendingCharge *cyclekit.HalfCycle
		currentRate   float64
		rateKnown     bool
	)

	emitCycle := func(charge, discharge *cyclekit.HalfCycle) error {
		c, err := cyclekit.NewCycle(len(cycles), charge, discharge)
		if err != nil {
			return err
		}
		cycles = append(cycles, c)
		return nil
	}
	closeStep := func() error {
		if pendingCharge != nil {
			if err := emitCycle(pendingCharge, nil); err != nil {
				return err
			}
			pendingCharge = nil
		}
		cyclingSteps = append(cyclingSteps, cyclekit.NewCellCycling(cycles))
		currents = append(currents, currentRate)
		cycles = nil
		return nil
	}

	for _, step := range steps {
		rate := header.currents[step.label]
		if !rateKnown {
			currentRate = rate
			rateKnown = true
		} else if rate != currentRate {
			if err := closeStep(); err != nil {
				return nil, err
			}
			currentRate = rate
		}

		if step.halfCycle.Type() == cyclekit.Charge {
			if pendingCharge != nil {
				if err := emitCycle(pendingCharge, nil); err != nil {
					return nil, err
				}
			}
			pendingCharge = step.halfCycle
		} else {
			if err := emitCycle(pendingCharge, step.halfCycle); err != nil {
				return nil, err
			}
			pendingCharge = nil
		}
	}
	if err := closeStep(); err != nil {
		return nil, err
	}

	return cyclekit.NewRateExperiment(currents, cyclingSteps)
}

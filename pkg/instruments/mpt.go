package instruments

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/echemtools/cyclekit"
)

// mptLoop is one "Loop N from point number X to Y" row range declared in a
// Biologic .mpt header.
type mptLoop struct {
	first int
	last  int
}

// ParseMPT reads a Biologic EC-Lab .mpt export. One file can hold several
// charge/discharge cycles, delimited by the loop declarations in the header;
// the result maps a "{type}_{cycle}_{filename}" key to each extracted
// half-cycle. Files without loop declarations are treated as one single
// loop covering every row. Currents are converted from mA to A, each
// half-cycle's time base is zeroed and its timestamp is the acquisition
// start shifted by the first raw time sample.
func ParseMPT(r io.Reader, filename string) (map[string]*cyclekit.HalfCycle, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	var (
		dateStr, timeStr string
		loops            []mptLoop
		headerIdx        = -1
	)

	for i, line := range lines {
		switch {
		case strings.Contains(line, "Acquisition started on :"):
			fields := strings.Split(line, " ")
			if len(fields) >= 2 {
				timeStr = fields[len(fields)-1]
				dateStr = fields[len(fields)-2]
			}
		case strings.Contains(line, "Loop ") && strings.Contains(line, "from point number"):
			fields := strings.Split(line, " ")
			first, err1 := strconv.Atoi(fields[len(fields)-3])
			last, err2 := strconv.Atoi(fields[len(fields)-1])
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("malformed loop declaration %q", line)
			}
			loops = append(loops, mptLoop{first: first, last: last})
		case strings.HasPrefix(line, "mode\t"):
			headerIdx = i
		}
		if headerIdx >= 0 {
			break
		}
	}

	if headerIdx < 0 {
		return nil, fmt.Errorf("no data header found in %s", filename)
	}
	dataIdx := headerIdx + 1
	if dataIdx >= len(lines) {
		return nil, fmt.Errorf("data section of %s is empty", filename)
	}

	firstRow := strings.Fields(lines[dataIdx])
	if len(firstRow) < 5 {
		return nil, fmt.Errorf("malformed data row %q", lines[dataIdx])
	}
	european := strings.Contains(firstRow[4], ",")

	if dateStr == "" || timeStr == "" {
		return nil, fmt.Errorf("no acquisition timestamp found in %s", filename)
	}
	fileStart, err := parseExportTimestamp(dateStr, timeStr, european)
	if err != nil {
		return nil, err
	}

	columns := strings.Split(lines[headerIdx], "\t")
	timeCol, voltageCol, currentCol, oxredCol := -1, -1, -1, -1
	for i, label := range columns {
		switch strings.TrimSpace(label) {
		case "time/s":
			timeCol = i
		case "Ewe/V":
			voltageCol = i
		case "I/mA":
			currentCol = i
		case "ox/red":
			oxredCol = i
		}
	}
	if timeCol < 0 || voltageCol < 0 || currentCol < 0 || oxredCol < 0 {
		return nil, fmt.Errorf("missing required columns in %s", filename)
	}

	type row struct {
		time    float64
		voltage float64
		current float64
		oxred   int
	}
	rows := make([]row, 0, len(lines)-dataIdx)
	for i := dataIdx; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		fields := strings.Split(lines[i], "\t")
		if len(fields) <= timeCol || len(fields) <= voltageCol || len(fields) <= currentCol || len(fields) <= oxredCol {
			return nil, fmt.Errorf("data row %d of %s has %d columns", i, filename, len(fields))
		}
		t, err := parseLocalizedFloat(strings.TrimSpace(fields[timeCol]), european)
		if err != nil {
			return nil, fmt.Errorf("row %d time: %w", i, err)
		}
		v, err := parseLocalizedFloat(strings.TrimSpace(fields[voltageCol]), european)
		if err != nil {
			return nil, fmt.Errorf("row %d voltage: %w", i, err)
		}
		c, err := parseLocalizedFloat(strings.TrimSpace(fields[currentCol]), european)
		if err != nil {
			return nil, fmt.Errorf("row %d current: %w", i, err)
		}
		oxred, err := parseLocalizedFloat(strings.TrimSpace(fields[oxredCol]), european)
		if err != nil {
			return nil, fmt.Errorf("row %d ox/red: %w", i, err)
		}
		rows = append(rows, row{time: t, voltage: v, current: c / 1000, oxred: int(oxred)})
	}

	if len(loops) == 0 {
		loops = []mptLoop{{first: 0, last: len(rows) - 1}}
	}

	records := make(map[string]*cyclekit.HalfCycle)
	for cycleNum, loop := range loops {
		if loop.first < 0 || loop.last >= len(rows) || loop.first > loop.last {
			return nil, fmt.Errorf("loop %d range [%d, %d] out of bounds for %d rows", cycleNum, loop.first, loop.last, len(rows))
		}
		sub := rows[loop.first : loop.last+1]

		for _, leg := range []struct {
			oxred int
			kind  cyclekit.HalfCycleType
			label string
		}{
			{1, cyclekit.Charge, "charge"},
			{0, cyclekit.Discharge, "discharge"},
		} {
			var rawTime, voltage, current []float64
			for _, r := range sub {
				if r.oxred != leg.oxred {
					continue
				}
				rawTime = append(rawTime, r.time)
				voltage = append(voltage, r.voltage)
				current = append(current, r.current)
			}
			if len(rawTime) < 2 {
				continue
			}

			start := rawTime[0]
			timeSeries := make([]float64, len(rawTime))
			for i, t := range rawTime {
				timeSeries[i] = t - start
			}
			timestamp := fileStart.Add(time.Duration(start * float64(time.Second)))

			h, err := cyclekit.NewHalfCycle(timeSeries, voltage, current, leg.kind, timestamp)
			if err != nil {
				return nil, fmt.Errorf("loop %d %s of %s: %w", cycleNum, leg.label, filename, err)
			}
			records[fmt.Sprintf("%s_%d_%s", leg.label, cycleNum, filename)] = h
		}
	}
	return records, nil
}

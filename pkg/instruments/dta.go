// Package instruments parses cell-cycling exports from laboratory
// potentiostats into half-cycle records, and bundles the parsers behind a
// FileManager that feeds the reconstruction pipeline.
package instruments

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/echemtools/cyclekit"
)

// maxLineSize bounds a single export line; Gamry and Biologic rows are
// short, the margin covers long header comments.
const maxLineSize = 1024 * 1024

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return lines, nil
}

// parseLocalizedFloat parses a float that may use a decimal comma.
func parseLocalizedFloat(s string, european bool) (float64, error) {
	if european {
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

// parseExportTimestamp builds a timestamp from the date and clock strings of
// an export header. The date field order follows the number format of the
// file: US files are month/day/year, European ones day/month/year.
func parseExportTimestamp(dateStr, timeStr string, european bool) (time.Time, error) {
	dateParts := strings.Split(dateStr, "/")
	if len(dateParts) != 3 {
		return time.Time{}, fmt.Errorf("malformed date %q", dateStr)
	}
	var month, day, year string
	if european {
		day, month, year = dateParts[0], dateParts[1], dateParts[2]
	} else {
		month, day, year = dateParts[0], dateParts[1], dateParts[2]
	}

	clockParts := strings.Split(timeStr, ":")
	if len(clockParts) != 3 {
		return time.Time{}, fmt.Errorf("malformed time %q", timeStr)
	}
	// Some exports carry fractional seconds; the decimal part is dropped.
	seconds := strings.SplitN(clockParts[2], ".", 2)[0]

	fields := []string{year, month, day, clockParts[0], clockParts[1], seconds}
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed timestamp field %q: %w", f, err)
		}
		nums[i] = n
	}
	return time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC), nil
}

// ParseDTA reads a Gamry .DTA export and returns the half-cycle it contains.
// The half-cycle type comes from the sign of the programmed step current,
// falling back to the sign of the first measured sample. Rows recorded at
// t <= 0 are conditioning samples and are dropped; when nothing remains the
// record is skipped and (nil, nil) is returned.
func ParseDTA(r io.Reader) (*cyclekit.HalfCycle, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	var (
		dateStr, timeStr string
		kindKnown        bool
		kind             cyclekit.HalfCycleType
		curveIdx         = -1
		npoints          int
	)

	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "DATE"):
			if fields := strings.Fields(line); len(fields) >= 3 {
				dateStr = fields[2]
			}
		case strings.HasPrefix(line, "TIME"):
			if fields := strings.Fields(line); len(fields) >= 3 {
				timeStr = fields[2]
			}
		case strings.Contains(line, "Step 1 Current (A)"):
			if fields := strings.Fields(line); len(fields) >= 3 {
				if v, err := strconv.ParseFloat(strings.Replace(fields[2], ",", ".", 1), 64); err == nil {
					if v > 0 {
						kind, kindKnown = cyclekit.Charge, true
					} else if v < 0 {
						kind, kindKnown = cyclekit.Discharge, true
					}
				}
			}
		case strings.HasPrefix(line, "CURVE"):
			fields := strings.Fields(line)
			n, err := strconv.Atoi(fields[len(fields)-1])
			if err != nil {
				return nil, fmt.Errorf("malformed CURVE line %q: %w", line, err)
			}
			curveIdx = i
			npoints = n
		}
		if curveIdx >= 0 {
			break
		}
	}

	if curveIdx < 0 {
		return nil, fmt.Errorf("no CURVE section found")
	}
	headerIdx := curveIdx + 2
	dataIdx := headerIdx + 1
	if dataIdx >= len(lines) {
		return nil, fmt.Errorf("CURVE section truncated")
	}

	// The number format is detected from the first data row: a comma in the
	// voltage field marks a European export, which also flips the date order.
	firstRow := strings.Fields(lines[dataIdx])
	if len(firstRow) < 4 {
		return nil, fmt.Errorf("malformed data row %q", lines[dataIdx])
	}
	european := strings.Contains(firstRow[3], ",")

	if dateStr == "" || timeStr == "" {
		return nil, fmt.Errorf("no DATE/TIME header found")
	}
	timestamp, err := parseExportTimestamp(dateStr, timeStr, european)
	if err != nil {
		return nil, err
	}

	// The row after CURVE holds column names, the next one the units used
	// here to locate the time, voltage and current columns.
	unitCols := strings.Split(lines[headerIdx], "\t")
	timeCol, voltageCol, currentCol := -1, -1, -1
	for i, label := range unitCols {
		switch strings.TrimSpace(label) {
		case "s":
			if timeCol < 0 {
				timeCol = i
			}
		case "V vs. Ref.", "V":
			if voltageCol < 0 {
				voltageCol = i
			}
		case "A":
			if currentCol < 0 {
				currentCol = i
			}
		}
	}
	if timeCol < 0 || voltageCol < 0 || currentCol < 0 {
		return nil, fmt.Errorf("missing time/voltage/current columns in %q", lines[headerIdx])
	}

	var rawTime, voltage, current []float64
	for i := dataIdx; i < dataIdx+npoints && i < len(lines); i++ {
		fields := strings.Split(lines[i], "\t")
		if len(fields) <= timeCol || len(fields) <= voltageCol || len(fields) <= currentCol {
			return nil, fmt.Errorf("data row %d has %d columns", i, len(fields))
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
		if t <= 0 {
			continue
		}
		rawTime = append(rawTime, t)
		voltage = append(voltage, v)
		current = append(current, c)
	}

	if len(rawTime) == 0 {
		// All samples were conditioning rows; the record carries no data.
		return nil, nil
	}

	if !kindKnown {
		if current[0] > 0 {
			kind = cyclekit.Charge
		} else if current[0] < 0 {
			kind = cyclekit.Discharge
		} else {
			return nil, fmt.Errorf("cannot determine half-cycle type: no step current and zero initial current")
		}
	}

	start := rawTime[0]
	timeSeries := make([]float64, len(rawTime))
	for i, t := range rawTime {
		timeSeries[i] = t - start
	}

	return cyclekit.NewHalfCycle(timeSeries, voltage, current, kind, timestamp)
}

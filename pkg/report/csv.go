// Package report exports analysis results to CSV for spreadsheets and
// plotting tools.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/echemtools/cyclekit"
)

// WriteCycleSummary writes one row per visible cycle: capacities, energies
// and the three efficiencies. Missing values are left empty.
func WriteCycleSummary(w io.Writer, cc *cyclekit.CellCycling) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"cycle",
		"timestamp",
		"charge_capacity_mah",
		"discharge_capacity_mah",
		"charge_energy_mwh",
		"discharge_energy_mwh",
		"coulomb_efficiency",
		"energy_efficiency",
		"voltage_efficiency",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, c := range cc.Cycles() {
		row := []string{
			strconv.Itoa(c.Number()),
			c.Timestamp().Format("2006-01-02 15:04:05"),
			fmtHalfCycle(c.Charge(), (*cyclekit.HalfCycle).Capacity),
			fmtHalfCycle(c.Discharge(), (*cyclekit.HalfCycle).Capacity),
			fmtHalfCycle(c.Charge(), (*cyclekit.HalfCycle).TotalEnergy),
			fmtHalfCycle(c.Discharge(), (*cyclekit.HalfCycle).TotalEnergy),
			fmtEfficiency(c.CoulombEfficiency()),
			fmtEfficiency(c.EnergyEfficiency()),
			fmtEfficiency(c.VoltageEfficiency()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// WriteRetention writes the retention series of the visible cycles, one row
// per cycle.
func WriteRetention(w io.Writer, cc *cyclekit.CellCycling) error {
	retention, err := cc.CapacityRetention()
	if err != nil {
		return fmt.Errorf("computing retention: %w", err)
	}
	numbers := cc.Numbers()

	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"cycle", "capacity_retention"}); err != nil {
		return err
	}
	for i, r := range retention {
		row := []string{strconv.Itoa(numbers[i]), fmtFloat(r)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// WriteRateExperiment writes the flattened series of a multi-rate
// experiment: one row per visible cycle across all steps, tagged with the
// step's nominal current.
func WriteRateExperiment(w io.Writer, exp *cyclekit.RateExperiment) error {
	retention, err := exp.CapacityRetention()
	if err != nil {
		return fmt.Errorf("computing retention: %w", err)
	}
	ce := exp.CoulombEfficiencies()
	ee := exp.EnergyEfficiencies()
	ve := exp.VoltageEfficiencies()
	capacity := exp.Capacity()
	energy := exp.TotalEnergy()
	power := exp.AveragePower()
	currents := exp.Currents()

	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"step",
		"current_a",
		"cycle",
		"capacity_mah",
		"total_energy_mwh",
		"average_power_w",
		"capacity_retention",
		"coulomb_efficiency",
		"energy_efficiency",
		"voltage_efficiency",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := 0
	for step, cc := range exp.Steps() {
		for _, number := range cc.Numbers() {
			record := []string{
				strconv.Itoa(step),
				fmtFloat(currents[step]),
				strconv.Itoa(number),
				fmtFloat(capacity[row]),
				fmtFloat(energy[row]),
				fmtFloat(power[row]),
				fmtFloat(retention[row]),
				fmtFloat(ce[row]),
				fmtFloat(ee[row]),
				fmtFloat(ve[row]),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
			row++
		}
	}
	return cw.Error()
}

// SaveCycleSummary writes the cycle summary to a file.
func SaveCycleSummary(path string, cc *cyclekit.CellCycling) error {
	return saveTo(path, func(w io.Writer) error { return WriteCycleSummary(w, cc) })
}

// SaveRetention writes the retention series to a file.
func SaveRetention(path string, cc *cyclekit.CellCycling) error {
	return saveTo(path, func(w io.Writer) error { return WriteRetention(w, cc) })
}

// SaveRateExperiment writes the flattened experiment series to a file.
func SaveRateExperiment(path string, exp *cyclekit.RateExperiment) error {
	return saveTo(path, func(w io.Writer) error { return WriteRateExperiment(w, exp) })
}

func saveTo(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}

func fmtHalfCycle(h *cyclekit.HalfCycle, get func(*cyclekit.HalfCycle) float64) string {
	if h == nil {
		return ""
	}
	return fmtFloat(get(h))
}

func fmtEfficiency(e cyclekit.Efficiency) string {
	v, ok := e.Value()
	if !ok {
		return ""
	}
	return fmtFloat(v)
}

func fmtFloat(x float64) string {
	if math.IsNaN(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'f', 6, 64)
}

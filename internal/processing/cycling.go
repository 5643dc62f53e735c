// Package processing turns raw request payloads into analysis summaries by
// driving the reconstruction pipeline and the cycling aggregates.
package processing

import (
	"fmt"

	"github.com/echemtools/cyclekit"
	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/models"
)

// Analyze reconstructs the cycles of one experiment and computes its derived
// series. It is safe for concurrent use: all state is local to the call.
func Analyze(req models.CyclingRequest, cfg *config.Config) (models.AnalysisSummary, error) {
	if len(req.Records) == 0 {
		return models.AnalysisSummary{}, fmt.Errorf("experiment %s has no records", req.ExperimentID)
	}

	records := make(map[string]*cyclekit.HalfCycle, len(req.Records))
	for i, rec := range req.Records {
		if rec.ID == "" {
			return models.AnalysisSummary{}, fmt.Errorf("record %d has no id", i)
		}
		kind, err := cyclekit.ParseHalfCycleType(rec.Type)
		if err != nil {
			return models.AnalysisSummary{}, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		h, err := cyclekit.NewHalfCycle(rec.Time, rec.Voltage, rec.Current, kind, rec.Timestamp)
		if err != nil {
			return models.AnalysisSummary{}, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		records[rec.ID] = h
	}

	clean := req.Clean || cfg.Clean

	var strategy cyclekit.GroupingStrategy
	if req.CustomOrder != nil {
		strategy = cyclekit.ExplicitGrouping{Groups: req.CustomOrder}
	}
	cycles, err := cyclekit.BuildCycles(records, strategy, clean)
	if err != nil {
		return models.AnalysisSummary{}, fmt.Errorf("experiment %s: %w", req.ExperimentID, err)
	}

	cc := cyclekit.NewCellCycling(cycles)
	reference := req.Reference
	if reference == 0 && cfg.Reference != 0 {
		reference = cfg.Reference
	}
	if reference != 0 {
		if err := cc.SetReference(reference); err != nil {
			return models.AnalysisSummary{}, fmt.Errorf("experiment %s: %w", req.ExperimentID, err)
		}
	}

	summary := models.AnalysisSummary{
		ExperimentID:        req.ExperimentID,
		CycleCount:          cc.Len(),
		HiddenCount:         len(cycles) - cc.Len(),
		Numbers:             cc.Numbers(),
		CoulombEfficiencies: cc.CoulombEfficiencies(),
		EnergyEfficiencies:  cc.EnergyEfficiencies(),
		VoltageEfficiencies: cc.VoltageEfficiencies(),
	}

	for _, c := range cc.Cycles() {
		summary.ChargeCapacities = append(summary.ChargeCapacities, capacityOf(c.Charge()))
		summary.DischargeCapacities = append(summary.DischargeCapacities, capacityOf(c.Discharge()))
	}

	// Retention needs a reference with a discharge leg; a charge-only data
	// set still produces a valid summary without it.
	if retention, err := cc.CapacityRetention(); err == nil {
		summary.CapacityRetention = retention
	}

	if cfg.FitRetention && len(summary.CapacityRetention) >= 2 {
		if err := cc.FitRetention(0, cc.Len()); err == nil {
			summary.Fitted = true
			summary.FitSlope, _ = cc.FitSlope()
			summary.FitIntercept, _ = cc.FitIntercept()
			summary.FitCorrelation, _ = cc.FitCorrelation()
			summary.CapacityFade, _ = cc.CapacityFade()
		}
	}

	return summary, nil
}

func capacityOf(h *cyclekit.HalfCycle) float64 {
	if h == nil {
		return 0
	}
	return h.Capacity()
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/echemtools/cyclekit/pkg/config"
	"github.com/echemtools/cyclekit/pkg/instruments"
	"github.com/echemtools/cyclekit/pkg/report"
)

var (
	version = "<not set>"
	log     = logrus.New()
)

type argSpec struct {
	Path      string `arg:"positional,required" help:"File, folder or battery module export to analyze"`
	Ext       string `arg:"--ext" default:".DTA" help:"Extension to load when path is a folder"`
	Module    bool   `arg:"--module" help:"Treat path as a battery module export"`
	Clean     bool   `arg:"--clean" help:"Hide implausible and one-legged cycles"`
	Reference int    `arg:"--reference" help:"Visible cycle index used as retention reference"`
	Fit       bool   `arg:"--fit" help:"Fit a line through the capacity retention"`
	Output    string `arg:"-o,--output" help:"Directory for CSV reports"`
	Config    string `arg:"--config" help:"YAML configuration file"`
	LogLevel  string `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (argSpec) Version() string {
	return version
}

func procArgs() argSpec {
	args := argSpec{}
	arg.MustParse(&args)
	return args
}

func main() {
	if err := runMain(); err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()

	level, err := logrus.ParseLevel(args.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	cfg := config.DefaultConfig()
	if args.Config != "" {
		loaded, _, err := config.Load(args.Config)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if args.Clean {
		cfg.Clean = true
	}
	if args.Reference != 0 {
		cfg.Reference = args.Reference
	}
	if args.Fit {
		cfg.FitRetention = true
	}

	if args.Module {
		return runModule(args)
	}
	return runCellCycling(args, cfg)
}

func runModule(args argSpec) error {
	exp, err := instruments.LoadBatteryModule(args.Path)
	if err != nil {
		return err
	}

	fmt.Println(exp)

	if args.Output != "" {
		path := filepath.Join(args.Output, "rate_experiment.csv")
		if err := report.SaveRateExperiment(path, exp); err != nil {
			return err
		}
		log.Infof("Rate experiment report written to %s", path)
	}
	return nil
}

func runCellCycling(args argSpec, cfg *config.Config) error {
	manager := instruments.NewFileManager(log)

	info, err := os.Stat(args.Path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		err = manager.LoadFolder(args.Path, args.Ext)
	} else {
		err = manager.LoadFiles([]string{args.Path})
	}
	if err != nil {
		return err
	}

	cc, err := manager.GetCellCycling(nil, cfg.Clean)
	if err != nil {
		return err
	}
	if cfg.Reference != 0 {
		if err := cc.SetReference(cfg.Reference); err != nil {
			return err
		}
	}

	log.Infof("Loaded %d %s half-cycle records into %d cycles",
		len(manager.Records()), strings.ToLower(manager.Instrument().String()), cc.Len())

	if cfg.FitRetention && cc.Len() >= 2 {
		if err := cc.FitRetention(0, cc.Len()); err != nil {
			log.Warnf("Retention fit failed: %v", err)
		} else {
			slope, _ := cc.FitSlope()
			intercept, _ := cc.FitIntercept()
			corr, _ := cc.FitCorrelation()
			fade, _ := cc.CapacityFade()
			log.Infof("Retention fit: slope=%.6f intercept=%.6f r=%.4f fade=%.6f %%/cycle",
				slope, intercept, corr, fade)
		}
	}

	if args.Output != "" {
		summaryPath := filepath.Join(args.Output, "cycle_summary.csv")
		if err := report.SaveCycleSummary(summaryPath, cc); err != nil {
			return err
		}
		retentionPath := filepath.Join(args.Output, "capacity_retention.csv")
		if err := report.SaveRetention(retentionPath, cc); err != nil {
			return err
		}
		log.Infof("Reports written to %s", args.Output)
	}

	return nil
}

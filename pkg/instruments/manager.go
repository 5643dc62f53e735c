package instruments

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/echemtools/cyclekit"
)

// Instrument identifies the potentiostat family a set of files comes from.
type Instrument int

const (
	InstrumentUnknown Instrument = iota
	InstrumentGamry
	InstrumentBiologic
)

func (i Instrument) String() string {
	switch i {
	case InstrumentGamry:
		return "GAMRY"
	case InstrumentBiologic:
		return "BIOLOGIC"
	default:
		return "UNKNOWN"
	}
}

// instrumentForFile maps a file extension onto its instrument family.
func instrumentForFile(path string) Instrument {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dta":
		return InstrumentGamry
	case ".mpt":
		return InstrumentBiologic
	default:
		return InstrumentUnknown
	}
}

// FileManager loads potentiostat exports from disk and turns them into the
// half-cycle record set consumed by the reconstruction pipeline. One manager
// handles files of a single instrument family; mixing families is an error
// since their record keys and cycle semantics differ.
type FileManager struct {
	instrument Instrument
	records    map[string]*cyclekit.HalfCycle
	log        *logrus.Logger
}

// NewFileManager returns an empty manager. A nil logger falls back to the
// logrus standard logger.
func NewFileManager(log *logrus.Logger) *FileManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileManager{
		records: make(map[string]*cyclekit.HalfCycle),
		log:     log,
	}
}

// Instrument reports the family of the loaded files.
func (m *FileManager) Instrument() Instrument { return m.instrument }

// Records exposes the loaded half-cycles keyed by record identifier.
func (m *FileManager) Records() map[string]*cyclekit.HalfCycle { return m.records }

// LoadFiles parses the given export files into the record set.
func (m *FileManager) LoadFiles(paths []string) error {
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			return err
		}
	}
	return nil
}

// LoadFolder parses every export of one instrument family found directly in
// the given directory. The extension selects the family: ".DTA" for Gamry,
// ".mpt" for Biologic.
func (m *FileManager) LoadFolder(dir, extension string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading folder %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), extension) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("no %s files found in %s", extension, dir)
	}
	return m.LoadFiles(paths)
}

func (m *FileManager) loadFile(path string) error {
	instrument := instrumentForFile(path)
	if instrument == InstrumentUnknown {
		return fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if m.instrument == InstrumentUnknown {
		m.instrument = instrument
	} else if m.instrument != instrument {
		return fmt.Errorf("cannot mix %s and %s files in one manager", m.instrument, instrument)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	m.log.WithField("file", name).Debug("parsing export")

	switch instrument {
	case InstrumentGamry:
		h, err := ParseDTA(f)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		if h == nil {
			m.log.WithField("file", name).Warn("export contains no usable samples, skipped")
			return nil
		}
		m.records[name] = h
	case InstrumentBiologic:
		records, err := ParseMPT(f, name)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		for key, h := range records {
			m.records[key] = h
		}
	}
	return nil
}

// SuggestOrdering runs the timestamp-adjacency heuristic over the loaded
// records and returns the proposed fragment groups.
func (m *FileManager) SuggestOrdering() ([][]string, error) {
	return cyclekit.TimestampGrouping{}.Group(m.records)
}

// GetCycles reconstructs the cycle sequence from the loaded records. A
// non-nil customOrder bypasses the timestamp heuristic with caller-declared
// fragment groups. With clean set, implausible and one-legged cycles are
// hidden.
func (m *FileManager) GetCycles(customOrder [][]string, clean bool) ([]*cyclekit.Cycle, error) {
	var strategy cyclekit.GroupingStrategy
	if customOrder != nil {
		strategy = cyclekit.ExplicitGrouping{Groups: customOrder}
	}
	return cyclekit.BuildCycles(m.records, strategy, clean)
}

// GetCellCycling reconstructs the cycle sequence and wraps it in a
// CellCycling aggregate.
func (m *FileManager) GetCellCycling(customOrder [][]string, clean bool) (*cyclekit.CellCycling, error) {
	cycles, err := m.GetCycles(customOrder, clean)
	if err != nil {
		return nil, err
	}
	return cyclekit.NewCellCycling(cycles), nil
}

// LoadBatteryModule parses a Biologic battery-module export into a
// multi-rate experiment. This format carries its own experiment structure,
// so it bypasses the record set and the ordering heuristic.
func LoadBatteryModule(path string) (*cyclekit.RateExperiment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	exp, err := ParseBatteryModule(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return exp, nil
}

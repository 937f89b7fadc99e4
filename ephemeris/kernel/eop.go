package kernel

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

type eopEntry struct {
	JD   float64 `json:"jd"`
	DUT1 float64 `json:"dut1_sec"`
}

// EOPTable holds Earth-orientation corrections (UT1-UTC) over a validity
// window. Epochs outside the window fall back to the simpler rotation
// model; the compute core records that in provenance.
type EOPTable struct {
	window  Window
	entries []eopEntry
}

type eopFile struct {
	Window  Window     `json:"window"`
	Entries []eopEntry `json:"entries"`
}

// LoadEOPTable reads a yaml Earth-orientation file.
func LoadEOPTable(path string) (*EOPTable, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read eop table %s", path)
	}
	var f eopFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "could not parse eop table %s", path)
	}
	if len(f.Entries) == 0 {
		return nil, errors.Errorf("eop table %s is empty", path)
	}
	sort.Slice(f.Entries, func(i, j int) bool { return f.Entries[i].JD < f.Entries[j].JD })
	if f.Window.StartJD == 0 {
		f.Window.StartJD = f.Entries[0].JD
	}
	if f.Window.EndJD == 0 {
		f.Window.EndJD = f.Entries[len(f.Entries)-1].JD
	}
	return &EOPTable{window: f.Window, entries: f.Entries}, nil
}

// Window returns the table's validity interval.
func (e *EOPTable) Window() Window { return e.window }

// DUT1 returns the interpolated UT1-UTC correction at jd and whether the
// table covers that epoch.
func (e *EOPTable) DUT1(jd float64) (float64, bool) {
	if !e.window.Contains(jd) {
		return 0, false
	}
	i := sort.Search(len(e.entries), func(i int) bool { return e.entries[i].JD >= jd })
	if i == 0 {
		return e.entries[0].DUT1, true
	}
	if i >= len(e.entries) {
		return e.entries[len(e.entries)-1].DUT1, true
	}
	lo, hi := e.entries[i-1], e.entries[i]
	if hi.JD == lo.JD {
		return lo.DUT1, true
	}
	frac := (jd - lo.JD) / (hi.JD - lo.JD)
	return lo.DUT1 + frac*(hi.DUT1-lo.DUT1), true
}

package chrono

import (
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// Patch overrides the IANA offset for a zone over a civil date range.
// Patches cover documented gaps between the tz database and historical
// practice, such as US localities before the Uniform Time Act of 1966
// took effect.
type Patch struct {
	ID        string `json:"id"`
	Zone      string `json:"zone"`
	FromLocal string `json:"from_local"`
	ToLocal   string `json:"to_local"`
	OffsetSec int    `json:"offset_sec"`
	Note      string `json:"note,omitempty"`

	from, to time.Time
}

const patchLayout = "2006-01-02T15:04:05"

// LoadPatches reads a yaml patch table.
func LoadPatches(path string) ([]Patch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read time patch table")
	}
	return ParsePatches(raw)
}

// ParsePatches decodes and validates yaml patches.
func ParsePatches(raw []byte) ([]Patch, error) {
	var patches []Patch
	if err := yaml.Unmarshal(raw, &patches); err != nil {
		return nil, errors.Wrap(err, "could not parse time patch table")
	}
	for i := range patches {
		p := &patches[i]
		if p.ID == "" || p.Zone == "" {
			return nil, errors.Errorf("patch %d: id and zone are required", i)
		}
		from, err := time.Parse(patchLayout, p.FromLocal)
		if err != nil {
			return nil, errors.Wrapf(err, "patch %s: bad from_local", p.ID)
		}
		to, err := time.Parse(patchLayout, p.ToLocal)
		if err != nil {
			return nil, errors.Wrapf(err, "patch %s: bad to_local", p.ID)
		}
		if !from.Before(to) {
			return nil, errors.Errorf("patch %s: empty range", p.ID)
		}
		p.from, p.to = from, to
	}
	return patches, nil
}

// match returns the first patch covering the zone and civil time.
func matchPatch(patches []Patch, zone string, wall wallClock) *Patch {
	// The range comparison is on civil time, so build the wall clock in
	// UTC to mirror how the bounds were parsed.
	w := wall.in(time.UTC)
	for i := range patches {
		p := &patches[i]
		if p.Zone != zone {
			continue
		}
		if !w.Before(p.from) && w.Before(p.to) {
			return p
		}
	}
	return nil
}

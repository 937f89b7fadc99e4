// Package ayanamsha resolves sidereal zodiac offsets. The registry is
// built from a declarative yaml file so new ayanāṃśas require no code
// change; entries are either fixed (reference epoch + linear precession
// rate) or one of an enumerated set of closed-form formulas.
package ayanamsha

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/siderealabs/ephemerisd/faults"
)

var log = logrus.WithField("prefix", "ayanamsha")

// Entry kinds.
const (
	KindFixed   = "fixed"
	KindFormula = "formula"
)

// Entry is one declarative registry row.
type Entry struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	// Fixed entries.
	ReferenceEpochJD  float64 `json:"reference_epoch_jd,omitempty"`
	OffsetAtEpochDeg  float64 `json:"offset_at_epoch_deg,omitempty"`
	RateArcsecPerYear float64 `json:"rate_arcsec_per_year,omitempty"`

	// Formula entries name one of the known closed forms.
	Formula string `json:"formula,omitempty"`
}

// Registry resolves ayanāṃśa ids to offsets at an epoch. Lookup is
// case-insensitive.
type Registry struct {
	entries map[string]Entry
}

// LoadRegistry reads the declarative registry file.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read ayanamsha registry %s", path)
	}
	var rows []Entry
	if err := yaml.Unmarshal(raw, &rows); err != nil {
		return nil, errors.Wrapf(err, "could not parse ayanamsha registry %s", path)
	}
	r := &Registry{entries: make(map[string]Entry, len(rows))}
	for _, e := range rows {
		id := strings.ToLower(strings.TrimSpace(e.ID))
		if id == "" {
			return nil, errors.Errorf("ayanamsha registry %s has an entry with no id", path)
		}
		e.ID = id
		switch e.Kind {
		case KindFixed:
			if e.ReferenceEpochJD == 0 {
				return nil, errors.Errorf("fixed ayanamsha %q has no reference epoch", id)
			}
		case KindFormula:
			if _, ok := formulas[e.Formula]; !ok {
				return nil, errors.Errorf("ayanamsha %q names unknown formula %q", id, e.Formula)
			}
		default:
			return nil, errors.Errorf("ayanamsha %q has unknown kind %q", id, e.Kind)
		}
		r.entries[id] = e
	}
	log.WithField("entries", len(r.entries)).Info("Ayanamsha registry loaded")
	return r, nil
}

// Validate reports whether id resolves, without computing anything.
func (r *Registry) Validate(id string) error {
	if _, ok := r.entries[strings.ToLower(id)]; !ok {
		return faults.Newf(faults.CodeAyanamshaUnsupported, "unknown ayanamsha %q", id)
	}
	return nil
}

// Resolve returns the ayanāṃśa in degrees at the given TDB Julian date.
func (r *Registry) Resolve(id string, jd float64) (float64, error) {
	e, ok := r.entries[strings.ToLower(id)]
	if !ok {
		return 0, faults.Newf(faults.CodeAyanamshaUnsupported, "unknown ayanamsha %q", id)
	}
	switch e.Kind {
	case KindFixed:
		years := (jd - e.ReferenceEpochJD) / 365.25
		return e.OffsetAtEpochDeg + e.RateArcsecPerYear/3600*years, nil
	case KindFormula:
		return formulas[e.Formula](jd), nil
	}
	return 0, errors.Errorf("unreachable ayanamsha kind %q", e.Kind)
}

// List returns all registry entries sorted by id.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

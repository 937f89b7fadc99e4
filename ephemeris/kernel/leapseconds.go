package kernel

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// J2000JD is the Julian date of the J2000.0 reference epoch (TT).
const J2000JD = 2451545.0

const secondsPerDay = 86400.0

// ttMinusTAI is the fixed TT-TAI offset in seconds.
const ttMinusTAI = 32.184

type leapEntry struct {
	// EffectiveJD is the UTC Julian date at which the step applies.
	EffectiveJD float64 `json:"jd"`
	// TAIMinusUTC is the cumulative TAI-UTC offset in seconds from that
	// date onward.
	TAIMinusUTC float64 `json:"tai_utc"`
}

// LeapTable converts UTC instants to the dynamical time scales using the
// bundle's leap-second history.
type LeapTable struct {
	entries []leapEntry
}

// LoadLeapTable reads a yaml leap-second file: a list of {jd, tai_utc}
// entries.
func LoadLeapTable(path string) (*LeapTable, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read leap-second table %s", path)
	}
	var entries []leapEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrapf(err, "could not parse leap-second table %s", path)
	}
	if len(entries) == 0 {
		return nil, errors.Errorf("leap-second table %s is empty", path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].EffectiveJD < entries[j].EffectiveJD })
	return &LeapTable{entries: entries}, nil
}

// UTCJD converts a UTC instant to a UTC Julian date.
func UTCJD(t time.Time) float64 {
	// Unix epoch 1970-01-01T00:00:00Z is JD 2440587.5.
	return 2440587.5 + float64(t.UnixNano())/1e9/secondsPerDay
}

// TAIMinusUTC returns the cumulative leap-second offset at t. Instants
// before the first entry use a linear pre-1972 approximation anchored on
// the first entry.
func (lt *LeapTable) TAIMinusUTC(t time.Time) float64 {
	jd := UTCJD(t)
	i := sort.Search(len(lt.entries), func(i int) bool { return lt.entries[i].EffectiveJD > jd })
	if i == 0 {
		return lt.entries[0].TAIMinusUTC
	}
	return lt.entries[i-1].TAIMinusUTC
}

// TDBJD converts a UTC instant to a TDB Julian date. TT = UTC + (TAI-UTC)
// + 32.184 s; TDB adds the dominant periodic term, which is what the DE
// series expects as its time argument.
func (lt *LeapTable) TDBJD(t time.Time) float64 {
	ttJD := UTCJD(t) + (lt.TAIMinusUTC(t)+ttMinusTAI)/secondsPerDay
	g := (357.53 + 0.9856003*(ttJD-J2000JD)) * math.Pi / 180
	tdbMinusTT := 0.001657 * math.Sin(g+0.01671*math.Sin(g))
	return ttJD + tdbMinusTT/secondsPerDay
}

// TDBSeconds converts a UTC instant to TDB seconds past J2000, the epoch
// representation used throughout the service.
func (lt *LeapTable) TDBSeconds(t time.Time) float64 {
	return (lt.TDBJD(t) - J2000JD) * secondsPerDay
}

// UTCFromTDB approximately inverts TDBSeconds. The residual is far below
// a millisecond, which is ample for Earth-rotation angles.
func (lt *LeapTable) UTCFromTDB(tdbSec float64) time.Time {
	// 946728000 is 2000-01-01T12:00:00Z, the UTC instant closest to J2000.
	guess := time.Unix(946728000, 0).UTC().Add(time.Duration(tdbSec * float64(time.Second)))
	off := lt.TAIMinusUTC(guess) + ttMinusTAI
	return guess.Add(-time.Duration(off * float64(time.Second)))
}

// EpochJD converts TDB seconds past J2000 back to a Julian date.
func EpochJD(tdbSec float64) float64 {
	return J2000JD + tdbSec/secondsPerDay
}

package chrono

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/siderealabs/ephemerisd/faults"
)

var log = logrus.WithField("prefix", "chrono")

// Profile selects the resolution discipline.
type Profile string

// Supported profiles. clairvision currently resolves exactly like
// astro_com.
const (
	ProfileStrictHistory Profile = "strict_history"
	ProfileAstroCom      Profile = "astro_com"
	ProfileClairvision   Profile = "clairvision"
	ProfileAsEntered     Profile = "as_entered"
)

// ParseProfile validates a profile name; empty defaults to strict_history.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case "":
		return ProfileStrictHistory, nil
	case ProfileStrictHistory, ProfileAstroCom, ProfileClairvision, ProfileAsEntered:
		return Profile(s), nil
	}
	return "", faults.Newf(faults.CodeInputInvalid, "unknown time profile %q", s)
}

// Zone provenance values.
const (
	SourceInput       = "input"       // the entered string carried its own zone or offset
	SourceExplicitOff = "offset"      // a separate explicit offset was supplied
	SourceExplicitZn  = "zone"        // a separate explicit IANA zone was supplied
	SourceCoordinates = "coordinates" // zone derived from the birth coordinates
)

// Confidence values. DST-edge disambiguation lowers confidence to
// medium; a cross-check disagreement under as_entered lowers it to low.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Request is one civil time to resolve.
type Request struct {
	Local     string
	Zone      string
	OffsetSec *int
	LatDeg    float64
	LonDeg    float64
	Profile   Profile
}

// Resolution is the resolved instant plus full provenance.
type Resolution struct {
	UTC            time.Time `json:"utc"`
	ZoneID         string    `json:"zone_id,omitempty"`
	OffsetSec      int       `json:"offset_sec"`
	DSTActive      bool      `json:"dst_active"`
	ZoneSource     string    `json:"zone_source"`
	Profile        Profile   `json:"profile"`
	Confidence     string    `json:"confidence"`
	Warnings       []string  `json:"warnings,omitempty"`
	PatchID        string    `json:"patch_id,omitempty"`
	CrossCheckZone string    `json:"cross_check_zone,omitempty"`
}

// Resolver turns civil input into UTC instants.
type Resolver struct {
	zones   *zoneIndex
	patches []Patch
}

// NewResolver builds the zone index once; it is safe for concurrent use.
func NewResolver(patches []Patch) (*Resolver, error) {
	zones, err := newZoneIndex()
	if err != nil {
		return nil, err
	}
	return &Resolver{zones: zones, patches: patches}, nil
}

// Resolve maps one request to a UTC instant under its profile.
func (r *Resolver) Resolve(req Request) (*Resolution, error) {
	profile, err := ParseProfile(string(req.Profile))
	if err != nil {
		return nil, err
	}
	res := &Resolution{Profile: profile, Confidence: ConfidenceHigh}
	// TODO(clairvision): obtain that tool's historical tables; until then
	// the profile is an alias of astro_com.
	rules := profile
	if rules == ProfileClairvision {
		rules = ProfileAstroCom
	}

	instant, wall, explicit, err := parseInput(req.Local)
	if err != nil {
		return nil, err
	}

	switch {
	case explicit:
		res.ZoneSource = SourceInput
		res.UTC = instant.UTC()
		_, off := instant.Zone()
		res.OffsetSec = off
	case req.OffsetSec != nil:
		res.ZoneSource = SourceExplicitOff
		res.OffsetSec = *req.OffsetSec
		res.UTC = wall.in(time.FixedZone("", res.OffsetSec)).UTC()
	case req.Zone != "":
		res.ZoneSource = SourceExplicitZn
		res.ZoneID = req.Zone
		if err := r.resolveInZone(res, rules, req.Zone, wall); err != nil {
			return nil, err
		}
	default:
		zone, err := r.zones.zoneFor(req.LatDeg, req.LonDeg)
		if err != nil {
			return nil, err
		}
		res.ZoneSource = SourceCoordinates
		res.ZoneID = zone
		if err := r.resolveInZone(res, rules, zone, wall); err != nil {
			return nil, err
		}
	}

	if profile == ProfileAsEntered && res.ZoneSource != SourceCoordinates {
		r.crossCheck(res, req.LatDeg, req.LonDeg)
	}
	return res, nil
}

// resolveInZone maps a wall clock through a named zone, applying the
// patch table under strict_history and disambiguating DST edges.
func (r *Resolver) resolveInZone(res *Resolution, rules Profile, zone string, wall wallClock) error {
	if rules == ProfileStrictHistory {
		if p := matchPatch(r.patches, zone, wall); p != nil {
			log.WithFields(logrus.Fields{"patch": p.ID, "zone": zone}).Debug("Applied historical offset patch")
			res.PatchID = p.ID
			res.OffsetSec = p.OffsetSec
			res.UTC = wall.in(time.FixedZone("", p.OffsetSec)).UTC()
			if p.Note != "" {
				res.Warnings = append(res.Warnings, p.Note)
			}
			return nil
		}
	}
	loc, err := loadLocation(zone)
	if err != nil {
		return err
	}
	t, warnings := mapLocal(loc, wall)
	res.UTC = t.UTC()
	_, off := t.Zone()
	res.OffsetSec = off
	res.DSTActive = res.UTC.In(loc).IsDST()
	if len(warnings) > 0 {
		res.Confidence = ConfidenceMedium
		res.Warnings = append(res.Warnings, warnings...)
	}
	return nil
}

// crossCheck compares an explicitly-supplied offset against the zone the
// coordinates imply. Disagreement keeps the entered value but flags low
// confidence.
func (r *Resolver) crossCheck(res *Resolution, latDeg, lonDeg float64) {
	zone, err := r.zones.zoneFor(latDeg, lonDeg)
	if err != nil {
		return
	}
	res.CrossCheckZone = zone
	loc, err := loadLocation(zone)
	if err != nil {
		return
	}
	_, off := res.UTC.In(loc).Zone()
	if off != res.OffsetSec {
		res.Confidence = ConfidenceLow
		res.Warnings = append(res.Warnings,
			"entered offset disagrees with the offset implied by the coordinates")
	}
}

// mapLocal maps a wall clock into loc, handling the two DST edge cases:
// a fold (clocks set back, two instants share the clock reading) resolves
// to the earlier instant, and a gap (clocks set forward, the reading
// never occurred) resolves to the first instant after the gap. Both add a
// warning.
func mapLocal(loc *time.Location, wall wallClock) (time.Time, []string) {
	naive := wall.in(loc)

	// Collect the distinct offsets in effect around the naive mapping and
	// keep the ones that reproduce the entered clock.
	seen := map[int]bool{}
	var candidates []time.Time
	for _, probe := range []time.Time{naive.Add(-14 * time.Hour), naive, naive.Add(14 * time.Hour)} {
		_, off := probe.In(loc).Zone()
		if seen[off] {
			continue
		}
		seen[off] = true
		cand := wall.in(time.FixedZone("", off))
		if wall.equalClock(cand.In(loc)) {
			candidates = append(candidates, cand)
		}
	}

	switch len(candidates) {
	case 0:
		// Inside a spring-forward gap: resolve to the transition instant.
		t := transitionNear(loc, naive)
		return t, []string{"entered local time falls in a DST gap; using the first instant after the gap"}
	case 1:
		return candidates[0], nil
	default:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
		return candidates[0], []string{"entered local time is ambiguous during a DST fold; using the earlier instant"}
	}
}

// transitionNear finds the offset-change instant closest to around by
// bisecting the surrounding two days.
func transitionNear(loc *time.Location, around time.Time) time.Time {
	lo := around.Add(-24 * time.Hour)
	hi := around.Add(24 * time.Hour)
	_, offLo := lo.In(loc).Zone()
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, off := mid.In(loc).Zone(); off == offLo {
			lo = mid
		} else {
			hi = mid
		}
	}
	// Transitions land on whole seconds; snap up if truncation crossed
	// back over the boundary.
	t := hi.Truncate(time.Second)
	if _, off := t.In(loc).Zone(); off == offLo {
		t = t.Add(time.Second)
	}
	return t
}

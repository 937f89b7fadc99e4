// Package compute turns an epoch, an observer and a body list into
// apparent coordinates. The heavy numerical lifting (Chebyshev
// interpolation of the DE series) lives behind the Engine interface; this
// package owns the observer geometry, light-time and aberration
// corrections, frame rotations and the sidereal offset.
package compute

import (
	"github.com/siderealabs/ephemerisd/faults"
)

// Body enumerates the computable bodies.
type Body string

// Supported bodies.
const (
	BodySun      Body = "Sun"
	BodyMoon     Body = "Moon"
	BodyMercury  Body = "Mercury"
	BodyVenus    Body = "Venus"
	BodyMars     Body = "Mars"
	BodyJupiter  Body = "Jupiter"
	BodySaturn   Body = "Saturn"
	BodyUranus   Body = "Uranus"
	BodyNeptune  Body = "Neptune"
	BodyPluto    Body = "Pluto"
	BodyTrueNode Body = "TrueNode"
	BodyMeanNode Body = "MeanNode"
)

// AllBodies lists every supported body in canonical order.
var AllBodies = []Body{
	BodySun, BodyMoon, BodyMercury, BodyVenus, BodyMars, BodyJupiter,
	BodySaturn, BodyUranus, BodyNeptune, BodyPluto, BodyTrueNode, BodyMeanNode,
}

var bodySet = func() map[Body]struct{} {
	m := make(map[Body]struct{}, len(AllBodies))
	for _, b := range AllBodies {
		m[b] = struct{}{}
	}
	return m
}()

// ParseBody validates a body name.
func ParseBody(s string) (Body, error) {
	b := Body(s)
	if _, ok := bodySet[b]; !ok {
		return "", faults.Newf(faults.CodeBodiesUnsupported, "unknown body %q", s)
	}
	return b, nil
}

// IsNode reports whether the body is a lunar node rather than a physical
// body with an ephemeris record.
func (b Body) IsNode() bool {
	return b == BodyTrueNode || b == BodyMeanNode
}

// System selects the zodiac.
type System string

// Zodiac systems.
const (
	SystemTropical System = "tropical"
	SystemSidereal System = "sidereal"
)

// FrameType selects the output reference plane.
type FrameType string

// EpochOf selects the equinox of the output frame.
type EpochOf string

// Frame constants.
const (
	FrameEclipticOfDate FrameType = "ecliptic_of_date"
	FrameEquatorial     FrameType = "equatorial"

	EpochOfDate EpochOf = "of_date"
	EpochJ2000  EpochOf = "J2000"
)

// FrameSpec pairs a reference plane with an equinox. Only
// (ecliptic_of_date, of_date) and (equatorial, J2000) are legal.
type FrameSpec struct {
	Type    FrameType `json:"type"`
	EpochOf EpochOf   `json:"epoch_of"`
}

// Validate rejects illegal frame pairs.
func (f FrameSpec) Validate() error {
	switch {
	case f.Type == FrameEclipticOfDate && f.EpochOf == EpochOfDate:
		return nil
	case f.Type == FrameEquatorial && f.EpochOf == EpochJ2000:
		return nil
	}
	return faults.Newf(faults.CodeInputInvalid,
		"frame (%s, %s) is not a legal combination", f.Type, f.EpochOf)
}

// Observer is a geodetic location.
type Observer struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	ElevM  float64 `json:"elev"`
}

// Validate bounds-checks the observer.
func (o Observer) Validate() error {
	if o.LatDeg < -90 || o.LatDeg > 90 {
		return faults.Newf(faults.CodeInputInvalid, "latitude %f out of range [-90, 90]", o.LatDeg)
	}
	if o.LonDeg <= -180 || o.LonDeg > 180 {
		return faults.Newf(faults.CodeInputInvalid, "longitude %f out of range (-180, 180]", o.LonDeg)
	}
	return nil
}

// Request is the unit of work dispatched to a compute worker.
type Request struct {
	// EpochSec is TDB seconds past J2000.
	EpochSec     float64   `json:"epoch_sec"`
	Bodies       []Body    `json:"bodies"`
	System       System    `json:"system"`
	AyanamshaID  string    `json:"ayanamsha_id,omitempty"`
	AyanamshaDeg *float64  `json:"ayanamsha_deg,omitempty"`
	Frame        FrameSpec `json:"frame"`
	// Geocentric requests have no observer; positions are computed from
	// the Earth's center.
	Geocentric bool     `json:"geocentric,omitempty"`
	Observer   Observer `json:"observer"`
}

// BodyPosition is one body's computed coordinates. Ecliptic and
// equatorial fields are mutually exclusive, matching the request frame.
type BodyPosition struct {
	Name       Body     `json:"name"`
	LonDeg     *float64 `json:"lon_deg,omitempty"`
	LatDeg     *float64 `json:"lat_deg,omitempty"`
	RAHours    *float64 `json:"ra_hours,omitempty"`
	DecDeg     *float64 `json:"dec_deg,omitempty"`
	DistanceAU float64  `json:"distance_au"`
}

// Observer frame provenance values.
const (
	ObserverFrameEOP        = "itrf_eop"
	ObserverFrameFallback   = "gmst_no_eop"
	ObserverFrameGeocentric = "geocentric"
)

// Result is the computed payload for a request.
type Result struct {
	Bodies            []BodyPosition `json:"bodies"`
	Ephemeris         string         `json:"ephemeris"`
	ObserverFrameUsed string         `json:"observer_frame_used"`
}

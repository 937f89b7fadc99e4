package compute

// Target is a DE-series body index following the JPL numbering
// convention.
type Target int

// DE target indices.
const (
	TargetMercury Target = 1
	TargetVenus   Target = 2
	TargetEarth   Target = 3
	TargetMars    Target = 4
	TargetJupiter Target = 5
	TargetSaturn  Target = 6
	TargetUranus  Target = 7
	TargetNeptune Target = 8
	TargetPluto   Target = 9
	TargetMoon    Target = 10
	TargetSun     Target = 11
	TargetSSB     Target = 12
	TargetEMB     Target = 13
)

// targetOf maps an API body to its DE target. Nodes have no target and
// are derived analytically from the Moon's state.
var targetOf = map[Body]Target{
	BodySun:     TargetSun,
	BodyMoon:    TargetMoon,
	BodyMercury: TargetMercury,
	BodyVenus:   TargetVenus,
	BodyMars:    TargetMars,
	BodyJupiter: TargetJupiter,
	BodySaturn:  TargetSaturn,
	BodyUranus:  TargetUranus,
	BodyNeptune: TargetNeptune,
	BodyPluto:   TargetPluto,
}

// StateVec is a barycentric-convention state: position in AU and velocity
// in AU/day, referred to the J2000 mean equator and equinox (ICRF).
type StateVec struct {
	Pos Vec3
	Vel Vec3
}

// Engine is the small Compute capability behind which the native
// ephemeris library sits. An Engine is not safe for concurrent use; each
// worker process owns exactly one.
type Engine interface {
	// State returns the state of target relative to center at the given
	// TDB Julian date.
	State(jd float64, target, center Target) (StateVec, error)
	// Close releases the native context.
	Close() error
}

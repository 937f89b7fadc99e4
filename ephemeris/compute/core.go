package compute

import (
	"github.com/pkg/errors"

	"github.com/siderealabs/ephemerisd/ephemeris/kernel"
	"github.com/siderealabs/ephemerisd/faults"
)

// cAUPerDay is the speed of light in AU/day.
const cAUPerDay = 173.144632674

// lightTimeIterations bounds the light-time solve; two passes keep the
// residual far below a milliarcsecond for solar-system distances.
const lightTimeIterations = 2

// Core computes apparent positions against a single kernel bundle. It is
// single-threaded with respect to the underlying engine; one Core lives
// in each worker process.
type Core struct {
	engine Engine
	bundle *kernel.Bundle
}

// NewCore pairs an engine with its verified bundle.
func NewCore(engine Engine, bundle *kernel.Bundle) *Core {
	return &Core{engine: engine, bundle: bundle}
}

// Compute resolves every requested body to apparent coordinates in the
// requested frame and system.
func (c *Core) Compute(req Request) (*Result, error) {
	if err := req.Frame.Validate(); err != nil {
		return nil, err
	}
	if !req.Geocentric {
		if err := req.Observer.Validate(); err != nil {
			return nil, err
		}
	}
	if req.System == SystemSidereal {
		if req.AyanamshaDeg == nil {
			return nil, faults.New(faults.CodeAyanamshaRequired,
				"sidereal requests must resolve an ayanamsha before compute")
		}
		if req.Frame.Type == FrameEquatorial {
			return nil, faults.New(faults.CodeSystemIncompatible,
				"sidereal output is defined for the ecliptic frame only")
		}
	}

	jd := kernel.EpochJD(req.EpochSec)
	if !c.bundle.Window().Contains(jd) {
		return nil, faults.Newf(faults.CodeRangeOutside,
			"JD %.1f is outside bundle %s coverage", jd, c.bundle.ID())
	}

	var obs Vec3
	obsFrame := ObserverFrameGeocentric
	if !req.Geocentric {
		obs, obsFrame = c.observerJ2000(jd, req.Observer)
	}

	earth, err := c.engine.State(jd, TargetEarth, TargetSSB)
	if err != nil {
		return nil, faults.ClassifyNative(err)
	}

	out := &Result{
		Bodies:            make([]BodyPosition, 0, len(req.Bodies)),
		Ephemeris:         c.bundle.ID(),
		ObserverFrameUsed: obsFrame,
	}
	for _, body := range req.Bodies {
		var bp BodyPosition
		var err error
		if body.IsNode() {
			bp, err = c.nodePosition(jd, body, req)
		} else {
			bp, err = c.apparentPosition(jd, body, req, obs, earth)
		}
		if err != nil {
			return nil, err
		}
		out.Bodies = append(out.Bodies, bp)
	}
	return out, nil
}

// apparentPosition computes one body's topocentric apparent coordinates:
// light-time plus stellar aberration, then the requested frame rotation
// and, for sidereal requests, the ayanāṃśa offset.
func (c *Core) apparentPosition(jd float64, body Body, req Request, obs Vec3, earth StateVec) (BodyPosition, error) {
	target, ok := targetOf[body]
	if !ok {
		return BodyPosition{}, faults.Newf(faults.CodeBodiesUnsupported, "unknown body %q", body)
	}

	observerPos := earth.Pos.Add(obs)

	tb, err := c.engine.State(jd, target, TargetSSB)
	if err != nil {
		return BodyPosition{}, faults.ClassifyNative(err)
	}
	p := tb.Pos.Sub(observerPos)
	for i := 0; i < lightTimeIterations; i++ {
		lt := p.Norm() / cAUPerDay
		tb, err = c.engine.State(jd-lt, target, TargetSSB)
		if err != nil {
			return BodyPosition{}, faults.ClassifyNative(err)
		}
		p = tb.Pos.Sub(observerPos)
	}
	dist := p.Norm()

	// Stellar aberration from the observer's barycentric velocity.
	dir := p.Unit().Add(earth.Vel.Scale(1 / cAUPerDay)).Unit()
	apparent := dir.Scale(dist)

	return c.framePosition(jd, body, req, apparent, dist)
}

// nodePosition handles the lunar nodes, which are defined directly in the
// ecliptic of date.
func (c *Core) nodePosition(jd float64, body Body, req Request) (BodyPosition, error) {
	var lon float64
	var err error
	if body == BodyMeanNode {
		lon = meanNodeLonDeg(jd)
	} else {
		lon, err = c.trueNodeLonDeg(jd)
		if err != nil {
			return BodyPosition{}, faults.ClassifyNative(err)
		}
	}

	if req.Frame.Type == FrameEquatorial {
		ecl := fromSphericalEcliptic(lon, 0)
		j2000 := eclipticOfDateMatrix(jd).Transpose().Apply(ecl)
		ra, dec := raDec(j2000)
		return BodyPosition{Name: body, RAHours: &ra, DecDeg: &dec, DistanceAU: meanLunarDistanceAU}, nil
	}

	if req.System == SystemSidereal {
		lon = normalizeDeg(lon - *req.AyanamshaDeg)
	}
	lat := 0.0
	return BodyPosition{Name: body, LonDeg: &lon, LatDeg: &lat, DistanceAU: meanLunarDistanceAU}, nil
}

// framePosition rotates an apparent J2000 equatorial vector into the
// requested output frame.
func (c *Core) framePosition(jd float64, body Body, req Request, apparent Vec3, dist float64) (BodyPosition, error) {
	switch req.Frame.Type {
	case FrameEclipticOfDate:
		v := eclipticOfDateMatrix(jd).Apply(apparent)
		lon, lat, _ := toSpherical(v)
		if req.System == SystemSidereal {
			lon = normalizeDeg(lon - *req.AyanamshaDeg)
		}
		return BodyPosition{Name: body, LonDeg: &lon, LatDeg: &lat, DistanceAU: dist}, nil
	case FrameEquatorial:
		ra, dec := raDec(apparent)
		return BodyPosition{Name: body, RAHours: &ra, DecDeg: &dec, DistanceAU: dist}, nil
	}
	return BodyPosition{}, errors.Errorf("unreachable frame type %q", req.Frame.Type)
}

// Close releases the engine's native context.
func (c *Core) Close() error {
	return c.engine.Close()
}

package compute

import "math"

// meanLunarDistanceAU stands in as the radial coordinate for the lunar
// nodes, which are directions rather than physical bodies.
const meanLunarDistanceAU = 0.00257

// meanNodeLonDeg returns the mean ascending lunar node's ecliptic-of-date
// longitude (Meeus, Astronomical Algorithms ch. 47).
func meanNodeLonDeg(jd float64) float64 {
	t := julianCenturies(jd)
	omega := 125.0445479 -
		1934.1362891*t +
		0.0020754*t*t +
		t*t*t/467441 -
		t*t*t*t/60616000
	return normalizeDeg(omega)
}

// trueNodeLonDeg derives the osculating ascending node from the Moon's
// geocentric state: the node line is the intersection of the orbital
// plane (normal r x v) with the ecliptic.
func (c *Core) trueNodeLonDeg(jd float64) (float64, error) {
	st, err := c.engine.State(jd, TargetMoon, TargetEarth)
	if err != nil {
		return 0, err
	}
	m := eclipticOfDateMatrix(jd)
	r := m.Apply(st.Pos)
	v := m.Apply(st.Vel)
	h := r.Cross(v)
	// Node vector: z-hat x h.
	n := Vec3{-h[1], h[0], 0}
	if n.Norm() == 0 {
		return meanNodeLonDeg(jd), nil
	}
	return normalizeDeg(math.Atan2(n[1], n[0]) / degToRad), nil
}

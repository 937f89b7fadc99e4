package compute

import (
	"math"

	"github.com/siderealabs/ephemerisd/ephemeris/kernel"
)

// geodeticToECEF converts a geodetic observer to an Earth-fixed vector in
// AU, using the bundle's Earth figure constants.
func geodeticToECEF(o Observer, c kernel.Constants) Vec3 {
	lat := o.LatDeg * degToRad
	lon := o.LonDeg * degToRad
	a := c.EarthRadiusKm
	f := c.EarthFlattening
	e2 := f * (2 - f)
	sinLat := math.Sin(lat)
	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	h := o.ElevM / 1000

	x := (n + h) * math.Cos(lat) * math.Cos(lon)
	y := (n + h) * math.Cos(lat) * math.Sin(lon)
	z := (n*(1-e2) + h) * sinLat
	return Vec3{x / c.AUKm, y / c.AUKm, z / c.AUKm}
}

// gmstDeg returns Greenwich mean sidereal time in degrees (IAU-1982).
func gmstDeg(ut1JD float64) float64 {
	t := julianCenturies(ut1JD)
	gmst := 280.46061837 +
		360.98564736629*(ut1JD-j2000JD) +
		0.000387933*t*t -
		t*t*t/38710000
	return normalizeDeg(gmst)
}

// observerJ2000 returns the observer's geocentric offset in the J2000
// equatorial frame, plus the provenance tag for the rotation model used.
// When the Earth-orientation table does not cover the epoch the UT1
// correction is dropped and the fallback tag is recorded.
func (c *Core) observerJ2000(jd float64, o Observer) (Vec3, string) {
	ecef := geodeticToECEF(o, c.bundle.Constants())

	utcJD := kernel.UTCJD(c.bundle.Leap().UTCFromTDB((jd - kernel.J2000JD) * 86400))

	frame := ObserverFrameFallback
	var dut1 float64
	if eop := c.bundle.EOP(); eop != nil {
		if v, ok := eop.DUT1(jd); ok {
			dut1 = v
			frame = ObserverFrameEOP
		}
	}
	ut1JD := utcJD + dut1/86400

	theta := gmstDeg(ut1JD) * degToRad
	ofDate := rotZ(-theta).Apply(ecef)
	j2000 := precessionMatrix(jd).Transpose().Apply(ofDate)
	return j2000, frame
}

package compute

import "math"

// Vec3 is a Cartesian vector in AU (or AU/day for velocities).
type Vec3 [3]float64

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]} }

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v[0] * s, v[1] * s, v[2] * s} }

// Norm returns |v|.
func (v Vec3) Norm() float64 { return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2]) }

// Unit returns v/|v|; the zero vector maps to itself.
func (v Vec3) Unit() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// Cross returns v × w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		v[1]*w[2] - v[2]*w[1],
		v[2]*w[0] - v[0]*w[2],
		v[0]*w[1] - v[1]*w[0],
	}
}

// Mat3 is a 3x3 rotation matrix in row-major order.
type Mat3 [3][3]float64

// Apply returns m·v.
func (m Mat3) Apply(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Transpose returns the inverse of a rotation matrix.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * n[k][j]
			}
		}
	}
	return out
}

func rotX(angle float64) Mat3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat3{{1, 0, 0}, {0, c, s}, {0, -s, c}}
}

func rotZ(angle float64) Mat3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat3{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}
}

func rotY(angle float64) Mat3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat3{{c, 0, -s}, {0, 1, 0}, {s, 0, c}}
}

const (
	degToRad    = math.Pi / 180
	arcsecToRad = degToRad / 3600
	// julianCentury is days per Julian century.
	julianCentury = 36525.0
	j2000JD       = 2451545.0
)

// julianCenturies returns Julian centuries of TDB since J2000.
func julianCenturies(jd float64) float64 {
	return (jd - j2000JD) / julianCentury
}

// precessionMatrix returns the IAU-1976 rotation taking J2000 mean
// equatorial coordinates to mean-of-date equatorial coordinates.
func precessionMatrix(jd float64) Mat3 {
	t := julianCenturies(jd)
	zeta := (2306.2181*t + 0.30188*t*t + 0.017998*t*t*t) * arcsecToRad
	z := (2306.2181*t + 1.09468*t*t + 0.018203*t*t*t) * arcsecToRad
	theta := (2004.3109*t - 0.42665*t*t - 0.041833*t*t*t) * arcsecToRad
	return rotZ(-z).Mul(rotY(theta)).Mul(rotZ(-zeta))
}

// meanObliquity returns the IAU-1980 mean obliquity of the ecliptic in
// radians.
func meanObliquity(jd float64) float64 {
	t := julianCenturies(jd)
	arcsec := 84381.448 - 46.8150*t - 0.00059*t*t + 0.001813*t*t*t
	return arcsec * arcsecToRad
}

// eclipticOfDateMatrix returns the rotation taking J2000 mean equatorial
// coordinates into the mean ecliptic and equinox of date.
func eclipticOfDateMatrix(jd float64) Mat3 {
	return rotX(meanObliquity(jd)).Mul(precessionMatrix(jd))
}

// normalizeDeg maps degrees into [0, 360).
func normalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// toSpherical converts a Cartesian vector to (longitude deg in [0,360),
// latitude deg in [-90,90], radius).
func toSpherical(v Vec3) (lonDeg, latDeg, r float64) {
	r = v.Norm()
	if r == 0 {
		return 0, 0, 0
	}
	lonDeg = normalizeDeg(math.Atan2(v[1], v[0]) / degToRad)
	latDeg = math.Asin(v[2]/r) / degToRad
	return lonDeg, latDeg, r
}

// fromSphericalEcliptic builds a unit vector from ecliptic longitude and
// latitude in degrees.
func fromSphericalEcliptic(lonDeg, latDeg float64) Vec3 {
	lon, lat := lonDeg*degToRad, latDeg*degToRad
	return Vec3{
		math.Cos(lat) * math.Cos(lon),
		math.Cos(lat) * math.Sin(lon),
		math.Sin(lat),
	}
}

// raDec converts a J2000 equatorial vector to right ascension in hours
// [0,24) and declination in degrees.
func raDec(v Vec3) (raHours, decDeg float64) {
	lon, lat, _ := toSpherical(v)
	return lon / 15, lat
}

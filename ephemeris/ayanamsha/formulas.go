package ayanamsha

// The closed forms are quadratics in Julian centuries from J2000:
// offset = a0 + a1*T + a2*T^2, degrees. The linear term is the general
// precession in longitude; the constant pins the zodiac's zero point.

const j2000 = 2451545.0

const (
	precessionDegPerCentury = 1.3969713
	precessionQuadratic     = 0.0003086
)

func quadratic(a0 float64) func(jd float64) float64 {
	return func(jd float64) float64 {
		t := (jd - j2000) / 36525.0
		return a0 + precessionDegPerCentury*t + precessionQuadratic*t*t
	}
}

// formulas enumerates the known closed forms. Additions here must be
// mirrored in the registry documentation.
var formulas = map[string]func(jd float64) float64{
	"lahiri":        quadratic(23.852949),
	"fagan_bradley": quadratic(24.736905),
	"krishnamurti":  quadratic(23.746227),
	"raman":         quadratic(22.460148),
}

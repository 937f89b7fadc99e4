package kernel

import (
	"github.com/siderealabs/ephemerisd/faults"
)

// Select implements the bundle auto-handoff policy: prefer the first
// bundle whose window covers jd, in the order given. The caller lists
// DE440 before DE441 so the short-span, higher-fidelity bundle wins when
// both cover the epoch.
func Select(bundles []*Bundle, jd float64) (*Bundle, error) {
	for _, b := range bundles {
		if b.Window().Contains(jd) {
			return b, nil
		}
	}
	return nil, faults.Newf(faults.CodeRangeOutside,
		"no loaded kernel bundle covers JD %.1f", jd)
}

package chrono

import (
	"fmt"
	"time"
	_ "time/tzdata" // the container image has no /usr/share/zoneinfo

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/ringsaturn/tzf"

	"github.com/siderealabs/ephemerisd/faults"
)

// zoneGrain quantizes coordinates for the lookup memo; zone polygons are
// far coarser than a hundredth of a degree.
const zoneGrain = 100.0

// zoneIndex maps coordinates to IANA zone names with a memo in front of
// the polygon index.
type zoneIndex struct {
	finder tzf.F
	memo   *gocache.Cache
}

func newZoneIndex() (*zoneIndex, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, errors.Wrap(err, "could not build timezone index")
	}
	return &zoneIndex{
		finder: finder,
		memo:   gocache.New(24*time.Hour, time.Hour),
	}, nil
}

// zoneFor returns the IANA zone containing the coordinates.
func (z *zoneIndex) zoneFor(latDeg, lonDeg float64) (string, error) {
	key := fmt.Sprintf("%.2f:%.2f", float64(int(latDeg*zoneGrain))/zoneGrain, float64(int(lonDeg*zoneGrain))/zoneGrain)
	if v, ok := z.memo.Get(key); ok {
		return v.(string), nil
	}
	name := z.finder.GetTimezoneName(lonDeg, latDeg)
	if name == "" {
		return "", faults.Newf(faults.CodeTimeResolutionFailed,
			"no timezone found for coordinates %.4f,%.4f", latDeg, lonDeg)
	}
	z.memo.SetDefault(key, name)
	return name, nil
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, faults.Newf(faults.CodeTimeResolutionFailed, "unknown timezone %q", name)
	}
	return loc, nil
}

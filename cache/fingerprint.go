// Package cache provides the response cache for position computations:
// canonical request fingerprints, an in-process LRU with TTL, an optional
// shared redis tier, and single-flight collapse of concurrent identical
// requests.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// fingerprintVersion is bumped whenever canonicalization changes, so stale
// cache entries from older deployments can never be served.
const fingerprintVersion = "v2"

// coordGrain quantizes observer coordinates; requests within a micro-degree
// (about 11 cm) share a fingerprint.
const coordGrain = 1e-6

// Fingerprint is the complete set of inputs that determine a positions
// response. Two requests with equal fingerprints are interchangeable.
type Fingerprint struct {
	EpochSec    float64
	Bodies      []string
	System      string
	AyanamshaID string
	FrameType   string
	FrameEpoch  string
	Geocentric  bool
	LatDeg      float64
	LonDeg      float64
	ElevM       float64
	Bundle      string
	TimePolicy  string
}

func quantize(v, grain float64) float64 {
	return math.Round(v/grain) * grain
}

// Canonical renders the fingerprint as a deterministic string: bodies
// sorted, coordinates quantized, epoch rounded to the whole second.
func (f Fingerprint) Canonical() string {
	bodies := make([]string, len(f.Bodies))
	copy(bodies, f.Bodies)
	sort.Strings(bodies)
	obs := "geocentric"
	if !f.Geocentric {
		obs = fmt.Sprintf("%.6f,%.6f,%.2f",
			quantize(f.LatDeg, coordGrain), quantize(f.LonDeg, coordGrain), quantize(f.ElevM, 0.01))
	}
	return strings.Join([]string{
		fingerprintVersion,
		fmt.Sprintf("epoch=%d", int64(math.Round(f.EpochSec))),
		"bodies=" + strings.Join(bodies, ","),
		"system=" + f.System,
		"ayanamsha=" + f.AyanamshaID,
		"frame=" + f.FrameType + "/" + f.FrameEpoch,
		"obs=" + obs,
		"bundle=" + f.Bundle,
		"time=" + f.TimePolicy,
	}, "|")
}

// ParseCanonical inverts Canonical. The round trip is exact: re-rendering
// the parsed fingerprint reproduces the input string byte for byte.
func ParseCanonical(s string) (Fingerprint, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 9 {
		return Fingerprint{}, errors.Errorf("canonical fingerprint has %d segments, want 9", len(parts))
	}
	if parts[0] != fingerprintVersion {
		return Fingerprint{}, errors.Errorf("unsupported fingerprint version %q", parts[0])
	}
	var f Fingerprint
	for i, name := range []string{"epoch", "bodies", "system", "ayanamsha", "frame", "obs", "bundle", "time"} {
		part := parts[i+1]
		if !strings.HasPrefix(part, name+"=") {
			return Fingerprint{}, errors.Errorf("segment %q is not the expected %s field", part, name)
		}
		val := part[len(name)+1:]
		switch name {
		case "epoch":
			sec, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return Fingerprint{}, errors.Wrapf(err, "bad epoch %q", val)
			}
			f.EpochSec = float64(sec)
		case "bodies":
			if val != "" {
				f.Bodies = strings.Split(val, ",")
			}
		case "system":
			f.System = val
		case "ayanamsha":
			f.AyanamshaID = val
		case "frame":
			ft, fe, ok := strings.Cut(val, "/")
			if !ok {
				return Fingerprint{}, errors.Errorf("bad frame %q", val)
			}
			f.FrameType, f.FrameEpoch = ft, fe
		case "obs":
			if val == "geocentric" {
				f.Geocentric = true
				continue
			}
			coords := strings.Split(val, ",")
			if len(coords) != 3 {
				return Fingerprint{}, errors.Errorf("bad observer %q", val)
			}
			vals := make([]float64, 3)
			for j, c := range coords {
				v, err := strconv.ParseFloat(c, 64)
				if err != nil {
					return Fingerprint{}, errors.Wrapf(err, "bad observer %q", val)
				}
				vals[j] = v
			}
			f.LatDeg, f.LonDeg, f.ElevM = vals[0], vals[1], vals[2]
		case "bundle":
			f.Bundle = val
		case "time":
			f.TimePolicy = val
		}
	}
	return f, nil
}

// Sum is the hex SHA-256 of the canonical form. It doubles as the cache
// key and, quoted, as the response ETag.
func (f Fingerprint) Sum() string {
	h := sha256.Sum256([]byte(f.Canonical()))
	return hex.EncodeToString(h[:])
}

// ETag returns the strong validator form used on the wire.
func (f Fingerprint) ETag() string {
	return `"` + f.Sum() + `"`
}

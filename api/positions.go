package api

import (
	"context"
	"net/http"
	"time"

	"github.com/siderealabs/ephemerisd/cache"
	"github.com/siderealabs/ephemerisd/chrono"
	"github.com/siderealabs/ephemerisd/ephemeris/compute"
	"github.com/siderealabs/ephemerisd/ephemeris/kernel"
	"github.com/siderealabs/ephemerisd/faults"
)

// timePolicyUTC marks fingerprints of requests that carried an absolute
// UTC instant and never touched the time resolver.
const timePolicyUTC = "utc"

func (s *Service) handlePositions(w http.ResponseWriter, r *http.Request) {
	var req PositionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFault(w, faults.New(faults.CodeInputInvalidFormat, "request body is not valid JSON"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeFault(w, faults.Newf(faults.CodeInputInvalid, "invalid request: %v", err))
		return
	}
	if err := req.When.validate(); err != nil {
		writeFault(w, err)
		return
	}
	if p := req.When.Place; p != nil {
		obs := compute.Observer{LatDeg: p.Lat, LonDeg: p.Lon, ElevM: p.Elev}
		if err := obs.Validate(); err != nil {
			writeFault(w, err)
			return
		}
	}

	bodies := make([]compute.Body, 0, len(req.Bodies))
	for _, name := range req.Bodies {
		b, err := compute.ParseBody(name)
		if err != nil {
			writeFault(w, err)
			return
		}
		bodies = append(bodies, b)
	}
	frame := frameSpec(req.Frame, req.Epoch)
	if err := frame.Validate(); err != nil {
		writeFault(w, err)
		return
	}
	system := compute.System(req.System)
	switch {
	case system == compute.SystemSidereal && frame.Type == compute.FrameEquatorial:
		writeFault(w, faults.New(faults.CodeSystemIncompatible,
			"sidereal output is defined for the ecliptic frame only"))
		return
	case system == compute.SystemSidereal && req.Ayanamsha == nil:
		writeFault(w, faults.New(faults.CodeAyanamshaRequired,
			"sidereal requests must name an ayanamsha"))
		return
	case system == compute.SystemTropical && req.Ayanamsha != nil:
		writeFault(w, faults.New(faults.CodeSystemIncompatible,
			"tropical requests must not carry an ayanamsha"))
		return
	}

	// Fix the instant: absolute UTC passes through, civil input goes
	// through the resolver.
	var utc time.Time
	var resolution *chrono.Resolution
	timePolicy := timePolicyUTC
	if req.When.UTC != "" {
		var err error
		if utc, err = time.Parse(time.RFC3339, req.When.UTC); err != nil {
			writeFault(w, faults.Newf(faults.CodeInputInvalidFormat,
				"utc %q is not an RFC 3339 timestamp", req.When.UTC))
			return
		}
		utc = utc.UTC()
	} else {
		in := chrono.Request{
			Local:     req.When.LocalDatetime,
			Zone:      req.When.Zone,
			OffsetSec: req.When.OffsetSec,
			Profile:   chrono.Profile(req.When.ParityProfile),
		}
		if req.When.Place != nil {
			in.LatDeg = req.When.Place.Lat
			in.LonDeg = req.When.Place.Lon
		}
		var err error
		if resolution, err = s.cfg.Resolver.Resolve(in); err != nil {
			writeFault(w, err)
			return
		}
		utc = resolution.UTC
		timePolicy = string(resolution.Profile)
	}

	if len(s.cfg.Bundles) == 0 {
		writeFault(w, faults.New(faults.CodeKernelsNotAvailable, "no ephemeris bundles are loaded"))
		return
	}
	// Coverage windows are expressed in TDB; selecting on the UTC Julian
	// date would skew a minute at bundle boundaries. The leap tables agree
	// across bundles, so any one converts.
	bundle, err := kernel.Select(s.cfg.Bundles, s.cfg.Bundles[0].Leap().TDBJD(utc))
	if err != nil {
		writeFault(w, err)
		return
	}
	epochSec := bundle.Leap().TDBSeconds(utc)

	var ayanamshaID string
	var ayanamshaDeg *float64
	if req.Ayanamsha != nil {
		ayanamshaID = req.Ayanamsha.ID
		deg, err := s.cfg.Ayanamshas.Resolve(ayanamshaID, kernel.EpochJD(epochSec))
		if err != nil {
			writeFault(w, err)
			return
		}
		ayanamshaDeg = &deg
	}

	fp := cache.Fingerprint{
		EpochSec:    epochSec,
		Bodies:      req.Bodies,
		System:      req.System,
		AyanamshaID: ayanamshaID,
		FrameType:   string(frame.Type),
		FrameEpoch:  string(frame.EpochOf),
		Geocentric:  req.When.Place == nil,
		Bundle:      bundle.ID(),
		TimePolicy:  timePolicy,
	}
	if req.When.Place != nil {
		fp.LatDeg = req.When.Place.Lat
		fp.LonDeg = req.When.Place.Lon
		fp.ElevM = req.When.Place.Elev
	}
	etag := fp.ETag()
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	p, ok := s.cfg.Pools[bundle.ID()]
	if !ok {
		writeFault(w, faults.Newf(faults.CodeKernelsNotAvailable,
			"no compute pool is running for bundle %s", bundle.ID()))
		return
	}

	payload, _, err := s.cfg.Cache.GetOrCompute(r.Context(), fp.Sum(), func(ctx context.Context) ([]byte, error) {
		creq := compute.Request{
			EpochSec:     epochSec,
			Bodies:       bodies,
			System:       system,
			AyanamshaID:  ayanamshaID,
			AyanamshaDeg: ayanamshaDeg,
			Frame:        frame,
			Geocentric:   req.When.Place == nil,
		}
		if req.When.Place != nil {
			creq.Observer = compute.Observer{
				LatDeg: req.When.Place.Lat,
				LonDeg: req.When.Place.Lon,
				ElevM:  req.When.Place.Elev,
			}
		}
		result, err := p.Submit(ctx, creq)
		if err != nil {
			return nil, err
		}
		return json.Marshal(computedPayload{
			UTC:    utc.Format(time.RFC3339),
			Bodies: result.Bodies,
			Provenance: Provenance{
				System:            req.System,
				Frame:             string(frame.Type),
				Epoch:             string(frame.EpochOf),
				Ephemeris:         result.Ephemeris,
				Ayanamsha:         ayanamshaID,
				AyanamshaDeg:      ayanamshaDeg,
				BundleChecksums:   bundle.Checksums(),
				ObserverFrameUsed: result.ObserverFrameUsed,
			},
		})
	})
	if err != nil {
		writeFault(w, err)
		return
	}

	var resp PositionsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		writeFault(w, faults.New(faults.CodeInternal, "an internal error occurred"))
		return
	}
	resp.Provenance.TimeResolution = resolution
	writeJSON(w, http.StatusOK, resp)
}

// Package api exposes the HTTP surface of the service: position
// computation, time resolution, geocoding pass-through, registry listing
// and health.
package api

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/siderealabs/ephemerisd/chrono"
	"github.com/siderealabs/ephemerisd/ephemeris/compute"
	"github.com/siderealabs/ephemerisd/faults"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PlaceInput is the observer location carried by a request.
type PlaceInput struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Elev float64 `json:"elev,omitempty"`
}

// WhenInput fixes the instant of a request: either an absolute UTC
// timestamp, or a civil local datetime plus the place it was read, with
// an optional parity profile selecting the historical-accuracy posture.
type WhenInput struct {
	UTC           string      `json:"utc,omitempty"`
	LocalDatetime string      `json:"local_datetime,omitempty"`
	Place         *PlaceInput `json:"place,omitempty"`
	Zone          string      `json:"zone,omitempty"`
	OffsetSec     *int        `json:"offset_sec,omitempty"`
	ParityProfile string      `json:"parity_profile,omitempty"`
}

func (w WhenInput) validate() error {
	switch {
	case w.UTC == "" && w.LocalDatetime == "":
		return faults.New(faults.CodeInputMissingRequired,
			"when requires either utc or local_datetime")
	case w.UTC != "" && w.LocalDatetime != "":
		return faults.New(faults.CodeInputInvalid,
			"when carries both utc and local_datetime; provide one")
	case w.LocalDatetime != "" && w.Place == nil && w.Zone == "" && w.OffsetSec == nil:
		return faults.New(faults.CodeInputMissingRequired,
			"local_datetime requires a place, zone or offset to resolve against")
	}
	return nil
}

// AyanamshaInput names the sidereal offset to apply.
type AyanamshaInput struct {
	ID string `json:"id"`
}

// FrameInput selects the output reference plane; empty means ecliptic of
// date.
type FrameInput struct {
	Type string `json:"type,omitempty"`
}

// frameSpec pairs the frame with the request's epoch-of selector,
// defaulting the epoch to the only legal partner of each plane.
func frameSpec(frame *FrameInput, epoch string) compute.FrameSpec {
	ft := compute.FrameEclipticOfDate
	if frame != nil && frame.Type != "" {
		ft = compute.FrameType(frame.Type)
	}
	eo := compute.EpochOf(epoch)
	if eo == "" {
		if ft == compute.FrameEquatorial {
			eo = compute.EpochJ2000
		} else {
			eo = compute.EpochOfDate
		}
	}
	return compute.FrameSpec{Type: ft, EpochOf: eo}
}

// PositionsRequest is the body of POST /v1/positions.
type PositionsRequest struct {
	When      WhenInput       `json:"when"`
	System    string          `json:"system" validate:"required,oneof=tropical sidereal"`
	Ayanamsha *AyanamshaInput `json:"ayanamsha,omitempty"`
	Frame     *FrameInput     `json:"frame,omitempty"`
	Epoch     string          `json:"epoch,omitempty" validate:"omitempty,oneof=of_date J2000"`
	Bodies    []string        `json:"bodies" validate:"required,min=1"`
}

// Provenance records which data and policies produced a positions
// response.
type Provenance struct {
	System            string             `json:"system"`
	Frame             string             `json:"frame"`
	Epoch             string             `json:"epoch"`
	Ephemeris         string             `json:"ephemeris"`
	Ayanamsha         string             `json:"ayanamsha,omitempty"`
	AyanamshaDeg      *float64           `json:"ayanamsha_deg,omitempty"`
	BundleChecksums   map[string]string  `json:"bundle_checksums"`
	ObserverFrameUsed string             `json:"observer_frame_used"`
	TimeResolution    *chrono.Resolution `json:"time_resolution,omitempty"`
}

// computedPayload is the cacheable part of a positions response: a pure
// function of the fingerprint, shared across callers. The time
// resolution is attached afterwards because it carries provenance of the
// entered string, which the fingerprint deliberately forgets.
type computedPayload struct {
	UTC        string                 `json:"utc"`
	Bodies     []compute.BodyPosition `json:"bodies"`
	Provenance Provenance             `json:"provenance"`
}

// PositionsResponse is the body of a successful positions call.
type PositionsResponse = computedPayload

// TimeResolveRequest is the body of POST /v1/time/resolve.
type TimeResolveRequest struct {
	LocalDatetime string      `json:"local_datetime" validate:"required"`
	Place         *PlaceInput `json:"place,omitempty"`
	Zone          string      `json:"zone,omitempty"`
	OffsetSec     *int        `json:"offset_sec,omitempty"`
	ParityProfile string      `json:"parity_profile,omitempty"`
}

// Place is one geocoding result.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AyanamshaInfo is one registry row in /v1/ayanamshas.
type AyanamshaInfo struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

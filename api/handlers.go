package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/siderealabs/ephemerisd/chrono"
	"github.com/siderealabs/ephemerisd/ephemeris/pool"
	"github.com/siderealabs/ephemerisd/faults"
)

func (s *Service) handleTimeResolve(w http.ResponseWriter, r *http.Request) {
	var req TimeResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFault(w, faults.New(faults.CodeInputInvalidFormat, "request body is not valid JSON"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeFault(w, faults.Newf(faults.CodeInputInvalid, "invalid request: %v", err))
		return
	}
	in := chrono.Request{
		Local:     req.LocalDatetime,
		Zone:      req.Zone,
		OffsetSec: req.OffsetSec,
		Profile:   chrono.Profile(req.ParityProfile),
	}
	if req.Place != nil {
		in.LatDeg = req.Place.Lat
		in.LonDeg = req.Place.Lon
	} else if req.Zone == "" && req.OffsetSec == nil {
		writeFault(w, faults.New(faults.CodeInputMissingRequired,
			"local_datetime requires a place, zone or offset to resolve against"))
		return
	}
	resolution, err := s.cfg.Resolver.Resolve(in)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

// nominatimPlace is the subset of the upstream geocoder's response the
// service forwards.
type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (s *Service) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeFault(w, faults.New(faults.CodeInputMissingRequired, "query parameter q is required"))
		return
	}
	if s.cfg.GeocoderURL == "" {
		writeFault(w, faults.New(faults.CodeInternal, "no geocoding backend is configured"))
		return
	}

	limit := 8
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 20 {
			writeFault(w, faults.New(faults.CodeInputInvalid, "limit must be an integer between 1 and 20"))
			return
		}
		limit = n
	}

	u := s.cfg.GeocoderURL + "?format=json&limit=" + strconv.Itoa(limit) + "&q=" + url.QueryEscape(q)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u, nil)
	if err != nil {
		writeFault(w, faults.New(faults.CodeInternal, "an internal error occurred"))
		return
	}
	req.Header.Set("User-Agent", "ephemerisd")
	resp, err := s.geocodeClient.Do(req)
	if err != nil {
		writeFault(w, faults.New(faults.CodeInternal, "the geocoding backend is unreachable"))
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close geocoder response body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		writeFault(w, faults.Newf(faults.CodeInternal, "the geocoding backend returned status %d", resp.StatusCode))
		return
	}
	var upstream []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&upstream); err != nil {
		writeFault(w, faults.New(faults.CodeInternal, "the geocoding backend returned a malformed response"))
		return
	}

	places := make([]Place, 0, len(upstream))
	for _, p := range upstream {
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lon, errLon := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		places = append(places, Place{Name: p.DisplayName, Latitude: lat, Longitude: lon})
	}
	writeJSON(w, http.StatusOK, places)
}

func (s *Service) handleAyanamshas(w http.ResponseWriter, _ *http.Request) {
	entries := s.cfg.Ayanamshas.List()
	out := make([]AyanamshaInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, AyanamshaInfo{ID: e.ID, Kind: e.Kind})
	}
	writeJSON(w, http.StatusOK, out)
}

type bundleHealth struct {
	ID      string            `json:"id"`
	StartJD float64           `json:"start_jd"`
	EndJD   float64           `json:"end_jd"`
	Files   map[string]string `json:"files"`
}

type healthResponse struct {
	Status       string            `json:"status"`
	Started      string            `json:"started"`
	Services     map[string]string `json:"services"`
	Pools        []pool.Health     `json:"pools"`
	CacheEntries int               `json:"cache_entries"`
	CacheL2      string            `json:"cache_l2,omitempty"`
	Bundles      []bundleHealth    `json:"bundles"`
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Started:  humanize.Time(s.started),
		Services: map[string]string{},
	}
	if s.cfg.Registry != nil {
		for kind, err := range s.cfg.Registry.Statuses() {
			if err == nil {
				resp.Services[kind.String()] = "OK"
			} else {
				resp.Status = "degraded"
				resp.Services[kind.String()] = "ERROR " + err.Error()
			}
		}
	}
	for _, b := range s.cfg.Bundles {
		resp.Bundles = append(resp.Bundles, bundleHealth{
			ID:      b.ID(),
			StartJD: b.Window().StartJD,
			EndJD:   b.Window().EndJD,
			Files:   b.Checksums(),
		})
		if p, ok := s.cfg.Pools[b.ID()]; ok {
			resp.Pools = append(resp.Pools, p.Health())
		}
	}
	if s.cfg.Cache != nil {
		resp.CacheEntries = s.cfg.Cache.Len()
		if ok, err := s.cfg.Cache.PingL2(r.Context()); ok {
			if err != nil {
				resp.Status = "degraded"
				resp.CacheL2 = "ERROR " + err.Error()
			} else {
				resp.CacheL2 = "OK"
			}
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/siderealabs/ephemerisd/cache"
	"github.com/siderealabs/ephemerisd/chrono"
	"github.com/siderealabs/ephemerisd/ephemeris/ayanamsha"
	"github.com/siderealabs/ephemerisd/ephemeris/compute"
	"github.com/siderealabs/ephemerisd/ephemeris/kernel"
	"github.com/siderealabs/ephemerisd/ephemeris/pool"
	"github.com/siderealabs/ephemerisd/faults"
	"github.com/siderealabs/ephemerisd/ratelimit"
	"github.com/siderealabs/ephemerisd/testing/assert"
	"github.com/siderealabs/ephemerisd/testing/require"
)

// stubEngine serves fixed distinct positions per target so the full HTTP
// stack can run without DE kernel files.
type stubEngine struct{}

func (stubEngine) State(jd float64, target, center compute.Target) (compute.StateVec, error) {
	pos := func(tg compute.Target) compute.Vec3 {
		if tg == compute.TargetSSB {
			return compute.Vec3{}
		}
		return compute.Vec3{2 * float64(tg), 1, 0.5}
	}
	return compute.StateVec{Pos: pos(target).Sub(pos(center))}, nil
}

func (stubEngine) Close() error { return nil }

const testLeapYAML = `
- {jd: 2441317.5, tai_utc: 10}
- {jd: 2457754.5, tai_utc: 37}
`

const testAyanamshaYAML = `
- {id: lahiri, kind: formula, formula: lahiri}
- {id: deluce, kind: fixed, reference_epoch_jd: 2451545.0, offset_at_epoch_deg: 26.24, rate_arcsec_per_year: 50.29}
`

func testBundle(t *testing.T, id string, startJD, endJD float64) *kernel.Bundle {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{"ephem.bin": "stub " + id, "leapseconds.yaml": testLeapYAML}
	kinds := map[string]string{"ephem.bin": "spk", "leapseconds.yaml": "leapseconds"}
	manifest := fmt.Sprintf("id: %s\ncoverage: {start_jd: %f, end_jd: %f}\n", id, startJD, endJD)
	manifest += "constants: {au_km: 149597870.7, earth_radius_km: 6378.1366, earth_flattening: 0.00335281}\nfiles:\n"
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
		sum := sha256.Sum256([]byte(content))
		manifest += fmt.Sprintf("  - {path: %s, sha256: %s, kind: %s}\n", name, hex.EncodeToString(sum[:]), kinds[name])
	}
	mp := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(mp, []byte(manifest), 0600))
	b, err := kernel.Open(mp)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

var (
	sharedResolver     *chrono.Resolver
	sharedResolverOnce sync.Once
)

func testResolver(t *testing.T) *chrono.Resolver {
	t.Helper()
	sharedResolverOnce.Do(func() {
		r, err := chrono.NewResolver(nil)
		if err != nil {
			t.Fatalf("build resolver: %v", err)
		}
		sharedResolver = r
	})
	require.NotNil(t, sharedResolver)
	return sharedResolver
}

func testRegistry(t *testing.T) *ayanamsha.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ayanamshas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testAyanamshaYAML), 0600))
	r, err := ayanamsha.LoadRegistry(path)
	require.NoError(t, err)
	return r
}

// newTestService wires the production shape: a DE440 bundle covering
// 1550-2650 and a longer-span DE441 fallback, each with its own pool.
func newTestService(t *testing.T, limiter *ratelimit.Limiter) *Service {
	t.Helper()
	return newTestServiceWithCache(t, limiter, nil)
}

func newTestServiceWithCache(t *testing.T, limiter *ratelimit.Limiter, c *cache.Cache) *Service {
	t.Helper()
	bundles := []*kernel.Bundle{
		testBundle(t, "DE440", 2287184.5, 2688976.5),
		testBundle(t, "DE441", 1721057.5, 2688976.5),
	}
	pools := make(map[string]*pool.Pool, len(bundles))
	for _, b := range bundles {
		b := b
		p := pool.New(pool.Config{
			BundleID: b.ID(),
			Workers:  1,
			Spawn: pool.LocalSpawn(func() (*compute.Core, error) {
				return compute.NewCore(stubEngine{}, b), nil
			}),
		})
		p.Start()
		t.Cleanup(func() {
			require.NoError(t, p.Stop())
		})
		pools[b.ID()] = p
	}

	if c == nil {
		var err error
		c, err = cache.New(cache.Config{})
		require.NoError(t, err)
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{Disabled: true})
	}
	return NewService(&Config{
		Host:           "127.0.0.1",
		Bundles:        bundles,
		Pools:          pools,
		Ayanamshas:     testRegistry(t),
		Resolver:       testResolver(t),
		Cache:          c,
		Limiter:        limiter,
		AllowedOrigins: []string{"*"},
	})
}

func positionsBody(mutate func(map[string]interface{})) []byte {
	m := map[string]interface{}{
		"when": map[string]interface{}{
			"local_datetime": "2019-07-04 12:00",
			"zone":           "America/New_York",
			"place":          map[string]interface{}{"lat": 40.7128, "lon": -74.0060},
		},
		"bodies": []string{"Sun", "Moon", "MeanNode"},
		"system": "tropical",
	}
	if mutate != nil {
		mutate(m)
	}
	b, _ := json.Marshal(m)
	return b
}

func doPositions(t *testing.T, s *Service, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/positions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeFault(t *testing.T, rr *httptest.ResponseRecorder) faults.Fault {
	t.Helper()
	var f faults.Fault
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &f))
	return f
}

func TestPositions_OK(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(nil), nil)
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	assert.NotEqual(t, "", rr.Header().Get("ETag"))
	assert.NotEqual(t, "", rr.Header().Get("X-Request-Id"))

	var resp PositionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "2019-07-04T16:00:00Z", resp.UTC)
	require.Equal(t, 3, len(resp.Bodies))
	for _, p := range resp.Bodies {
		require.NotNil(t, p.LonDeg, "body %s missing longitude", p.Name)
		assert.Equal(t, true, *p.LonDeg >= 0 && *p.LonDeg < 360)
	}
	assert.Equal(t, "tropical", resp.Provenance.System)
	assert.Equal(t, "ecliptic_of_date", resp.Provenance.Frame)
	assert.Equal(t, "of_date", resp.Provenance.Epoch)
	assert.Equal(t, "DE440", resp.Provenance.Ephemeris)
	assert.Equal(t, compute.ObserverFrameFallback, resp.Provenance.ObserverFrameUsed)
	assert.Equal(t, 2, len(resp.Provenance.BundleChecksums))
	require.NotNil(t, resp.Provenance.TimeResolution)
	assert.Equal(t, "America/New_York", resp.Provenance.TimeResolution.ZoneID)
	assert.Equal(t, -4*3600, resp.Provenance.TimeResolution.OffsetSec)
}

func TestPositions_UTCPassthroughIsGeocentric(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["when"] = map[string]interface{}{"utc": "2019-07-04T16:00:00Z"}
	}), nil)
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var resp PositionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "2019-07-04T16:00:00Z", resp.UTC)
	assert.Equal(t, compute.ObserverFrameGeocentric, resp.Provenance.ObserverFrameUsed)
	assert.Equal(t, (*chrono.Resolution)(nil), resp.Provenance.TimeResolution)
}

func TestPositions_AutoHandoffToLongSpanBundle(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["when"] = map[string]interface{}{"utc": "1066-10-14T12:00:00Z"}
	}), nil)
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var resp PositionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "DE441", resp.Provenance.Ephemeris)
}

func TestPositions_BundleSelectionUsesEphemerisTimescale(t *testing.T) {
	s := newTestService(t, nil)
	// Fifteen seconds before DE440's coverage start in UTC, but ~27 s past
	// it in TDB: the short-span bundle must win.
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["when"] = map[string]interface{}{"utc": "1549-12-30T23:59:45Z"}
	}), nil)
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var resp PositionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "DE440", resp.Provenance.Ephemeris)
}

func TestPositions_WhenValidation(t *testing.T) {
	s := newTestService(t, nil)

	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["when"] = map[string]interface{}{}
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputMissingRequired, decodeFault(t, rr).Code)

	rr = doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["when"] = map[string]interface{}{
			"utc":            "2019-07-04T16:00:00Z",
			"local_datetime": "2019-07-04 12:00",
		}
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputInvalid, decodeFault(t, rr).Code)

	rr = doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["when"] = map[string]interface{}{"utc": "July 4th, 2019"}
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputInvalidFormat, decodeFault(t, rr).Code)
}

func TestPositions_ETagStableAndConditional(t *testing.T) {
	s := newTestService(t, nil)
	first := doPositions(t, s, positionsBody(nil), nil)
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEqual(t, "", etag)

	second := doPositions(t, s, positionsBody(nil), nil)
	assert.Equal(t, etag, second.Header().Get("ETag"), "equal requests must share an ETag")

	conditional := doPositions(t, s, positionsBody(nil), map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, conditional.Code)
	assert.Equal(t, 0, conditional.Body.Len())
}

func TestPositions_BodyOrderDoesNotChangeETag(t *testing.T) {
	s := newTestService(t, nil)
	a := doPositions(t, s, positionsBody(nil), nil)
	b := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["bodies"] = []string{"MeanNode", "Sun", "Moon"}
	}), nil)
	assert.Equal(t, a.Header().Get("ETag"), b.Header().Get("ETag"))
}

func TestPositions_MalformedJSON(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, []byte("{not json"), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputInvalidFormat, decodeFault(t, rr).Code)
}

func TestPositions_MissingRequired(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		delete(m, "bodies")
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputInvalid, decodeFault(t, rr).Code)
}

func TestPositions_UnknownBody(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["bodies"] = []string{"Sun", "Vulcan"}
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeBodiesUnsupported, decodeFault(t, rr).Code)
}

func TestPositions_SiderealNeedsAyanamsha(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["system"] = "sidereal"
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeAyanamshaRequired, decodeFault(t, rr).Code)

	rr = doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["system"] = "sidereal"
		m["ayanamsha"] = map[string]string{"id": "not_a_real_one"}
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeAyanamshaUnsupported, decodeFault(t, rr).Code)
}

func TestPositions_TropicalRejectsAyanamsha(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["ayanamsha"] = map[string]string{"id": "lahiri"}
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeSystemIncompatible, decodeFault(t, rr).Code)
}

func TestPositions_SiderealEquatorialIncompatible(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["system"] = "sidereal"
		m["ayanamsha"] = map[string]string{"id": "lahiri"}
		m["frame"] = map[string]string{"type": "equatorial"}
		m["epoch"] = "J2000"
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeSystemIncompatible, decodeFault(t, rr).Code)
}

func TestPositions_IllegalFramePair(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["frame"] = map[string]string{"type": "ecliptic_of_date"}
		m["epoch"] = "J2000"
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputInvalid, decodeFault(t, rr).Code)
}

func TestPositions_EquatorialDefaultsToJ2000(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["frame"] = map[string]string{"type": "equatorial"}
		m["bodies"] = []string{"Sun"}
	}), nil)
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var resp PositionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "J2000", resp.Provenance.Epoch)
	require.Equal(t, 1, len(resp.Bodies))
	require.NotNil(t, resp.Bodies[0].RAHours)
	require.NotNil(t, resp.Bodies[0].DecDeg)
	assert.Equal(t, true, *resp.Bodies[0].RAHours >= 0 && *resp.Bodies[0].RAHours < 24)
}

func TestPositions_SiderealShiftsLongitude(t *testing.T) {
	s := newTestService(t, nil)
	trop := doPositions(t, s, positionsBody(nil), nil)
	require.Equal(t, http.StatusOK, trop.Code)
	sid := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["system"] = "sidereal"
		m["ayanamsha"] = map[string]string{"id": "lahiri"}
	}), nil)
	require.Equal(t, http.StatusOK, sid.Code, "body: %s", sid.Body.String())

	assert.NotEqual(t, trop.Header().Get("ETag"), sid.Header().Get("ETag"))
	var sidResp PositionsResponse
	require.NoError(t, json.Unmarshal(sid.Body.Bytes(), &sidResp))
	assert.Equal(t, "lahiri", sidResp.Provenance.Ayanamsha)
	require.NotNil(t, sidResp.Provenance.AyanamshaDeg)
	assert.Equal(t, true, *sidResp.Provenance.AyanamshaDeg > 20 && *sidResp.Provenance.AyanamshaDeg < 30)
}

func TestPositions_EpochOutsideCoverage(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["when"] = map[string]interface{}{
			"local_datetime": "2900-01-01 12:00",
			"zone":           "America/New_York",
		}
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeRangeOutside, decodeFault(t, rr).Code)
}

func TestPositions_UnresolvableDatetime(t *testing.T) {
	s := newTestService(t, nil)
	rr := doPositions(t, s, positionsBody(func(m map[string]interface{}) {
		m["when"] = map[string]interface{}{
			"local_datetime": "the day the music died",
			"zone":           "America/New_York",
		}
	}), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeTimeResolutionFailed, decodeFault(t, rr).Code)
}

func TestTimeResolve_OK(t *testing.T) {
	s := newTestService(t, nil)
	body, _ := json.Marshal(map[string]interface{}{
		"local_datetime": "2019-11-03 01:30",
		"zone":           "America/New_York",
		"place":          map[string]interface{}{"lat": 40.7128, "lon": -74.0060},
		"parity_profile": "astro_com",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/time/resolve", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var res chrono.Resolution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, -4*3600, res.OffsetSec)
	assert.Equal(t, chrono.ConfidenceMedium, res.Confidence)
	require.Equal(t, 1, len(res.Warnings))
}

func TestTimeResolve_NeedsPlaceOrZone(t *testing.T) {
	s := newTestService(t, nil)
	body, _ := json.Marshal(map[string]interface{}{"local_datetime": "2019-11-03 01:30"})
	req := httptest.NewRequest(http.MethodPost, "/v1/time/resolve", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputMissingRequired, decodeFault(t, rr).Code)
}

func TestAyanamshas_List(t *testing.T) {
	s := newTestService(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/ayanamshas", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var list []AyanamshaInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Equal(t, 2, len(list))
	assert.Equal(t, "deluce", list[0].ID)
	assert.Equal(t, "lahiri", list[1].ID)
}

func TestGeocode(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Fort Knox", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`[{"display_name": "Fort Knox, Kentucky", "lat": "37.8403", "lon": "-85.9491"}]`))
		assert.NoError(t, err)
	}))
	defer upstream.Close()

	s := newTestService(t, nil)
	s.cfg.GeocoderURL = upstream.URL

	req := httptest.NewRequest(http.MethodGet, "/v1/geocode/search?q=Fort+Knox&limit=3", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var places []Place
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &places))
	require.Equal(t, 1, len(places))
	assert.Equal(t, "Fort Knox, Kentucky", places[0].Name)
	assert.Equal(t, 37.8403, places[0].Latitude)

	// Missing query parameter.
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/geocode/search", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputMissingRequired, decodeFault(t, rr).Code)

	// Out-of-range limit.
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/geocode/search?q=x&limit=99", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, faults.CodeInputInvalid, decodeFault(t, rr).Code)
}

func TestHealthz(t *testing.T) {
	s := newTestService(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var h healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	require.Equal(t, 2, len(h.Bundles))
	assert.Equal(t, "DE440", h.Bundles[0].ID)
	assert.Equal(t, 2, len(h.Bundles[0].Files))
	require.Equal(t, 2, len(h.Pools))
	assert.Equal(t, "DE440", h.Pools[0].Bundle)
	assert.Equal(t, "", h.CacheL2, "no shared tier configured, nothing to report")
}

func TestHealthz_CacheTierReachability(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.New(cache.Config{Redis: rdb})
	require.NoError(t, err)
	s := newTestServiceWithCache(t, nil, c)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var h healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &h))
	assert.Equal(t, "OK", h.CacheL2)

	mr.Close()
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &h))
	assert.Equal(t, "degraded", h.Status)
	assert.StringContains(t, "ERROR", h.CacheL2)
}

func TestRateLimit_429WithRetryAfter(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		Rules: []ratelimit.Rule{{ID: "ip", Source: "ip", PerSecond: 0.5, Burst: 1}},
	})
	s := newTestService(t, limiter)

	first := doPositions(t, s, positionsBody(nil), nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doPositions(t, s, positionsBody(nil), nil)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, faults.CodeRateLimited, decodeFault(t, second).Code)
	assert.NotEqual(t, "", second.Header().Get("Retry-After"))
}

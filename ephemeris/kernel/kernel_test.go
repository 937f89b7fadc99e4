package kernel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/siderealabs/ephemerisd/faults"
	"github.com/siderealabs/ephemerisd/testing/assert"
	"github.com/siderealabs/ephemerisd/testing/require"
)

const leapYAML = `
- {jd: 2441317.5, tai_utc: 10}
- {jd: 2457754.5, tai_utc: 37}
`

const eopYAML = `
window: {start_jd: 2441317.5, end_jd: 2460000.5}
entries:
  - {jd: 2441317.5, dut1_sec: 0.1}
  - {jd: 2460000.5, dut1_sec: -0.3}
`

func writeBundle(t *testing.T, dir, id string, startJD, endJD float64) string {
	t.Helper()
	files := map[string]string{
		"ephem.bin":        "not a real spk, but digested like one",
		"leapseconds.yaml": leapYAML,
		"eop.yaml":         eopYAML,
	}
	manifest := fmt.Sprintf("id: %s\ncoverage: {start_jd: %f, end_jd: %f}\n", id, startJD, endJD)
	manifest += "constants: {au_km: 149597870.7, earth_radius_km: 6378.1366, earth_flattening: 0.00335281}\n"
	manifest += "files:\n"
	kinds := map[string]string{"ephem.bin": "spk", "leapseconds.yaml": "leapseconds", "eop.yaml": "eop"}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
		sum := sha256.Sum256([]byte(content))
		manifest += fmt.Sprintf("  - {path: %s, sha256: %s, kind: %s}\n", name, hex.EncodeToString(sum[:]), kinds[name])
	}
	manifest += "bodies:\n  - {name: Pluto, start_jd: 2400000.5, end_jd: 2500000.5}\n"
	mp := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(mp, []byte(manifest), 0600))
	return mp
}

func TestOpen_VerifiesAndPins(t *testing.T) {
	dir := t.TempDir()
	mp := writeBundle(t, dir, "DE440", 2287184.5, 2688976.5)

	b, err := Open(mp)
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, "DE440", b.ID())
	assert.Equal(t, filepath.Join(dir, "ephem.bin"), b.SPKPath())
	assert.Equal(t, 3, len(b.Checksums()))
	assert.NotNil(t, b.Leap())
	assert.NotNil(t, b.EOP())
}

func TestOpen_MissingFile(t *testing.T) {
	dir := t.TempDir()
	mp := writeBundle(t, dir, "DE440", 2287184.5, 2688976.5)
	require.NoError(t, os.Remove(filepath.Join(dir, "ephem.bin")))

	_, err := Open(mp)
	f, ok := faults.As(err)
	require.Equal(t, true, ok)
	assert.Equal(t, faults.CodeKernelsNotAvailable, f.Code)
}

func TestOpen_ChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	mp := writeBundle(t, dir, "DE440", 2287184.5, 2688976.5)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ephem.bin"), []byte("tampered"), 0600))

	_, err := Open(mp)
	f, ok := faults.As(err)
	require.Equal(t, true, ok)
	assert.Equal(t, faults.CodeKernelsCorruption, f.Code)
}

func TestCoverage_BodyOverrideNarrows(t *testing.T) {
	dir := t.TempDir()
	mp := writeBundle(t, dir, "DE440", 2287184.5, 2688976.5)
	b, err := Open(mp)
	require.NoError(t, err)
	defer b.Release()

	w, err := b.Coverage("Sun")
	require.NoError(t, err)
	assert.Equal(t, 2287184.5, w.StartJD)

	w, err = b.Coverage("Pluto")
	require.NoError(t, err)
	assert.Equal(t, 2400000.5, w.StartJD)
	assert.Equal(t, 2500000.5, w.EndJD)
}

func TestRelease_Idempotent(t *testing.T) {
	dir := t.TempDir()
	mp := writeBundle(t, dir, "DE440", 2287184.5, 2688976.5)
	b, err := Open(mp)
	require.NoError(t, err)

	b.Release()
	b.Release()
	_, err = b.Coverage("Sun")
	assert.ErrorContains(t, "released", err)
}

func TestLeapTable_TDB(t *testing.T) {
	dir := t.TempDir()
	lp := filepath.Join(dir, "leap.yaml")
	require.NoError(t, os.WriteFile(lp, []byte(leapYAML), 0600))
	lt, err := LoadLeapTable(lp)
	require.NoError(t, err)

	t1972 := time.Date(1972, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 10.0, lt.TAIMinusUTC(t1972))

	t2020 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 37.0, lt.TAIMinusUTC(t2020))

	// J2000 epoch: 2000-01-01T11:58:55.816Z is within a second of
	// TDB seconds == 0.
	j2000 := time.Date(2000, 1, 1, 11, 58, 55, 816000000, time.UTC)
	sec := lt.TDBSeconds(j2000)
	if math.Abs(sec) > 1.0 {
		t.Fatalf("TDB seconds at J2000 = %f, want ~0", sec)
	}

	// Round trip through EpochJD.
	jd := lt.TDBJD(t2020)
	assert.Equal(t, jd, EpochJD(lt.TDBSeconds(t2020)))
}

func TestUTCJD_UnixEpoch(t *testing.T) {
	jd := UTCJD(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2440587.5, jd)
}

func TestEOPTable_Interpolation(t *testing.T) {
	dir := t.TempDir()
	ep := filepath.Join(dir, "eop.yaml")
	require.NoError(t, os.WriteFile(ep, []byte(eopYAML), 0600))
	et, err := LoadEOPTable(ep)
	require.NoError(t, err)

	// Outside the window: not covered.
	_, ok := et.DUT1(2400000.5)
	assert.Equal(t, false, ok)

	// Midpoint interpolates linearly.
	mid := (2441317.5 + 2460000.5) / 2
	v, ok := et.DUT1(mid)
	require.Equal(t, true, ok)
	if math.Abs(v-(-0.1)) > 1e-9 {
		t.Fatalf("midpoint dut1 = %f, want -0.1", v)
	}
}

func TestSelect_AutoHandoff(t *testing.T) {
	dir440 := t.TempDir()
	dir441 := t.TempDir()
	b440, err := Open(writeBundle(t, dir440, "DE440", 2287184.5, 2688976.5))
	require.NoError(t, err)
	defer b440.Release()
	b441, err := Open(writeBundle(t, dir441, "DE441", 625360.5, 5583772.5))
	require.NoError(t, err)
	defer b441.Release()

	ordered := []*Bundle{b440, b441}

	// Inside DE440: DE440 wins even though DE441 also covers it.
	b, err := Select(ordered, 2451545.0)
	require.NoError(t, err)
	assert.Equal(t, "DE440", b.ID())

	// 1066-10-14 is outside DE440 but inside DE441.
	b, err = Select(ordered, 2110700.5)
	require.NoError(t, err)
	assert.Equal(t, "DE441", b.ID())

	// Exactly at the DE440 boundary still succeeds.
	b, err = Select(ordered, 2287184.5)
	require.NoError(t, err)
	assert.Equal(t, "DE440", b.ID())

	// Year -20000 is outside everything.
	_, err = Select(ordered, -5000000)
	f, ok := faults.As(err)
	require.Equal(t, true, ok)
	assert.Equal(t, faults.CodeRangeOutside, f.Code)
}

package node

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/siderealabs/ephemerisd/api"
	"github.com/siderealabs/ephemerisd/monitoring/prometheus"
	"github.com/siderealabs/ephemerisd/testing/assert"
	"github.com/siderealabs/ephemerisd/testing/require"
)

const testLeapYAML = `
- {jd: 2441317.5, tai_utc: 10}
- {jd: 2457754.5, tai_utc: 37}
`

const testAyanamshaYAML = `
- {id: lahiri, kind: formula, formula: lahiri}
`

func writeBundle(t *testing.T, dir, id string) string {
	t.Helper()
	files := map[string]string{"ephem.bin": "stub " + id, "leapseconds.yaml": testLeapYAML}
	kinds := map[string]string{"ephem.bin": "spk", "leapseconds.yaml": "leapseconds"}
	manifest := fmt.Sprintf("id: %s\ncoverage: {start_jd: 2287184.5, end_jd: 2688976.5}\n", id)
	manifest += "constants: {au_km: 149597870.7, earth_radius_km: 6378.1366, earth_flattening: 0.00335281}\nfiles:\n"
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
		sum := sha256.Sum256([]byte(content))
		manifest += fmt.Sprintf("  - {path: %s, sha256: %s, kind: %s}\n", name, hex.EncodeToString(sum[:]), kinds[name])
	}
	mp := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(mp, []byte(manifest), 0600))
	return mp
}

func testContext(t *testing.T, configPath string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	set := flag.NewFlagSet("test", 0)
	set.String("config", configPath, "")
	return cli.NewContext(app, set, nil)
}

func writeConfig(t *testing.T, manifests map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "ayanamshas.yaml")
	require.NoError(t, os.WriteFile(registryPath, []byte(testAyanamshaYAML), 0600))
	cfg := "http_port: 0\nmonitoring_port: 0\ndisable_rate_limit: true\nbundles:\n"
	for id, manifest := range manifests {
		cfg += fmt.Sprintf("  - {id: %s, manifest: %s}\n", id, manifest)
	}
	cfg += fmt.Sprintf("ayanamsha_registry: %s\n", registryPath)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}

func TestNew_WiresAllServices(t *testing.T) {
	manifests := map[string]string{
		"DE440": writeBundle(t, t.TempDir(), "DE440"),
		"DE441": writeBundle(t, t.TempDir(), "DE441"),
	}
	n, err := New(testContext(t, writeConfig(t, manifests)))
	require.NoError(t, err)

	require.Equal(t, 2, len(n.bundles))

	var apiSvc *api.Service
	require.NoError(t, n.services.FetchService(&apiSvc))
	var monSvc *prometheus.Service
	require.NoError(t, n.services.FetchService(&monSvc))

	n.Close()
	select {
	case <-n.stop:
	default:
		t.Fatal("stop channel still open after Close")
	}
}

func TestNew_MissingBundleManifest(t *testing.T) {
	manifests := map[string]string{"DE440": "/nonexistent/manifest.yaml"}
	_, err := New(testContext(t, writeConfig(t, manifests)))
	assert.NotNil(t, err)
}

func TestNew_MissingConfigFile(t *testing.T) {
	_, err := New(testContext(t, filepath.Join(t.TempDir(), "absent.yaml")))
	assert.NotNil(t, err)
}

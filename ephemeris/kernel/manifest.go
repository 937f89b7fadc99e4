// Package kernel loads, verifies and pins ephemeris kernel bundles. A
// bundle is declared by a yaml manifest enumerating every data file with
// its expected SHA-256 digest; the bundle refuses to open unless all
// digests match. The package also owns the bundle-level auxiliary tables
// (leap seconds, Earth orientation) and the DE440/DE441 handoff policy.
package kernel

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/siderealabs/ephemerisd/faults"
)

var log = logrus.WithField("prefix", "kernel")

// File kinds understood by the manifest.
const (
	KindSPK         = "spk"
	KindLeapSeconds = "leapseconds"
	KindEOP         = "eop"
)

// ManifestFile declares one kernel file with its integrity digest.
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Kind   string `json:"kind"`
}

// Window is a closed Julian-date interval.
type Window struct {
	StartJD float64 `json:"start_jd"`
	EndJD   float64 `json:"end_jd"`
}

// Contains reports whether the window covers jd.
func (w Window) Contains(jd float64) bool {
	return jd >= w.StartJD && jd <= w.EndJD
}

// BodyWindow narrows coverage for a single body.
type BodyWindow struct {
	Name    string  `json:"name"`
	StartJD float64 `json:"start_jd"`
	EndJD   float64 `json:"end_jd"`
}

// Constants carries the Earth figure and unit constants the compute core
// needs from the bundle.
type Constants struct {
	AUKm            float64 `json:"au_km"`
	EarthRadiusKm   float64 `json:"earth_radius_km"`
	EarthFlattening float64 `json:"earth_flattening"`
}

// Manifest is the on-disk declaration of a kernel bundle.
type Manifest struct {
	ID        string         `json:"id"`
	Coverage  Window         `json:"coverage"`
	Constants Constants      `json:"constants"`
	Files     []ManifestFile `json:"files"`
	Bodies    []BodyWindow   `json:"bodies,omitempty"`
}

// ReadManifest parses a bundle manifest from disk.
func ReadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, faults.Newf(faults.CodeKernelsNotAvailable, "kernel manifest %s is not readable", path)
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(raw, m); err != nil {
		return nil, errors.Wrapf(err, "could not parse kernel manifest %s", path)
	}
	if m.ID == "" {
		return nil, errors.Errorf("kernel manifest %s has no bundle id", path)
	}
	if len(m.Files) == 0 {
		return nil, errors.Errorf("kernel manifest %s declares no files", path)
	}
	return m, nil
}

// verifyFile digests one declared file and compares against the manifest.
func verifyFile(dir string, f ManifestFile) (string, error) {
	p := filepath.Join(dir, f.Path)
	fh, err := os.Open(filepath.Clean(p))
	if err != nil {
		return "", faults.Newf(faults.CodeKernelsNotAvailable, "kernel file %s is missing", f.Path)
	}
	defer func() {
		if err := fh.Close(); err != nil {
			log.WithError(err).WithField("file", f.Path).Debug("Could not close kernel file")
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", errors.Wrapf(err, "could not digest kernel file %s", f.Path)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if sum != f.SHA256 {
		return "", faults.Newf(faults.CodeKernelsCorruption,
			"kernel file %s failed its integrity check", f.Path)
	}
	return sum, nil
}

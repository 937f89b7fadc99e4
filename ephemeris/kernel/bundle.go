package kernel

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/siderealabs/ephemerisd/faults"
)

// Bundle is a verified, pinned kernel bundle. Immutable after Open.
type Bundle struct {
	id        string
	dir       string
	manifest  *Manifest
	checksums map[string]string
	spkPath   string
	leap      *LeapTable
	eop       *EOPTable

	releaseOnce sync.Once
	released    bool
}

// Open reads the manifest at manifestPath, verifies every declared file
// and loads the auxiliary tables. It fails with KERNELS.NOT_AVAILABLE on
// a missing file and KERNELS.CORRUPTION on a digest mismatch.
func Open(manifestPath string) (*Bundle, error) {
	m, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	dir := dirOf(manifestPath)

	b := &Bundle{
		id:        m.ID,
		dir:       dir,
		manifest:  m,
		checksums: make(map[string]string, len(m.Files)),
	}

	start := time.Now()
	var total uint64
	for _, f := range m.Files {
		sum, err := verifyFile(dir, f)
		if err != nil {
			return nil, err
		}
		b.checksums[f.Path] = sum
		if sz, err := fileSize(dir, f.Path); err == nil {
			total += uint64(sz)
		}
		switch f.Kind {
		case KindSPK:
			b.spkPath = joinDir(dir, f.Path)
		case KindLeapSeconds:
			lt, err := LoadLeapTable(joinDir(dir, f.Path))
			if err != nil {
				return nil, err
			}
			b.leap = lt
		case KindEOP:
			et, err := LoadEOPTable(joinDir(dir, f.Path))
			if err != nil {
				return nil, err
			}
			b.eop = et
		}
	}
	if b.spkPath == "" {
		return nil, faults.Newf(faults.CodeKernelsNotAvailable,
			"bundle %s declares no spk kernel", m.ID)
	}
	if b.leap == nil {
		return nil, faults.Newf(faults.CodeKernelsNotAvailable,
			"bundle %s declares no leap-second table", m.ID)
	}

	log.WithFields(logrus.Fields{
		"bundle":   m.ID,
		"files":    len(m.Files),
		"size":     humanize.Bytes(total),
		"verified": time.Since(start).Round(time.Millisecond),
	}).Info("Kernel bundle verified")
	return b, nil
}

// ID returns the bundle identifier, e.g. "DE440".
func (b *Bundle) ID() string { return b.id }

// SPKPath returns the path of the planetary ephemeris kernel file.
func (b *Bundle) SPKPath() string { return b.spkPath }

// Constants returns the bundle's Earth figure and unit constants.
func (b *Bundle) Constants() Constants { return b.manifest.Constants }

// Leap returns the bundle's leap-second table.
func (b *Bundle) Leap() *LeapTable { return b.leap }

// EOP returns the Earth-orientation table, or nil if the bundle carries
// none.
func (b *Bundle) EOP() *EOPTable { return b.eop }

// Checksums returns path -> verified SHA-256 hex for every bundle file.
func (b *Bundle) Checksums() map[string]string {
	out := make(map[string]string, len(b.checksums))
	for k, v := range b.checksums {
		out[k] = v
	}
	return out
}

// Window returns the bundle-wide coverage interval.
func (b *Bundle) Window() Window { return b.manifest.Coverage }

// Coverage resolves the coverage window for a named body, narrowing the
// bundle window by any per-body override from the manifest.
func (b *Bundle) Coverage(body string) (Window, error) {
	if b.released {
		return Window{}, errors.New("bundle released")
	}
	w := b.manifest.Coverage
	for _, bw := range b.manifest.Bodies {
		if bw.Name == body {
			if bw.StartJD > w.StartJD {
				w.StartJD = bw.StartJD
			}
			if bw.EndJD != 0 && bw.EndJD < w.EndJD {
				w.EndJD = bw.EndJD
			}
			break
		}
	}
	return w, nil
}

// Release drops the bundle's native state. Safe to call multiple times
// and on every process exit path; after Release the bundle refuses
// coverage queries.
func (b *Bundle) Release() {
	b.releaseOnce.Do(func() {
		b.released = true
		log.WithField("bundle", b.id).Info("Kernel bundle released")
	})
}

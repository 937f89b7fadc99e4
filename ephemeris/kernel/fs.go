package kernel

import (
	"os"
	"path/filepath"
)

func dirOf(path string) string {
	return filepath.Dir(filepath.Clean(path))
}

func joinDir(dir, rel string) string {
	return filepath.Join(dir, rel)
}

func fileSize(dir, rel string) (int64, error) {
	fi, err := os.Stat(filepath.Join(dir, rel))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

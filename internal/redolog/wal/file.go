package wal

import (
	"os"
	"path/filepath"
)

// withFile opens path, runs fn, and closes the file on every path. A close
// failure is reported when fn itself succeeded.
func withFile(path string, flag int, fn func(f *os.File) error) (err error) {
	f, err := os.OpenFile(path, flag, 0o600) //nolint:gosec
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(f)
}

// syncDir fsyncs a directory so created, renamed or removed entries persist.
func syncDir(dir string) error {
	return withFile(filepath.Clean(dir), os.O_RDONLY, func(d *os.File) error {
		return d.Sync()
	})
}

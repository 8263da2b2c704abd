package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNetworkFilesystem is wrapped by CheckLocalFilesystem when a sqlite
// database would live on a network mount, where its file locks are unreliable.
var ErrNetworkFilesystem = errors.New("sqlite database is on a network filesystem")

// mount describes the filesystem holding a path.
type mount struct {
	fsType  string
	network bool
}

// CheckLocalFilesystem verifies that path, or the closest ancestor that
// already exists, sits on a local filesystem.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, statMount)
}

func checkLocalFilesystem(path string, stat func(string) (mount, error)) error {
	if path == "" {
		return errors.New("sqlite path is empty")
	}

	probe, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve queue database %q: %w", path, err)
	}

	m, err := stat(probe)
	if err != nil {
		return fmt.Errorf("inspect filesystem of %q: %w", probe, err)
	}
	if m.network {
		return fmt.Errorf("%w: %q is on %s; SQLite requires a local filesystem for reliable locking. "+
			"Point queue.dsn at local disk, or set queue.driver: postgres when workers run on other hosts",
			ErrNetworkFilesystem, path, m.fsType)
	}
	return nil
}

// existingAncestor walks up from path until it finds something that exists.
func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for p := abs; ; p = filepath.Dir(p) {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		case filepath.Dir(p) == p:
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
	}
}

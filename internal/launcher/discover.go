package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/plugctl/plugd/internal/registry"
)

// Discover walks dir recursively and registers every executable regular
// file not yet known to the registry. Already-known paths are skipped
// silently, never treated as an error. It returns the newly registered
// records in walk order.
func (l *Launcher) Discover(dir string) ([]*registry.Record, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var recs []*registry.Record
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Warn().
				Str("event", "discover_skip").
				Str("path", path).
				Err(err).
				Msg("skipping unreadable entry")

			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil || fi.Mode().Perm()&0o111 == 0 {
			return nil
		}

		rec, err := l.registry.Register(path, true)
		if errors.Is(err, registry.ErrAlreadyRegistered) {
			return nil
		}
		recs = append(recs, rec)

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return recs, nil
}

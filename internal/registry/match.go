package registry

import (
	"path/filepath"
	"strings"
)

// Find resolves a user-supplied identifier to a known record. An identifier
// containing a path separator must match the registered path exactly; a
// bare name matches the basename of the registered path. No wildcard or
// prefix matching.
func (g *Registry) Find(identifier string) *Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, rec := range g.ordered {
		if pathsMatch(rec.path, identifier) {
			return rec
		}
	}

	return nil
}

// pathsMatch reports whether identifier designates the registered path.
func pathsMatch(registered, identifier string) bool {
	if strings.ContainsRune(identifier, filepath.Separator) {
		return registered == identifier
	}

	return filepath.Base(registered) == identifier
}

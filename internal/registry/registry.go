// Package registry tracks the plugin processes known to the daemon.
//
// The registry is the single owner of plugin records. All lifecycle
// mutation flows through the control plane's event loop; the internal
// mutex only protects against concurrent reads from transports.
package registry

import (
	"errors"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrAlreadyRegistered is returned when a plugin path is registered twice.
var ErrAlreadyRegistered = errors.New("already registered")

// State is the lifecycle state of a plugin record.
type State int

// Lifecycle states of a plugin.
const (
	StateStarting State = iota // registered, handshake not yet complete
	StateActive                // handshake completed successfully
	StateKilled                // terminated
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateKilled:
		return "killed"
	}

	return "unknown"
}

// Record is one known plugin: the path it was launched with, whether it may
// be controlled at runtime, its lifecycle state and its process handle.
type Record struct {
	mu      sync.Mutex
	path    string
	dynamic bool
	state   State
	proc    *os.Process
}

// Path returns the path or token the plugin was registered with.
func (r *Record) Path() string { return r.path }

// Dynamic reports whether the plugin may be stopped at runtime.
func (r *Record) Dynamic() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.dynamic
}

// State returns the current lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Downgrade marks the record as not runtime-controllable. A manifest may
// only ever downgrade a record, never upgrade a boot-only plugin.
func (r *Record) Downgrade() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dynamic = false
}

// Activate transitions the record out of Starting once its handshake
// completed. Activation survives even when the owning control request has
// already resolved.
func (r *Record) Activate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateStarting {
		r.state = StateActive
	}
}

// AttachProcess stores the spawned process handle on the record.
func (r *Record) AttachProcess(p *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.proc = p
}

// kill terminates the plugin process, if any, and marks the record Killed.
func (r *Record) kill(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc != nil {
		if err := r.proc.Kill(); err != nil {
			log.Debug().
				Str("event", "plugin_kill").
				Str("plugin", r.path).
				Err(err).
				Msg("kill failed, process likely already gone")
		}
		r.proc = nil
	}
	r.state = StateKilled
	log.Info().
		Str("event", "plugin_killed").
		Str("plugin", r.path).
		Str("reason", reason).
		Msg("plugin terminated")
}

// Registry is the ordered set of known plugins, keyed by registration path.
type Registry struct {
	mu      sync.RWMutex
	byPath  map[string]*Record
	ordered []*Record
}

// New creates an empty plugin registry.
func New() *Registry {
	return &Registry{byPath: make(map[string]*Record)}
}

// Register adds a new plugin record in Starting state. It returns
// ErrAlreadyRegistered when the path is already known.
func (g *Registry) Register(path string, dynamic bool) (*Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.byPath[path]; ok {
		return nil, ErrAlreadyRegistered
	}

	rec := &Record{path: path, dynamic: dynamic, state: StateStarting}
	g.byPath[path] = rec
	g.ordered = append(g.ordered, rec)
	log.Debug().
		Str("event", "plugin_registered").
		Str("plugin", path).
		Bool("dynamic", dynamic).
		Msg("plugin registered")

	return rec, nil
}

// Remove deletes a record, rolling back a registration that never
// completed its handshake.
func (g *Registry) Remove(rec *Record) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.remove(rec)
}

// Kill terminates the plugin process behind rec and removes the record.
func (g *Registry) Kill(rec *Record, reason string) {
	rec.kill(reason)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.remove(rec)
}

// remove drops rec from the index and the ordered list. Caller holds g.mu.
func (g *Registry) remove(rec *Record) {
	if _, ok := g.byPath[rec.path]; !ok {
		return
	}
	delete(g.byPath, rec.path)
	for i, r := range g.ordered {
		if r == rec {
			g.ordered = append(g.ordered[:i], g.ordered[i+1:]...)
			break
		}
	}
}

// Snapshot returns the known records in registration order.
func (g *Registry) Snapshot() []*Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Record, len(g.ordered))
	copy(out, g.ordered)

	return out
}

// ActiveCount returns the number of records in Active state.
func (g *Registry) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, rec := range g.ordered {
		if rec.State() == StateActive {
			n++
		}
	}

	return n
}

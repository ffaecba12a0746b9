package control

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/plugctl/plugd/internal/errorcodes"
)

// Command is one parsed control-channel call.
type Command struct {
	Sub    Subcommand
	Target string // plugin path or name for start/stop, directory for startdir
}

// Result is the single terminal outcome of a control request.
type Result struct {
	Reply map[string]any // success payload
	Err   *errorcodes.ControlError
}

// Request tracks one in-flight control call until its resolution. Exactly
// one terminal result is ever delivered; the atomic flag enforces it.
type Request struct {
	id       string
	sub      Subcommand
	resolved atomic.Bool
	done     chan Result
}

func newRequest(sub Subcommand) *Request {
	return &Request{
		id:   uuid.NewString(),
		sub:  sub,
		done: make(chan Result, 1),
	}
}

// ID returns the request handle.
func (r *Request) ID() string { return r.id }

// isResolved reports whether a terminal result was already delivered.
func (r *Request) isResolved() bool { return r.resolved.Load() }

// resolve delivers the terminal result. A second resolution attempt is a
// defect: it is logged and discarded, never replied.
func (r *Request) resolve(res Result) bool {
	if !r.resolved.CompareAndSwap(false, true) {
		log.Error().
			Str("event", "duplicate_resolution").
			Str("request_id", r.id).
			Str("subcommand", r.sub.String()).
			Msg("control request resolved twice, discarding")

		return false
	}
	r.done <- res

	return true
}

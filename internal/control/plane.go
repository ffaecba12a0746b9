// Package control implements the dynamic plugin control plane: dispatch of
// the plugin subcommands and coordination of asynchronous startup cohorts.
package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plugctl/plugd/internal/errorcodes"
	"github.com/plugctl/plugd/internal/metrics"
	"github.com/plugctl/plugd/internal/registry"
)

// Host is the collaborator that spawns plugin processes, runs their
// handshakes and discovers plugin executables on disk. Begin returns a
// synchronous error only when nothing was put in flight; every started
// handshake eventually reports back through MemberSucceeded or
// MemberFailed.
type Host interface {
	Begin(rec *registry.Record, c *Cohort) error
	Discover(dir string) ([]*registry.Record, error)
}

// Options configure the control plane.
type Options struct {
	// DefaultDir is the directory scanned by the rescan subcommand.
	DefaultDir string
	// CohortTimeout bounds how long a cohort may remain unresolved.
	CohortTimeout time.Duration
	// DeprecatedAPIs duplicates the stop reply message under the legacy
	// empty-string key.
	DeprecatedAPIs bool
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// DefaultCohortTimeout bounds unresolved cohorts when none is configured.
const DefaultCohortTimeout = 60 * time.Second

// Plane is the control-plane event loop. All registry mutation, dispatch
// and cohort accounting run on a single goroutine fed by an event queue,
// so completion signals arriving in any order cannot race.
type Plane struct {
	registry *registry.Registry
	host     Host
	opts     Options
	events   chan func()
}

// New creates a control plane over the given registry and plugin host.
func New(reg *registry.Registry, host Host, opts Options) *Plane {
	if opts.CohortTimeout <= 0 {
		opts.CohortTimeout = DefaultCohortTimeout
	}

	return &Plane{
		registry: reg,
		host:     host,
		opts:     opts,
		events:   make(chan func(), 128),
	}
}

// Run processes the event queue until ctx is canceled.
func (p *Plane) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-p.events:
			fn()
		}
	}
}

// post enqueues fn for the event loop.
func (p *Plane) post(fn func()) {
	p.events <- fn
}

// Submit dispatches one control command and blocks until its single
// resolution. List, stop and degenerate start/startdir resolve without
// suspending; the others suspend until their cohort is accounted for or
// times out.
func (p *Plane) Submit(ctx context.Context, cmd Command) Result {
	req := newRequest(cmd.Sub)

	select {
	case p.events <- func() { p.dispatch(req, cmd) }:
	case <-ctx.Done():
		return Result{Err: errorcodes.PluginErrorf("control plane unavailable: %v", ctx.Err())}
	}

	select {
	case res := <-req.done:
		return res
	case <-ctx.Done():
		// The cohort timer still resolves the request internally; the
		// buffered channel absorbs that late result.
		return Result{Err: errorcodes.PluginErrorf("control request canceled: %v", ctx.Err())}
	}
}

// MemberSucceeded is invoked by the handshake layer when a cohort member
// completed its handshake. Safe to call from any goroutine.
func (p *Plane) MemberSucceeded(c *Cohort, rec *registry.Record) {
	p.post(func() { p.memberSucceeded(c, rec) })
}

// MemberFailed is invoked by the handshake layer when a cohort member was
// killed or failed its handshake. Safe to call from any goroutine.
func (p *Plane) MemberFailed(c *Cohort, rec *registry.Record, reason string) {
	p.post(func() { p.memberFailed(c, rec, reason) })
}

// dispatch routes one request. Runs on the event loop.
func (p *Plane) dispatch(req *Request, cmd Command) {
	switch cmd.Sub {
	case SubcommandStart:
		p.startPlugin(req, cmd.Target)
	case SubcommandStop:
		p.stopPlugin(req, cmd.Target)
	case SubcommandStartDir:
		p.startDir(req, cmd.Target)
	case SubcommandRescan:
		p.rescan(req)
	case SubcommandList:
		p.resolveRequest(req, Result{Reply: listReply(p.registry.Snapshot())})
	}
}

// startPlugin registers a single plugin and opens a cohort of one.
func (p *Plane) startPlugin(req *Request, path string) {
	if err := checkExecutable(path); err != nil {
		p.resolveRequest(req, Result{Err: errorcodes.InvalidParamsf("%s is not executable: %v", path, err)})
		return
	}

	rec, err := p.registry.Register(path, true)
	if err != nil {
		p.resolveRequest(req, Result{Err: errorcodes.InvalidParamsf("%s: already registered", path)})
		return
	}

	c := p.newCohort(req, []*registry.Record{rec})
	if err := p.host.Begin(rec, c); err != nil {
		// Nothing in flight: short-circuit without waiting on the cohort.
		p.registry.Remove(rec)
		c.stopTimer()
		p.resolveRequest(req, Result{Err: errorcodes.PluginErrorf("%s: %v", path, err)})
	}
	// Resolution arrives via MemberSucceeded or MemberFailed.
}

// stopPlugin kills a dynamic plugin and resolves synchronously.
func (p *Plane) stopPlugin(req *Request, name string) {
	rec := p.registry.Find(name)
	if rec == nil {
		p.resolveRequest(req, Result{Err: errorcodes.InvalidParamsf("Could not find plugin %s", name)})
		return
	}
	if !rec.Dynamic() {
		p.resolveRequest(req, Result{Err: errorcodes.InvalidParamsf(
			"%s cannot be managed when plugd is up", name)})
		return
	}

	p.registry.Kill(rec, "stopped via control channel")
	p.resolveRequest(req, Result{Reply: stopReply(name, p.opts.DeprecatedAPIs)})
}

// startDir registers every not-yet-known executable under dir and opens a
// cohort over the new registrations.
func (p *Plane) startDir(req *Request, dir string) {
	recs, err := p.host.Discover(dir)
	if err != nil {
		p.resolveRequest(req, Result{Err: errorcodes.InvalidParamsf("Could not open %s: %v", dir, err)})
		return
	}

	p.launchCohort(req, recs)
}

// rescan behaves like startDir against the default directory, except that
// it never fails locally: a missing or unreadable default directory counts
// as nothing new to add.
func (p *Plane) rescan(req *Request) {
	recs, err := p.host.Discover(p.opts.DefaultDir)
	if err != nil {
		log.Warn().
			Str("event", "rescan_skipped").
			Str("directory", p.opts.DefaultDir).
			Err(err).
			Msg("default plugin directory not scannable")
		recs = nil
	}

	p.launchCohort(req, recs)
}

// launchCohort opens a cohort over recs and begins every handshake. An
// empty cohort resolves immediately with the registry snapshot.
func (p *Plane) launchCohort(req *Request, recs []*registry.Record) {
	if len(recs) == 0 {
		p.resolveRequest(req, Result{Reply: listReply(p.registry.Snapshot())})
		return
	}

	c := p.newCohort(req, recs)
	for _, rec := range recs {
		if err := p.host.Begin(rec, c); err != nil {
			// Counts as a member failure; remaining members are still
			// launched so they can activate on their own.
			p.memberFailed(c, rec, err.Error())
		}
	}
}

// newCohort binds a cohort over recs to req and arms the
// unresolved-cohort timer.
func (p *Plane) newCohort(req *Request, recs []*registry.Record) *Cohort {
	c := &Cohort{
		req:      req,
		expected: len(recs),
		pending:  make(map[*registry.Record]struct{}, len(recs)),
	}
	for _, rec := range recs {
		c.pending[rec] = struct{}{}
	}
	c.timer = time.AfterFunc(p.opts.CohortTimeout, func() {
		p.post(func() { p.cohortTimedOut(c) })
	})

	return c
}

// memberSucceeded accounts one successful handshake. Runs on the event loop.
func (p *Plane) memberSucceeded(c *Cohort, rec *registry.Record) {
	// The plugin finished its handshake whether or not anyone is still
	// waiting: activation is unconditional.
	rec.Activate()
	p.opts.Metrics.SetActivePlugins(p.registry.ActiveCount())

	if !c.take(rec) {
		log.Error().
			Str("event", "stray_member_signal").
			Str("request_id", c.req.id).
			Str("plugin", rec.Path()).
			Msg("duplicate or unknown cohort member success discarded")

		return
	}
	if c.req.isResolved() {
		log.Debug().
			Str("event", "late_member_success").
			Str("request_id", c.req.id).
			Str("plugin", rec.Path()).
			Msg("success signal for resolved cohort discarded")

		return
	}

	c.completed++
	if c.completed == c.expected {
		c.stopTimer()
		p.resolveRequest(c.req, Result{Reply: listReply(p.registry.Snapshot())})
	}
}

// memberFailed fails the whole cohort on its first failure. Runs on the
// event loop.
func (p *Plane) memberFailed(c *Cohort, rec *registry.Record, reason string) {
	if !c.take(rec) {
		log.Error().
			Str("event", "stray_member_signal").
			Str("request_id", c.req.id).
			Str("plugin", rec.Path()).
			Str("reason", reason).
			Msg("duplicate or unknown cohort member failure discarded")

		return
	}

	// The failed member's process is already dead; drop its registration.
	// Siblings are deliberately left alone, partial startups are never
	// rolled back here.
	p.registry.Remove(rec)

	if c.req.isResolved() || c.failed {
		log.Debug().
			Str("event", "late_member_failure").
			Str("request_id", c.req.id).
			Str("plugin", rec.Path()).
			Str("reason", reason).
			Msg("failure signal for resolved cohort discarded")

		return
	}

	c.failed = true
	c.stopTimer()
	p.resolveRequest(c.req, Result{Err: errorcodes.PluginErrorf("%s: %s", rec.Path(), reason)})
}

// cohortTimedOut fails a cohort that stayed unresolved past the bound.
// Later completion signals hit the same discard path as post-resolution
// signals. Runs on the event loop.
func (p *Plane) cohortTimedOut(c *Cohort) {
	if c.req.isResolved() {
		return
	}

	c.failed = true
	p.resolveRequest(c.req, Result{Err: errorcodes.PluginErrorf(
		"timed out waiting for %d plugin handshake(s)", c.expected-c.completed)})
}

// resolveRequest delivers the terminal result and records metrics.
func (p *Plane) resolveRequest(req *Request, res Result) {
	if !req.resolve(res) {
		return
	}

	outcome := "success"
	if res.Err != nil {
		switch res.Err.Code {
		case errorcodes.CodeInvalidParams:
			outcome = "invalid_params"
		default:
			outcome = "plugin_error"
		}
	}
	p.opts.Metrics.ObserveRequest(req.sub.String(), outcome)
	p.opts.Metrics.SetActivePlugins(p.registry.ActiveCount())
}

// checkExecutable verifies the start precondition: path names an existing
// regular file with an execute bit set.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return errors.New("permission denied")
	}

	return nil
}

// Package launcher spawns plugin processes and drives their manifest
// handshakes off the control-plane loop.
package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/plugctl/plugd/internal/control"
	"github.com/plugctl/plugd/internal/metrics"
	"github.com/plugctl/plugd/internal/registry"
)

// getmanifest is the single handshake request written to a freshly started
// plugin. The plugin must answer with one JSON line carrying a "result"
// object; "result.dynamic" may downgrade the plugin to boot-only.
const getmanifest = `{"jsonrpc":"2.0","id":0,"method":"getmanifest","params":{}}` + "\n"

// Sink receives handshake outcomes. The control plane implements it.
type Sink interface {
	MemberSucceeded(c *control.Cohort, rec *registry.Record)
	MemberFailed(c *control.Cohort, rec *registry.Record, reason string)
}

// Launcher starts plugin subprocesses and runs their handshakes on a
// bounded worker pool.
type Launcher struct {
	registry *registry.Registry
	sink     Sink
	pool     *ants.Pool
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// New creates a launcher with the given handshake timeout and pool size.
func New(reg *registry.Registry, timeout time.Duration, workers int, m *metrics.Metrics) (*Launcher, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("handshake pool setup failed: %w", err)
	}

	return &Launcher{registry: reg, pool: pool, timeout: timeout, metrics: m}, nil
}

// SetSink binds the completion sink. Must be called before Begin.
func (l *Launcher) SetSink(s Sink) { l.sink = s }

// Close releases the handshake worker pool.
func (l *Launcher) Close() { l.pool.Release() }

// Begin spawns the plugin process behind rec and schedules its manifest
// handshake. A returned error means nothing is in flight for this record;
// once Begin returns nil the outcome always reaches the sink.
func (l *Launcher) Begin(rec *registry.Record, c *control.Cohort) error {
	return l.begin(rec, func(reason string, ok bool) {
		if ok {
			l.sink.MemberSucceeded(c, rec)
		} else {
			l.sink.MemberFailed(c, rec, reason)
		}
	})
}

// BeginDetached starts a plugin outside any control request, for plugins
// loaded at boot. Outcomes only adjust the registry.
func (l *Launcher) BeginDetached(rec *registry.Record) error {
	return l.begin(rec, func(reason string, ok bool) {
		if ok {
			rec.Activate()
			return
		}
		log.Error().
			Str("event", "boot_plugin_failed").
			Str("plugin", rec.Path()).
			Str("reason", reason).
			Msg("boot plugin dropped")
		l.registry.Remove(rec)
	})
}

func (l *Launcher) begin(rec *registry.Record, report func(reason string, ok bool)) error {
	cmd := exec.Command(rec.Path())
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn failed: %w", err)
	}
	rec.AttachProcess(cmd.Process)
	log.Debug().
		Str("event", "plugin_spawned").
		Str("plugin", rec.Path()).
		Int("pid", cmd.Process.Pid).
		Msg("plugin process started")

	task := func() { l.handshake(rec, cmd, stdin, stdout, report) }
	if err := l.pool.Submit(task); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()

		return fmt.Errorf("handshake submission: %w", err)
	}

	return nil
}

// handshake runs the manifest exchange on a pool worker and reports the
// outcome exactly once.
func (l *Launcher) handshake(
	rec *registry.Record,
	cmd *exec.Cmd,
	stdin io.WriteCloser,
	stdout io.ReadCloser,
	report func(reason string, ok bool),
) {
	start := time.Now()

	line, err := l.exchange(stdin, stdout)
	if err != nil {
		l.abort(cmd)
		report(err.Error(), false)

		return
	}

	dynamic, reason, ok := parseManifest(line)
	if !ok {
		l.abort(cmd)
		report(reason, false)

		return
	}
	if !dynamic {
		rec.Downgrade()
	}

	// Reap the plugin once it eventually exits.
	go func() {
		err := cmd.Wait()
		log.Info().
			Str("event", "plugin_exited").
			Str("plugin", rec.Path()).
			AnErr("exit", err).
			Msg("plugin process exited")
	}()

	l.metrics.ObserveHandshake(time.Since(start))
	log.Info().
		Str("event", "handshake_complete").
		Str("plugin", rec.Path()).
		Str("duration", time.Since(start).String()).
		Msg("plugin handshake completed")
	report("", true)
}

// abort kills and reaps a plugin whose handshake failed.
func (l *Launcher) abort(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}

// exchange writes the getmanifest request and reads one reply line within
// the handshake timeout.
func (l *Launcher) exchange(stdin io.Writer, stdout io.Reader) (string, error) {
	if _, err := io.WriteString(stdin, getmanifest); err != nil {
		return "", fmt.Errorf("write getmanifest: %w", err)
	}

	type readResult struct {
		line string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := bufio.NewReader(stdout).ReadString('\n')
		ch <- readResult{line: line, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("read manifest: %w", res.err)
		}

		return res.line, nil
	case <-time.After(l.timeout):
		return "", errors.New("manifest handshake timed out")
	}
}

// parseManifest interprets one manifest reply line. It returns whether the
// plugin stays dynamic, or the failure reason when the reply is an error
// or malformed.
func parseManifest(line string) (dynamic bool, reason string, ok bool) {
	if !gjson.Valid(line) {
		return false, "malformed manifest reply", false
	}

	doc := gjson.Parse(line)
	if errMsg := doc.Get("error.message"); errMsg.Exists() {
		return false, errMsg.String(), false
	}
	res := doc.Get("result")
	if !res.Exists() {
		return false, "manifest reply carries no result", false
	}

	dynamic = true
	if d := res.Get("dynamic"); d.Exists() {
		dynamic = d.Bool()
	}

	return dynamic, "", true
}

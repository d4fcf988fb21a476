// Package testutil provides an in-memory fake of the shell gateway so
// fabric and binder tests can assert on issued command lines without
// touching OS state.
package testutil

import (
	"strings"
	"sync"

	"github.com/testbed-tools/vmtopo/pkg/shell"
)

// RecordingRunner records every command line handed to it. Commands succeed
// by default: an unmarked interface probe reports the interface as present.
// Tests mark failing commands in Failing and canned stdout in Output.
type RecordingRunner struct {
	mu      sync.Mutex
	cmds    []string
	started []string

	// Output maps a command line to its stdout.
	Output map[string]string
	// Failing marks command lines that exit non-zero.
	Failing map[string]bool
}

// NewRunner returns an empty recording runner.
func NewRunner() *RecordingRunner {
	return &RecordingRunner{
		Output:  make(map[string]string),
		Failing: make(map[string]bool),
	}
}

var _ shell.Runner = (*RecordingRunner)(nil)

// Run records cmdline and replays the configured outcome, honoring the
// negative and ignore-errors options the way the real gateway does.
func (r *RecordingRunner) Run(cmdline string, opts ...shell.Option) (string, error) {
	s := shell.EvalOptions(opts...)

	r.mu.Lock()
	r.cmds = append(r.cmds, cmdline)
	r.mu.Unlock()

	out := r.Output[cmdline]
	fails := r.Failing[cmdline]

	if s.Negative {
		if fails {
			return out, nil
		}
		if s.IgnoreErrors {
			return out, nil
		}
		return out, &shell.CommandError{Cmdline: cmdline, Negative: true}
	}
	if fails {
		if s.IgnoreErrors {
			return out, nil
		}
		return out, &shell.CommandError{Cmdline: cmdline, ExitCode: 1, Stderr: "simulated failure"}
	}
	return out, nil
}

// Start records cmdline as a backgrounded command and returns a handle
// whose Join succeeds immediately.
func (r *RecordingRunner) Start(cmdline string) (*shell.Proc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, cmdline)
	return &shell.Proc{Cmdline: cmdline}, nil
}

// MarkAbsent makes existence probes for iface fail in the given scope
// prefix ("" for the host), so the fabric sees the interface as missing.
func (r *RecordingRunner) MarkAbsent(iface, scopePrefix string) {
	cmdline := "ifconfig -a " + iface
	if scopePrefix != "" {
		cmdline = scopePrefix + " " + cmdline
	}
	r.Failing[cmdline] = true
}

// Cmds returns the commands issued through Run, in order.
func (r *RecordingRunner) Cmds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cmds...)
}

// Started returns the commands issued through Start, in order.
func (r *RecordingRunner) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

// Issued reports whether some command containing sub was run.
func (r *RecordingRunner) Issued(sub string) bool {
	for _, c := range r.Cmds() {
		if strings.Contains(c, sub) {
			return true
		}
	}
	return false
}

// IssuedCount counts run commands containing sub.
func (r *RecordingRunner) IssuedCount(sub string) int {
	n := 0
	for _, c := range r.Cmds() {
		if strings.Contains(c, sub) {
			n++
		}
	}
	return n
}

// FirstIndex returns the position of the first run command containing sub,
// or -1.
func (r *RecordingRunner) FirstIndex(sub string) int {
	for i, c := range r.Cmds() {
		if strings.Contains(c, sub) {
			return i
		}
	}
	return -1
}

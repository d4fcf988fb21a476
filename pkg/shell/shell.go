// Package shell executes the external networking commands (ip, brctl,
// ovs-vsctl, ovs-ofctl, nsenter, ...) that mutate and inspect host state.
// It is the single choke point between the engine and the OS network stack.
package shell

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/testbed-tools/vmtopo/pkg/util"
)

// CommandError is returned when a command exhausts its retries without the
// expected result.
type CommandError struct {
	Cmdline  string
	Filter   string
	ExitCode int
	Stderr   string
	Negative bool
}

func (e *CommandError) Error() string {
	cmd := e.Cmdline
	if e.Filter != "" {
		cmd += " | " + e.Filter
	}
	if e.Negative {
		return fmt.Sprintf("command unexpectedly succeeded: cmd=%q", cmd)
	}
	return fmt.Sprintf("ret_code=%d, error message=%q, cmd=%q", e.ExitCode, e.Stderr, cmd)
}

// Opts is the resolved configuration of one Run invocation. Fakes use
// EvalOptions to interpret the options a caller passed.
type Opts struct {
	Filter       string
	Retry        int
	Negative     bool
	IgnoreErrors bool
}

// Option adjusts a single Run invocation.
type Option func(*Opts)

// EvalOptions folds options into an Opts with defaults applied.
func EvalOptions(opts ...Option) Opts {
	s := Opts{Retry: 1}
	for _, opt := range opts {
		opt(&s)
	}
	if s.Retry < 1 {
		s.Retry = 1
	}
	return s
}

// WithFilter pipes the command's stdout through a second filter command; the
// filter's exit code decides success.
func WithFilter(cmdline string) Option {
	return func(s *Opts) { s.Filter = cmdline }
}

// Retry sets the attempt count. Several tools are eventually consistent (a
// just-created OVS port is not always immediately visible), so each retry
// re-invokes the full command.
func Retry(n int) Option {
	return func(s *Opts) { s.Retry = n }
}

// Negative inverts the success predicate: the call succeeds only when the
// command fails. Used for "assert interface absent" checks.
func Negative() Option {
	return func(s *Opts) { s.Negative = true }
}

// IgnoreErrors returns the last observed output instead of an error after
// retries are exhausted.
func IgnoreErrors() Option {
	return func(s *Opts) { s.IgnoreErrors = true }
}

// Runner executes external commands. The production implementation is Exec;
// tests substitute an in-memory fake so no OS state is touched.
type Runner interface {
	// Run executes cmdline and returns its stdout.
	Run(cmdline string, opts ...Option) (string, error)
	// Start launches cmdline without waiting, returning a handle for a
	// later join. Used for batched flow programming.
	Start(cmdline string) (*Proc, error)
}

// Exec is the Runner that really invokes commands on the host.
type Exec struct{}

var _ Runner = Exec{}

// Run executes cmdline, optionally piped through a filter command, with
// bounded retries.
func (Exec) Run(cmdline string, opts ...Option) (string, error) {
	s := EvalOptions(opts...)

	var out, errOut string
	var code int
	for attempt := 0; attempt < s.Retry; attempt++ {
		util.Debugf("*** CMD: %s, filter: %s, attempt: %d", cmdline, s.Filter, attempt+1)
		out, errOut, code = runOnce(cmdline, s.Filter)
		util.Debugf("*** OUTPUT: ret_code=%d stdout=%q stderr=%q", code, out, errOut)

		if s.Negative {
			if code != 0 {
				return out, nil
			}
		} else if code == 0 {
			return out, nil
		}
	}

	if s.IgnoreErrors {
		return out, nil
	}
	return out, &CommandError{
		Cmdline:  cmdline,
		Filter:   s.Filter,
		ExitCode: code,
		Stderr:   errOut,
		Negative: s.Negative,
	}
}

func runOnce(cmdline, filter string) (stdout, stderr string, exitCode int) {
	fields := SplitCmdline(cmdline)
	if len(fields) == 0 {
		return "", "empty command", 1
	}
	cmd := exec.Command(fields[0], fields[1:]...)

	var outBuf, errBuf bytes.Buffer
	if filter == "" {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
		if err := cmd.Run(); err != nil {
			return outBuf.String(), errBuf.String(), exitCodeOf(cmd, err)
		}
		return outBuf.String(), errBuf.String(), 0
	}

	ffields := SplitCmdline(filter)
	fcmd := exec.Command(ffields[0], ffields[1:]...)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", err.Error(), 1
	}
	cmd.Stderr = &errBuf
	fcmd.Stdin = pipe
	fcmd.Stdout = &outBuf
	fcmd.Stderr = &errBuf
	if err := cmd.Start(); err != nil {
		return "", err.Error(), 1
	}
	if err := fcmd.Start(); err != nil {
		cmd.Wait()
		return "", err.Error(), 1
	}
	cmd.Wait()
	if err := fcmd.Wait(); err != nil {
		return outBuf.String(), errBuf.String(), exitCodeOf(fcmd, err)
	}
	return outBuf.String(), errBuf.String(), 0
}

func exitCodeOf(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			return code
		}
	}
	if _, ok := err.(*exec.ExitError); ok {
		return 1
	}
	// Command not found, permission denied, ...
	return 127
}

// SplitCmdline splits a command line into fields, honoring single and double
// quotes so flow specs like 'table=0,priority=10,...' survive intact.
func SplitCmdline(cmdline string) []string {
	var fields []string
	var cur strings.Builder
	var quote rune
	inField := false
	for _, r := range cmdline {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inField = true
		case r == ' ' || r == '\t' || r == '\n':
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteRune(r)
			inField = true
		}
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields
}

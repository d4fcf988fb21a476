package shell

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/testbed-tools/vmtopo/pkg/util"
)

// DefaultBatchTimeout bounds the join of all deferred batch processes.
const DefaultBatchTimeout = 600 * time.Second

// Proc is a handle to a fire-and-forget process started by Runner.Start.
type Proc struct {
	Cmdline string

	cmd    *exec.Cmd
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	done   chan error
}

// Start launches cmdline without waiting for it.
func (Exec) Start(cmdline string) (*Proc, error) {
	fields := SplitCmdline(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	p := &Proc{
		Cmdline: cmdline,
		cmd:     cmd,
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
		done:    make(chan error, 1),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", cmdline, err)
	}
	go func() { p.done <- cmd.Wait() }()
	return p, nil
}

// Join waits for the process to finish within the timeout. On timeout the
// process is killed and an error returned; a non-zero exit yields a
// CommandError.
func (p *Proc) Join(timeout time.Duration) error {
	if p.done == nil {
		// Fake procs constructed by tests.
		return nil
	}
	select {
	case err := <-p.done:
		if err == nil {
			return nil
		}
		return &CommandError{
			Cmdline:  p.Cmdline,
			ExitCode: exitCodeOf(p.cmd, err),
			Stderr:   p.stderr.String(),
		}
	case <-time.After(timeout):
		p.cmd.Process.Kill()
		<-p.done
		return fmt.Errorf("process timeout after %s: cmd=%q", timeout, p.Cmdline)
	}
}

// Batch collects fire-and-forget processes issued during a bind pass plus a
// scratch directory for the rule files they read. All processes are joined
// before the aggregate result is reported, so a single early failure cannot
// hide later ones.
type Batch struct {
	mu      sync.Mutex
	procs   []*Proc
	tmpDir  string
	timeout time.Duration
}

// NewBatch creates a batch with a fresh scratch directory.
func NewBatch(timeout time.Duration) (*Batch, error) {
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	dir, err := os.MkdirTemp("", "vmtopo-batch-")
	if err != nil {
		return nil, fmt.Errorf("create batch dir: %w", err)
	}
	return &Batch{tmpDir: dir, timeout: timeout}, nil
}

// TmpDir returns the scratch directory for batch rule files.
func (b *Batch) TmpDir() string {
	return b.tmpDir
}

// Add registers a started process for the final join.
func (b *Batch) Add(p *Proc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.procs = append(b.procs, p)
}

// WriteRuleFile stores one rule per line in a scratch file and returns its
// path, for consumption by "ovs-ofctl add-flows <bridge> <file>".
func (b *Batch) WriteRuleFile(rules []string) (string, error) {
	f, err := os.CreateTemp(b.tmpDir, "flows-")
	if err != nil {
		return "", fmt.Errorf("create rule file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(rules, "\n") + "\n"); err != nil {
		return "", fmt.Errorf("write rule file: %w", err)
	}
	return f.Name(), nil
}

// Join waits for every registered process, removes the scratch directory,
// and aggregates failures into one error naming each failing command.
func (b *Batch) Join() error {
	b.mu.Lock()
	procs := b.procs
	b.procs = nil
	b.mu.Unlock()

	var errMsgs []string
	for _, p := range procs {
		if err := p.Join(b.timeout); err != nil {
			util.Errorf("batch command failed: %v", err)
			errMsgs = append(errMsgs, err.Error())
		}
	}
	os.RemoveAll(b.tmpDir)

	if len(errMsgs) > 0 {
		return fmt.Errorf("%d of %d batch commands failed: %s",
			len(errMsgs), len(procs), strings.Join(errMsgs, "; "))
	}
	return nil
}

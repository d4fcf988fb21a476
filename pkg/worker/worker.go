// Package worker runs independent topology tasks, optionally in parallel.
// Each parallel task logs into its own buffer which is flushed to the shared
// output as one contiguous block when the task completes, so interleaved
// task logs stay readable.
package worker

import (
	"bytes"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/testbed-tools/vmtopo/pkg/util"
)

// MinCount is the lower bound on the parallel worker count.
const MinCount = 8

var logSeparator = strings.Repeat("=", 120)

// DefaultCount sizes the pool from the host CPU count.
func DefaultCount() int {
	n := runtime.NumCPU() / 8
	if n < MinCount {
		n = MinCount
	}
	return n
}

// Worker applies operations across task items. A serial worker runs tasks
// inline on the shared logger; a parallel worker fans out over a bounded
// pool with per-task log buffering.
type Worker struct {
	parallel bool
	count    int

	mu  sync.Mutex
	out io.Writer
}

// New returns a worker. count is clamped to at least one; it is ignored for
// serial workers.
func New(parallel bool, count int) *Worker {
	if count < 1 {
		count = 1
	}
	util.Infof("init topology worker: parallel %v, worker count %d", parallel, count)
	return &Worker{parallel: parallel, count: count, out: util.Logger.Out}
}

// SetOutput redirects where flushed task logs go. Used by tests.
func (w *Worker) SetOutput(out io.Writer) { w.out = out }

// Parallel reports whether tasks fan out over the pool.
func (w *Worker) Parallel() bool { return w.parallel }

func (w *Worker) taskLogger(buf *bytes.Buffer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(util.Logger.GetLevel())
	log.SetFormatter(util.Logger.Formatter)
	return log
}

func (w *Worker) flush(buf *bytes.Buffer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.Copy(w.out, buf)
}

// Map applies op to every item. All items run to completion even when some
// fail; the first error observed in item order is returned.
func Map[T any](w *Worker, items []T, op func(log *logrus.Logger, item T) error) error {
	if !w.parallel {
		for _, item := range items {
			if err := op(util.Logger, item); err != nil {
				return err
			}
		}
		return nil
	}

	sem := make(chan struct{}, w.count)
	var wg sync.WaitGroup
	errs := make([]error, len(items))

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()

			var buf bytes.Buffer
			log := w.taskLogger(&buf)
			log.Debug(logSeparator)
			log.Debugf("start task %d", i)
			errs[i] = op(log, item)
			log.Debugf("finish task %d", i)
			log.Debug(logSeparator)
			w.flush(&buf)
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

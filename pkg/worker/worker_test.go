package worker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMapSerial(t *testing.T) {
	w := New(false, 0)
	var got []int
	err := Map(w, []int{1, 2, 3}, func(log *logrus.Logger, item int) error {
		got = append(got, item)
		return nil
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if fmt.Sprint(got) != "[1 2 3]" {
		t.Errorf("items = %v", got)
	}
}

func TestMapSerialStopsOnError(t *testing.T) {
	w := New(false, 0)
	boom := errors.New("boom")
	var calls int
	err := Map(w, []int{1, 2, 3}, func(log *logrus.Logger, item int) error {
		calls++
		if item == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestMapParallelRunsAll(t *testing.T) {
	w := New(true, 4)
	w.SetOutput(&strings.Builder{})
	var calls int32
	boom := errors.New("boom")
	err := Map(w, []int{0, 1, 2, 3, 4, 5, 6, 7}, func(log *logrus.Logger, item int) error {
		atomic.AddInt32(&calls, 1)
		if item == 1 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 8 {
		t.Errorf("calls = %d, want all items to run", calls)
	}
}

func TestMapParallelBoundsConcurrency(t *testing.T) {
	w := New(true, 2)
	w.SetOutput(&strings.Builder{})
	var mu sync.Mutex
	var active, peak int
	err := Map(w, make([]int, 16), func(log *logrus.Logger, item int) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestMapParallelBuffersTaskLogs(t *testing.T) {
	var out strings.Builder
	var mu sync.Mutex
	w := New(true, 4)
	w.SetOutput(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return out.Write(p)
	}))
	err := Map(w, []int{10, 20}, func(log *logrus.Logger, item int) error {
		log.Infof("first line of %d", item)
		log.Infof("second line of %d", item)
		return nil
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for _, item := range []string{"10", "20"} {
		first := strings.Index(out.String(), "first line of "+item)
		second := strings.Index(out.String(), "second line of "+item)
		if first < 0 || second < 0 {
			t.Fatalf("missing task %s logs in output:\n%s", item, out.String())
		}
		between := out.String()[first:second]
		if strings.Count(between, "first line of") > 1 {
			t.Errorf("task %s logs interleaved:\n%s", item, out.String())
		}
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestDefaultCount(t *testing.T) {
	if DefaultCount() < MinCount {
		t.Errorf("DefaultCount() = %d, want at least %d", DefaultCount(), MinCount)
	}
}

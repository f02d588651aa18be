package engine

import (
	"errors"
	"sync"

	"github.com/Gthulhu/scx_netland/models"
)

var errBusy = errors.New("dispatch ring full")

type fakeChannel struct {
	mu sync.Mutex

	pending    []*models.QueuedTask
	dequeueErr error
	idle       map[int32]int32
	nrQueued   uint64

	failDispatches int
	attempts       []models.DispatchedTask
	dispatched     []models.DispatchedTask
	notified       []uint64
}

func newFakeChannel(tasks ...*models.QueuedTask) *fakeChannel {
	return &fakeChannel{pending: tasks, idle: map[int32]int32{}}
}

func (f *fakeChannel) DequeueTask() (*models.QueuedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		if f.dequeueErr != nil {
			err := f.dequeueErr
			f.dequeueErr = nil
			return nil, err
		}
		return nil, nil
	}
	t := f.pending[0]
	f.pending = f.pending[1:]
	return t, nil
}

func (f *fakeChannel) SelectIdleCPU(pid int32, prevCpu int32, flags uint64) (int32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cpu, ok := f.idle[pid]
	return cpu, ok
}

func (f *fakeChannel) DispatchTask(t *models.DispatchedTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *t)
	if f.failDispatches > 0 {
		f.failDispatches--
		return errBusy
	}
	f.dispatched = append(f.dispatched, *t)
	return nil
}

func (f *fakeChannel) NotifyComplete(nrPending uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, nrPending)
	return nil
}

func (f *fakeChannel) NrQueued() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nrQueued
}

type staticCongestion uint32

func (s staticCongestion) Score() uint32 { return uint32(s) }

type fixedAdvisor struct {
	keep  bool
	calls int
	last  Load
}

func (a *fixedAdvisor) KeepLocal(t *models.QueuedTask, load Load) bool {
	a.calls++
	a.last = load
	return a.keep
}

// sequenceClock returns 1, 2, 3, ... on each call.
func sequenceClock() func() uint64 {
	var n uint64
	return func() uint64 {
		n++
		return n
	}
}

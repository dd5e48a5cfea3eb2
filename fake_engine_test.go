package apm

import (
	"errors"
	"sync"
	"sync/atomic"
)

// fakeEngine records every call it receives and flags overlapping or
// post-close use through its factory.
type fakeEngine struct {
	factory *fakeFactory

	config     ProcessingConfig
	applied    bool
	initStatus Status
	delays     []int
	forward    int
	reverse    int
	closed     atomic.Bool
}

func (e *fakeEngine) ApplyConfig(cfg ProcessingConfig) {
	e.config = cfg
	e.applied = true
}

func (e *fakeEngine) Initialize() Status {
	return e.initStatus
}

func (e *fakeEngine) enter() {
	if e.factory.active.Add(1) > 1 {
		e.factory.violations.Add(1)
	}
	if e.closed.Load() {
		e.factory.violations.Add(1)
	}
}

func (e *fakeEngine) leave() {
	e.factory.active.Add(-1)
}

func (e *fakeEngine) ProcessStream(desc StreamDescriptor, pcm []int16) Status {
	e.enter()
	defer e.leave()
	e.forward++
	return e.factory.streamStatus
}

func (e *fakeEngine) ProcessReverseStream(desc StreamDescriptor, pcm []int16) Status {
	e.enter()
	defer e.leave()
	e.reverse++
	return e.factory.streamStatus
}

func (e *fakeEngine) SetStreamDelayMs(delayMs int) Status {
	e.enter()
	defer e.leave()
	e.delays = append(e.delays, delayMs)
	return StatusOK
}

func (e *fakeEngine) Close() error {
	e.enter()
	defer e.leave()
	e.closed.Store(true)
	return e.factory.closeErr
}

type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine

	buildErr     error
	initStatus   Status
	streamStatus Status
	closeErr     error

	active     atomic.Int32
	violations atomic.Int32
}

func (f *fakeFactory) New() (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.buildErr != nil {
		return nil, f.buildErr
	}
	e := &fakeEngine{factory: f, initStatus: f.initStatus}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *fakeFactory) built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *fakeFactory) last() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

var errFakeBuild = errors.New("fake build failure")

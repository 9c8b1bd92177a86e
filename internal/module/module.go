// Package module defines the unit of work a Graph schedules: the Module
// interface plugins implement, and Instance, the per-module worker that
// drives one Module through its lifecycle state machine.
package module

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iris-run/iris/internal/bus"
	"github.com/iris-run/iris/internal/logger"
)

// Module is the interface every plugin-produced value implements. Subscribe
// is called once, immediately after construction, to enroll the module's
// bus endpoints; Initialize is called once more parameters have been
// delivered over the bus; Execute runs once per tick while the module's
// Instance is kicked; Shutdown runs once, during teardown.
type Module interface {
	Subscribe(handle *bus.Handle)
	Initialize() error
	Execute()
	Shutdown()
}

// Descriptor identifies the plugin type and version a Module instance was
// created from, mirrored onto Instance for introspection.
type Descriptor struct {
	Type    string
	Version uint32
}

// state is the Instance lifecycle state, named for the transitions in the
// worker contract: constructed -> enrolled -> ready -> signaled ->
// executing -> ready, and ready -> stopping -> terminated.
type state int32

const (
	stateConstructed state = iota
	stateEnrolled
	stateReady
	stateSignaled
	stateExecuting
	stateStopping
	stateTerminated
)

// Instance is one named module within a Graph: the Module implementation,
// its private bus handle, and the worker goroutine that drives it.
type Instance struct {
	Name     string
	Graph    string
	Desc     Descriptor
	Priority int

	mod    Module
	handle *bus.Handle

	state    atomic.Int32
	started  atomic.Bool
	kickCh   chan struct{}
	stopOnce chan struct{}
	done     chan struct{}
}

// NewInstance wraps mod as a named Instance belonging to graph, with a bus
// Handle carrying channel. Subscribe is called immediately, per the
// constructed -> enrolled transition.
func NewInstance(name, graph string, desc Descriptor, channel int, mod Module) *Instance {
	i := &Instance{
		Name:     name,
		Graph:    graph,
		Desc:     desc,
		mod:      mod,
		handle:   bus.NewHandle(channel),
		kickCh:   make(chan struct{}, 1),
		stopOnce: make(chan struct{}),
		done:     make(chan struct{}),
	}
	i.state.Store(int32(stateConstructed))
	i.mod.Subscribe(i.handle)
	i.state.Store(int32(stateEnrolled))
	return i
}

// Handle returns the Instance's private bus handle, e.g. for a Graph to
// wait on a module's Required subscriptions during parameter delivery.
func (i *Instance) Handle() *bus.Handle { return i.handle }

// State returns the worker's current lifecycle state as a lowercase
// string, for introspection surfaces that have no business seeing the
// underlying atomic directly.
func (i *Instance) State() string {
	switch state(i.state.Load()) {
	case stateConstructed:
		return "constructed"
	case stateEnrolled:
		return "enrolled"
	case stateReady:
		return "ready"
	case stateSignaled:
		return "signaled"
	case stateExecuting:
		return "executing"
	case stateStopping:
		return "stopping"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Module returns the wrapped plugin value, for a Descriptor's Destroy.
func (i *Instance) Module() Module { return i.mod }

// Initialize runs the module's one-time setup and transitions to ready.
// Per canonical policy (spec §7 ModuleInitError), a returned error is the
// caller's cue to log Fatal and terminate the process; modules may instead
// choose to absorb the error internally and return nil.
func (i *Instance) Initialize() error {
	corrID := uuid.New().String()
	log := logger.Named("module", i.Name)
	if err := i.mod.Initialize(); err != nil {
		log.Error().Err(err).Str("correlation_id", corrID).Str("graph", i.Graph).Msg("module: initialize failed")
		return err
	}
	log.Info().Str("correlation_id", corrID).Str("graph", i.Graph).Msg("module: initialized")
	i.state.Store(int32(stateReady))
	i.started.Store(true)
	go i.run()
	return nil
}

// Kick wakes the worker for one Execute call. It is a no-op if the
// Instance is already signaled or has been stopped.
func (i *Instance) Kick() {
	if state(i.state.Load()) == stateTerminated {
		return
	}
	i.state.CompareAndSwap(int32(stateReady), int32(stateSignaled))
	select {
	case i.kickCh <- struct{}{}:
	default:
	}
}

// Ready reports whether the worker has finished its last Execute and is
// not currently signaled for another. It is false for a merely
// constructed-and-enrolled Instance: Initialize has not yet started the
// run goroutine, so there is no worker to service a Kick regardless of
// how idle the module itself is.
func (i *Instance) Ready() bool {
	s := state(i.state.Load())
	return s == stateReady || s == stateTerminated
}

// Stop requests the worker exit at its next wake. If stop and a pending
// Kick race, the worker observes should-run=false first and returns
// without executing — stop always wins the tiebreak.
func (i *Instance) Stop() {
	i.state.Store(int32(stateStopping))
	select {
	case <-i.stopOnce:
	default:
		close(i.stopOnce)
	}
	select {
	case i.kickCh <- struct{}{}:
	default:
	}
	if i.started.Load() {
		<-i.done
	} else {
		i.state.Store(int32(stateTerminated))
	}
}

// Shutdown calls the module's Shutdown hook and tears down its bus
// handle. Stop must have already been called (or Initialize never run).
func (i *Instance) Shutdown() {
	corrID := uuid.New().String()
	i.mod.Shutdown()
	i.handle.Close()
	logger.Named("module", i.Name).Info().Str("correlation_id", corrID).Str("graph", i.Graph).Msg("module: shut down")
}

// Restart relaunches the worker goroutine without calling the module's
// Initialize again, for a Graph preserving this Instance across a hot
// reload: the module stays the same object, only its execution vector
// position and worker thread are recreated.
func (i *Instance) Restart() {
	i.kickCh = make(chan struct{}, 1)
	i.stopOnce = make(chan struct{})
	i.done = make(chan struct{})
	i.state.Store(int32(stateReady))
	i.started.Store(true)
	go i.run()
}

func (i *Instance) run() {
	defer func() {
		i.state.Store(int32(stateTerminated))
		close(i.done)
	}()
	for {
		select {
		case <-i.kickCh:
			if state(i.state.Load()) == stateStopping {
				return
			}
			i.state.Store(int32(stateExecuting))
			i.mod.Execute()
			i.state.Store(int32(stateReady))
		case <-i.stopOnce:
			return
		}
	}
}

// Package manager implements Iris's top-level supervisor: it owns the
// Loader and the top-level configuration document, constructs one Graph
// per top-level pipeline key, and runs each on its own worker goroutine
// until a well-known bus subscription asks the process to exit.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iris-run/iris/internal/bus"
	"github.com/iris-run/iris/internal/config"
	"github.com/iris-run/iris/internal/graph"
	"github.com/iris-run/iris/internal/loader"
	"github.com/iris-run/iris/internal/telemetry"
)

// ExitFlagKey is the well-known bus key any module can emit a boolean
// true on to request the Manager shut down.
var ExitFlagKey = bus.NewKey("Iris::Exit::Flag")

// Manager is the process's top-level supervisor.
type Manager struct {
	Loader *loader.Loader
	cfg    config.Source
	log    zerolog.Logger

	graphs map[string]*graph.Graph

	wg       sync.WaitGroup
	exitCh   chan struct{}
	exitOnce sync.Once
	firstErr error
	handle   *bus.Handle

	hostID      string
	publisher   *telemetry.Publisher
	mirror      *telemetry.Mirror
	housekeeper *telemetry.Housekeeper
}

// New constructs a Manager that logs through log.
func New(log zerolog.Logger) *Manager {
	return &Manager{
		log:    log,
		graphs: make(map[string]*graph.Graph),
		exitCh: make(chan struct{}),
		handle: bus.NewHandle(0),
		hostID: uuid.New().String(),
	}
}

// EnableTelemetry wires the optional cross-host sinks described in
// SPEC_FULL.md §11: a NATS tick/exit mirror, a Redis descriptor mirror,
// and a shared cron instance for housekeeping. Call after Initialize.
// Every sink degrades to a no-op if its address is left empty, so this
// is always safe to call even with a zero-value cfg.
func (m *Manager) EnableTelemetry(cfg telemetry.Config) {
	m.publisher = telemetry.NewPublisher(cfg, m.log)
	m.mirror = telemetry.NewMirror(cfg, m.log)

	for _, g := range m.graphs {
		g.TickHook = func(graphName string, dur time.Duration, moduleCount int) {
			m.publisher.PublishTick(uuid.New().String(), graphName, dur, moduleCount)
		}
	}

	if !cfg.HousekeepingEnable {
		return
	}
	m.housekeeper = telemetry.NewHousekeeper(m.log)
	_ = m.housekeeper.Schedule("descriptor-mirror", "@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.mirror.Refresh(ctx, m.hostID, m.Loader.Snapshot())
	})
	_ = m.housekeeper.Schedule("summary-log", "@every 1m", func() {
		m.log.Info().Int("graphs", len(m.graphs)).Msg("manager: periodic summary")
	})
	m.housekeeper.Start()
}

// Initialize initializes the Loader against modulePath and parses the
// pipeline document at configPath, constructing one Graph per top-level
// key. It also enrolls the well-known exit subscription.
func (m *Manager) Initialize(modulePath, configPath string, timingEnable bool) error {
	m.Loader = loader.New(m.log)
	if err := m.Loader.Initialize(modulePath); err != nil {
		return fmt.Errorf("manager: loader init: %w", err)
	}

	if err := m.cfg.Initialize(configPath); err != nil {
		return fmt.Errorf("manager: config init: %w", err)
	}

	root := m.cfg.Root()
	channel := 0
	for _, name := range root.Keys() {
		g := graph.New(name, channel, m.Loader, &m.cfg, m.log, timingEnable)
		if err := g.Load(); err != nil {
			return fmt.Errorf("manager: graph %q: %w", name, err)
		}
		m.graphs[name] = g
		channel++
	}

	m.handle.EnrollSubscriber(ExitFlagKey, bus.TypeTagOf[bool](), bus.Optional, func(payload any, index int) {
		if v, ok := payload.(bool); ok && v {
			m.requestExit(nil)
		}
	})

	return nil
}

// Graphs returns the Manager's graphs by name, for the admin introspection
// surface (§11.1). Callers must not mutate the returned map.
func (m *Manager) Graphs() map[string]*graph.Graph { return m.graphs }

// requestExit raises the exit flag at most once. err is the graph failure
// that triggered the exit, or nil for a clean, module-requested shutdown;
// the first non-nil err wins and is what Run returns, so main can map it
// to the fatal exit policy spec.md requires for CyclicGraph and
// ModuleInitError instead of exiting 0 through a graceful-looking path.
func (m *Manager) requestExit(err error) {
	m.exitOnce.Do(func() {
		m.firstErr = err
		if m.publisher != nil {
			m.publisher.PublishExit(uuid.New().String())
		}
		close(m.exitCh)
	})
}

// Start spawns one worker goroutine per Graph, each running that Graph's
// tick loop.
func (m *Manager) Start() {
	for name, g := range m.graphs {
		m.wg.Add(1)
		go func(name string, g *graph.Graph) {
			defer m.wg.Done()
			if err := g.Kick(); err != nil {
				m.log.Error().Err(err).Str("graph", name).Msg("manager: graph terminated with an error")
				m.requestExit(fmt.Errorf("graph %q: %w", name, err))
			}
		}(name, g)
	}
}

// Run blocks until the exit flag is raised, then stops and tears down
// every Graph and joins their worker goroutines. It returns the error (if
// any) that caused the exit — nil for a clean, module-requested shutdown,
// non-nil when a graph terminated fatally (e.g. graph.ErrCyclicGraph or a
// module's Initialize failure), per spec.md's fatal-exit policy.
func (m *Manager) Run() error {
	<-m.exitCh
	m.Shutdown()
	return m.firstErr
}

// Stop asks every Graph to stop its tick loop, without destroying its
// modules.
func (m *Manager) Stop() {
	for _, g := range m.graphs {
		g.Stop()
	}
}

// Shutdown stops and tears down every Graph, joins every worker
// goroutine, and releases the Manager's own bus handle.
func (m *Manager) Shutdown() {
	m.Stop()
	m.wg.Wait()
	for _, g := range m.graphs {
		g.Shutdown()
	}
	m.Loader.Reset()
	m.handle.Close()

	if m.housekeeper != nil {
		m.housekeeper.Stop()
	}
	if m.publisher != nil {
		m.publisher.Close()
	}
	if m.mirror != nil {
		m.mirror.Close()
	}
}

// Package graph implements Iris's per-pipeline scheduler: it loads
// modules declared under one top-level key of a pipeline document, solves
// an execution priority from their declared inputs/outputs, drives a tick
// loop that kicks modules in priority order, and hot-reloads when the
// underlying document changes.
package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/iris-run/iris/internal/bus"
	"github.com/iris-run/iris/internal/config"
	"github.com/iris-run/iris/internal/loader"
	"github.com/iris-run/iris/internal/module"
)

const tickPollInterval = 10 * time.Microsecond

// TickKeyPrefix namespaces the well-known bus key a Graph announces its
// tick timing on, for the admin introspection surface's live stream
// (§11.1) — a read-only observation of the graph_timing_enable contract
// (spec.md §6), never a control input. Every Graph gets its own key, built
// by TickKey, so one graph's stream subscriber never sees another's ticks.
const TickKeyPrefix = "Iris::Graph::Tick::"

// TickKey returns the per-graph bus key ticks for graphName are announced
// on.
func TickKey(graphName string) bus.Key { return bus.NewKey(TickKeyPrefix, graphName) }

// TickEvent is the payload emitted on a TickKey after every completed tick.
type TickEvent struct {
	Graph       string
	DurationUs  int64
	ModuleCount int
}

// entry pairs one module's running Instance with the metadata (and
// descriptor bookkeeping) the Graph needs to manage it.
type entry struct {
	inst *module.Instance
	meta moduleMeta
	desc *loader.Descriptor
	ver  uint32
	decl config.Token
}

// Graph holds every module declared under one top-level pipeline key and
// drives them through a single shared tick loop.
type Graph struct {
	Name    string
	Channel int

	loader *loader.Loader
	cfg    *config.Source
	log    zerolog.Logger

	modules map[string]*entry
	order   []string // module names sorted by ascending priority

	timingEnable bool

	running bool
	stopCh  chan struct{}

	// TickHook, if set, is called after every completed tick — the hook
	// used by internal/telemetry to mirror tick timing off-host (§11.3)
	// without the Graph knowing anything about NATS.
	TickHook func(graphName string, dur time.Duration, moduleCount int)
}

// ModuleInfo is a read-only snapshot of one running module, for the
// admin introspection surface (§11.1).
type ModuleInfo struct {
	Name     string
	Type     string
	Version  uint32
	Priority int
	State    string
}

// Order returns the module names in ascending-priority execution order.
func (g *Graph) Order() []string { return g.order }

// ModuleParams returns a read-only snapshot of the raw declaration a
// named module was constructed from — the admin surface's parameter
// introspection (§12's Karma.cpp equivalent). The second return is false
// if no such module exists.
func (g *Graph) ModuleParams(name string) (any, bool) {
	e, ok := g.modules[name]
	if !ok {
		return nil, false
	}
	return e.decl.Raw(), true
}

// Modules returns a snapshot of every module's introspectable state, in
// execution order.
func (g *Graph) Modules() []ModuleInfo {
	out := make([]ModuleInfo, 0, len(g.order))
	for _, name := range g.order {
		e := g.modules[name]
		out = append(out, ModuleInfo{
			Name:     name,
			Type:     e.inst.Desc.Type,
			Version:  e.inst.Desc.Version,
			Priority: e.inst.Priority,
			State:    e.inst.State(),
		})
	}
	return out
}

// New constructs a Graph named name. channel is handed to every module's
// bus Handle; the bus does not route by it, and parameter keys are not
// qualified by it.
// cfg must already be Initialize-d against the pipeline document; loader
// must already be Initialize-d against the module directory.
func New(name string, channel int, l *loader.Loader, cfg *config.Source, log zerolog.Logger, timingEnable bool) *Graph {
	return &Graph{
		Name:         name,
		Channel:      channel,
		loader:       l,
		cfg:          cfg,
		log:          log,
		modules:      make(map[string]*entry),
		timingEnable: timingEnable,
		stopCh:       make(chan struct{}),
	}
}

// Load reads this Graph's children from the pipeline document, creates a
// Module instance per declared name, forwards its parameters over the
// bus, and solves the initial priority order. It does not call
// Initialize on any module — that happens in Kick.
func (g *Graph) Load() error {
	decl := g.cfg.Root().Get(g.Name)
	if !decl.IsValid() {
		g.log.Warn().Err(config.ErrEmptyGraph).Str("graph", g.Name).Msg("graph: empty pipeline declaration")
		return nil
	}

	meta := make(map[string]moduleMeta)
	for _, name := range decl.Keys() {
		modDecl := decl.Get(name)
		if err := g.loadModule(name, modDecl); err != nil {
			g.log.Warn().Err(err).Str("module", name).Msg("graph: failed to load module")
			continue
		}
		meta[name] = g.modules[name].meta
	}

	return g.resolveOrder(meta)
}

func (g *Graph) loadModule(name string, decl config.Token) error {
	typ := decl.Get("type").String()
	if typ == "" {
		return fmt.Errorf("module %q missing required key \"type\"", name)
	}
	version := uint32(0)
	if v := decl.Get("version"); v.IsValid() {
		version = uint32(v.Number())
	}

	desc, err := g.loader.Resolve(typ)
	if err != nil {
		return err
	}

	mod := desc.Create(version)
	if mod == nil {
		return fmt.Errorf("descriptor %q has no version %d", typ, version)
	}

	// NewInstance calls mod.Subscribe synchronously before returning, so the
	// module's bus enrollments are in place before its parameters are
	// emitted below — spec.md's parameter fan-out requires subscribers
	// already enrolled at emit time, since Emit never replays to a late
	// subscriber.
	inst := module.NewInstance(name, g.Name, module.Descriptor{Type: typ, Version: version}, g.Channel, mod)
	emitModuleParams(name, decl)

	g.modules[name] = &entry{
		inst: inst,
		desc: desc,
		ver:  version,
		decl: decl,
		meta: moduleMeta{
			inputs:  stringList(decl.Get("inputs")),
			outputs: stringList(decl.Get("outputs")),
		},
	}
	return nil
}

func (g *Graph) resolveOrder(meta map[string]moduleMeta) error {
	priorities, err := solvePriority(meta)
	if err != nil {
		return err
	}
	for name, p := range priorities {
		g.modules[name].inst.Priority = p
	}

	order := make([]string, 0, len(g.modules))
	for name := range g.modules {
		order = append(order, name)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return g.modules[order[i]].inst.Priority < g.modules[order[j]].inst.Priority
	})
	g.order = order
	return nil
}

// Kick initializes every module in priority order and runs the tick loop
// until Stop is called or initialization fails fatally. Modules preserved
// across a hot reload are not initialized again: reload restarts them
// itself.
func (g *Graph) Kick() error {
	for _, name := range g.order {
		e := g.modules[name]
		if err := e.inst.Initialize(); err != nil {
			return fmt.Errorf("module %q: %w", name, err)
		}
	}

	g.running = true
	for g.running {
		select {
		case <-g.stopCh:
			return nil
		default:
		}

		if g.cfg.Modified() {
			if err := g.reload(); err != nil {
				return err
			}
		}

		start := time.Now()
		for _, name := range g.order {
			g.modules[name].inst.Kick()
		}
		g.waitTickComplete()
		tickDur := time.Since(start)

		if g.timingEnable {
			g.log.Debug().Str("graph", g.Name).Int64("tick_us", tickDur.Microseconds()).Int("module_count", len(g.order)).Msg("graph: tick complete")
		}
		bus.Emit(TickKey(g.Name), bus.TypeTagOf[TickEvent](), TickEvent{
			Graph:       g.Name,
			DurationUs:  tickDur.Microseconds(),
			ModuleCount: len(g.order),
		}, 0)
		if g.TickHook != nil {
			g.TickHook(g.Name, tickDur, len(g.order))
		}
	}
	return nil
}

func (g *Graph) waitTickComplete() {
	for {
		allReady := true
		for _, name := range g.order {
			if !g.modules[name].inst.Ready() {
				allReady = false
				break
			}
		}
		if allReady {
			return
		}
		select {
		case <-g.stopCh:
			return
		case <-time.After(tickPollInterval):
		}
	}
}

// Stop halts the tick loop and stops every module's worker, without
// destroying the modules.
func (g *Graph) Stop() {
	g.running = false
	select {
	case <-g.stopCh:
	default:
		close(g.stopCh)
	}
	for _, e := range g.modules {
		e.inst.Stop()
	}
}

// Shutdown stops every module (if not already stopped) and destroys
// each through its owning descriptor.
func (g *Graph) Shutdown() {
	for _, e := range g.modules {
		if e.inst.State() != "terminated" {
			e.inst.Stop()
		}
		e.inst.Shutdown()
		e.desc.Destroy(e.inst.Module(), e.ver)
	}
	g.modules = make(map[string]*entry)
	g.order = nil
}

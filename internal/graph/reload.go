package graph

import (
	"fmt"

	"github.com/iris-run/iris/internal/config"
)

// reload implements the hot-reload protocol: stop every running module,
// re-parse the pipeline document, preserve modules whose name survives,
// destroy the ones that vanished, create the ones that are new, re-solve
// priority, and restart worker threads — skipping Initialize for
// preserved modules.
func (g *Graph) reload() error {
	for _, e := range g.modules {
		e.inst.Stop()
	}

	if err := g.cfg.Reload(); err != nil {
		return fmt.Errorf("graph: reload config: %w", err)
	}

	decl := g.cfg.Root().Get(g.Name)
	if !decl.IsValid() {
		g.log.Warn().Err(config.ErrEmptyGraph).Str("graph", g.Name).Msg("graph: reload produced an empty pipeline declaration")
		decl = config.Token{}
	}

	newNames := make(map[string]bool)
	if decl.IsValid() {
		for _, name := range decl.Keys() {
			newNames[name] = true
		}
	}

	preservedNames := make(map[string]bool)
	preserved := make(map[string]*entry)
	for name, e := range g.modules {
		if newNames[name] {
			preserved[name] = e
			preservedNames[name] = true
			continue
		}
		e.inst.Shutdown()
		e.desc.Destroy(e.inst.Module(), e.ver)
	}
	g.modules = preserved

	meta := make(map[string]moduleMeta)
	for name := range newNames {
		modDecl := decl.Get(name)
		if e, ok := g.modules[name]; ok {
			e.decl = modDecl
			e.meta = moduleMeta{
				inputs:  stringList(modDecl.Get("inputs")),
				outputs: stringList(modDecl.Get("outputs")),
			}
			meta[name] = e.meta
			continue
		}
		if err := g.loadModule(name, modDecl); err != nil {
			g.log.Warn().Err(err).Str("module", name).Msg("graph: failed to load module on reload")
			continue
		}
		meta[name] = g.modules[name].meta
	}

	if err := g.resolveOrder(meta); err != nil {
		return err
	}

	for _, name := range g.order {
		e := g.modules[name]
		if preservedNames[name] {
			e.inst.Restart()
			continue
		}
		if err := e.inst.Initialize(); err != nil {
			return fmt.Errorf("module %q: %w", name, err)
		}
	}
	return nil
}

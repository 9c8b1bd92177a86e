package graph

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/iris-run/iris/internal/bus"
	"github.com/iris-run/iris/internal/config"
	"github.com/iris-run/iris/internal/loader"
	"github.com/iris-run/iris/internal/module"
)

type testMu struct{ sync.Mutex }

func newTestMu() *testMu { return &testMu{} }

type recordingModule struct {
	name  string
	order *[]string
	mu    *testMu
	execs atomic.Int32
}

func (r *recordingModule) Subscribe(h *bus.Handle) {}
func (r *recordingModule) Initialize() error       { return nil }
func (r *recordingModule) Execute() {
	r.mu.Lock()
	*r.order = append(*r.order, r.name)
	r.mu.Unlock()
	r.execs.Add(1)
}
func (r *recordingModule) Shutdown() {}

type failingInitModule struct{ err error }

func (f *failingInitModule) Subscribe(h *bus.Handle) {}
func (f *failingInitModule) Initialize() error       { return f.err }
func (f *failingInitModule) Execute()                {}
func (f *failingInitModule) Shutdown()               {}

func setupGraph(t *testing.T, pipelineJSON string) (*Graph, *config.Source, *loader.Loader) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(pipelineJSON), 0o644))

	var cfg config.Source
	require.NoError(t, cfg.Initialize(path))

	l := loader.New(zerolog.Nop())

	return New("g1", 0, l, &cfg, zerolog.Nop(), false), &cfg, l
}

func TestLoadBuildsExecutionVectorMatchingDeclarationCount(t *testing.T) {
	g, _, l := setupGraph(t, `{"g1":{
		"producer":{"type":"Producer","outputs":"frame"},
		"consumer":{"type":"Consumer","inputs":"frame"}
	}}`)

	order := []string{}
	mu := newTestMu()
	l.Register("Producer", 1, func() module.Module { return &recordingModule{name: "producer", order: &order, mu: mu} }, func(module.Module) {})
	l.Register("Consumer", 1, func() module.Module { return &recordingModule{name: "consumer", order: &order, mu: mu} }, func(module.Module) {})

	require.NoError(t, g.Load())
	require.Len(t, g.order, 2)
}

func TestPriorityOrdersProducerBeforeConsumer(t *testing.T) {
	g, _, l := setupGraph(t, `{"g1":{
		"producer":{"type":"Producer","outputs":"frame"},
		"consumer":{"type":"Consumer","inputs":"frame"}
	}}`)

	order := []string{}
	mu := newTestMu()
	l.Register("Producer", 1, func() module.Module { return &recordingModule{name: "producer", order: &order, mu: mu} }, func(module.Module) {})
	l.Register("Consumer", 1, func() module.Module { return &recordingModule{name: "consumer", order: &order, mu: mu} }, func(module.Module) {})

	require.NoError(t, g.Load())
	require.Equal(t, []string{"producer", "consumer"}, g.order)
}

func TestCyclicDependencyFailsLoad(t *testing.T) {
	g, _, l := setupGraph(t, `{"g1":{
		"a":{"type":"A","inputs":"y","outputs":"x"},
		"b":{"type":"A","inputs":"x","outputs":"y"}
	}}`)

	order := []string{}
	mu := newTestMu()
	l.Register("A", 1, func() module.Module { return &recordingModule{name: "a", order: &order, mu: mu} }, func(module.Module) {})

	err := g.Load()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCyclicGraph)
}

func TestEmptyPipelineDeclarationIsNotFatal(t *testing.T) {
	g, _, _ := setupGraph(t, `{"other":{}}`)
	require.NoError(t, g.Load())
	require.Empty(t, g.order)
}

func TestUnknownModuleTypeIsSkippedNotFatal(t *testing.T) {
	g, _, _ := setupGraph(t, `{"g1":{
		"ghost":{"type":"DoesNotExist"}
	}}`)
	require.NoError(t, g.Load())
	require.Empty(t, g.order)
}

func TestUnknownModuleTypeErrorIsDiscriminable(t *testing.T) {
	g, _, _ := setupGraph(t, `{"g1":{
		"ghost":{"type":"DoesNotExist"}
	}}`)
	err := g.loadModule("ghost", g.cfg.Root().Get("g1").Get("ghost"))
	require.ErrorIs(t, err, loader.ErrUnknownType)
}

func TestKickRunsTickLoopUntilStop(t *testing.T) {
	g, _, l := setupGraph(t, `{"g1":{
		"m":{"type":"M"}
	}}`)

	order := []string{}
	mu := newTestMu()
	l.Register("M", 1, func() module.Module { return &recordingModule{name: "m", order: &order, mu: mu} }, func(module.Module) {})

	require.NoError(t, g.Load())

	done := make(chan error, 1)
	go func() { done <- g.Kick() }()

	time.Sleep(50 * time.Millisecond)
	g.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Kick did not return after Stop")
	}
	require.NotEmpty(t, order)
}

func TestKickReturnsErrorWhenModuleInitializeFails(t *testing.T) {
	g, _, l := setupGraph(t, `{"g1":{
		"m":{"type":"M"}
	}}`)

	wantErr := errors.New("missing required parameter")
	l.Register("M", 1, func() module.Module { return &failingInitModule{err: wantErr} }, func(module.Module) {})

	require.NoError(t, g.Load())

	err := g.Kick()
	require.Error(t, err)
	require.ErrorIs(t, err, wantErr)
}

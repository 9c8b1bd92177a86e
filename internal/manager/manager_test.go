package manager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/iris-run/iris/internal/bus"
)

func TestExitFlagUnblocksRun(t *testing.T) {
	dir := t.TempDir()
	modDir := filepath.Join(dir, "modules")
	require.NoError(t, os.MkdirAll(modDir, 0o755))

	// No modules are declared, so Initialize has nothing to load and Run
	// only needs to exercise the exit-flag wiring.
	cfgPath := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"g1":{}}`), 0o644))

	m := New(zerolog.Nop())
	require.NoError(t, m.Initialize(modDir, cfgPath, false))

	m.Start()

	done := make(chan struct{})
	go func() {
		require.NoError(t, m.Run())
		close(done)
	}()

	bus.Emit(ExitFlagKey, bus.TypeTagOf[bool](), true, 0)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the exit flag fired")
	}
}

func TestInitializeConstructsOneGraphPerTopLevelKey(t *testing.T) {
	dir := t.TempDir()
	modDir := filepath.Join(dir, "modules")
	require.NoError(t, os.MkdirAll(modDir, 0o755))

	cfgPath := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"g1":{},"g2":{}}`), 0o644))

	m := New(zerolog.Nop())
	require.NoError(t, m.Initialize(modDir, cfgPath, false))

	require.Len(t, m.graphs, 2)
}

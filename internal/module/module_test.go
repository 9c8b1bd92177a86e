package module

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iris-run/iris/internal/bus"
)

type fakeModule struct {
	executeCount atomic.Int32
	subscribed   atomic.Bool
	initialized  atomic.Bool
	shutdown     atomic.Bool
	execDelay    time.Duration
}

func (f *fakeModule) Subscribe(h *bus.Handle) { f.subscribed.Store(true) }
func (f *fakeModule) Initialize() error       { f.initialized.Store(true); return nil }
func (f *fakeModule) Execute() {
	if f.execDelay > 0 {
		time.Sleep(f.execDelay)
	}
	f.executeCount.Add(1)
}
func (f *fakeModule) Shutdown() { f.shutdown.Store(true) }

func TestNewInstanceSubscribesImmediately(t *testing.T) {
	mod := &fakeModule{}
	inst := NewInstance("producer", "g1", Descriptor{Type: "Producer"}, 0, mod)
	assert.True(t, mod.subscribed.Load())
	assert.Equal(t, "enrolled", inst.State())
	// Ready means idle and available for a worker to service a Kick, which
	// requires Initialize to have started the run goroutine — an enrolled
	// Instance has neither, so it is not Ready yet.
	assert.False(t, inst.Ready())
}

func TestInitializeStartsWorkerAndKickExecutes(t *testing.T) {
	mod := &fakeModule{}
	inst := NewInstance("producer", "g1", Descriptor{}, 0, mod)
	require.NoError(t, inst.Initialize())
	assert.True(t, mod.initialized.Load())

	inst.Kick()
	require.Eventually(t, func() bool { return mod.executeCount.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, inst.Ready, time.Second, time.Millisecond)
}

func TestStopWinsRaceAgainstKick(t *testing.T) {
	mod := &fakeModule{execDelay: 50 * time.Millisecond}
	inst := NewInstance("slow", "g1", Descriptor{}, 0, mod)
	require.NoError(t, inst.Initialize())

	require.Eventually(t, inst.Ready, time.Second, time.Millisecond)

	inst.Stop()
	inst.Kick()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), mod.executeCount.Load(), "a kick arriving after stop must not execute")
}

func TestStopBeforeInitializeDoesNotBlock(t *testing.T) {
	mod := &fakeModule{}
	inst := NewInstance("never-started", "g1", Descriptor{}, 0, mod)

	done := make(chan struct{})
	go func() {
		inst.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop on a never-initialized Instance must not block")
	}
}

func TestShutdownClosesBusHandle(t *testing.T) {
	mod := &fakeModule{}
	inst := NewInstance("m", "g1", Descriptor{}, 0, mod)
	key := bus.NewKey("m", "::", "after-shutdown")
	calls := 0
	inst.Handle().EnrollSubscriber(key, bus.TypeTagOf[int](), bus.Optional, func(payload any, index int) { calls++ })
	require.NoError(t, inst.Initialize())
	inst.Stop()
	inst.Shutdown()
	assert.True(t, mod.shutdown.Load())

	bus.Emit(key, bus.TypeTagOf[int](), 1, 0)
	assert.Equal(t, 0, calls, "a closed handle's subscribers must not receive further emits")
}

package bus

import "sync"

// registry is the process-global Key -> signal mapping. A single mutex
// guards structural changes (creating a Key's entry); all per-Key mutation
// after that holds only that entry's own mutex.
var (
	registryMu sync.Mutex
	registry   = make(map[Key]*signal)
)

func getOrCreateSignal(key Key) *signal {
	registryMu.Lock()
	defer registryMu.Unlock()
	s, ok := registry[key]
	if !ok {
		s = newSignal()
		registry[key] = s
	}
	return s
}

func lookupSignal(key Key) (*signal, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	s, ok := registry[key]
	return s, ok
}

// resetRegistry drops every entry from the global registry. It exists for
// tests: production code never needs to forget every Key in the process,
// only a BusHandle's own endpoints (see Handle.Reset).
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[Key]*signal)
}

// Emit is the manual, handle-independent emit: it looks up key directly
// and delivers value to every subscriber whose tag matches tag (exactly,
// or Universal), then marks each delivered Required subscription fired.
// A key with no enrolled signal is a no-op — Emit never creates registry
// entries, only Enroll* does.
func Emit(key Key, tag TypeTag, value any, index int) {
	s, ok := lookupSignal(key)
	if !ok {
		return
	}
	s.deliver(tag, value, index)
}

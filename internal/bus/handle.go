package bus

import "sync"

// endpointKey identifies one (Key, TypeTag) pair within a single Handle's
// bookkeeping. A Handle holds at most one subscriber and one publisher per
// endpointKey (re-enrolling the same pair replaces the previous one).
type endpointKey struct {
	key Key
	tag TypeTag
}

type ownedSub struct {
	sig *signal
	sub *subscription
}

type ownedPub struct {
	sig *signal
	pub *publication
}

// Handle is a per-owner view over the global signal registry. Modules
// (and anything else that talks on the bus) each hold one Handle; it
// tracks which endpoints the owner has enrolled so they can all be
// deregistered together, and which subscriptions were declared Required
// so Wait knows what to block on. Channel records which graph the owner
// belongs to; the bus does not route by it, so endpoints on equal Keys
// reach each other whatever their Channel.
type Handle struct {
	Channel int

	mu       sync.Mutex
	subs     map[endpointKey]ownedSub
	pubs     map[endpointKey]ownedPub
	required []ownedSub // insertion order, iterated by Wait "in turn"

	closeOnce sync.Once
	done      chan struct{}
}

// NewHandle creates a Handle namespaced to channel. channel has no
// meaning to the bus itself — it exists so owners in different graphs can
// use identical Keys without colliding, by folding it into the Key they
// construct (see bus.NewKey).
func NewHandle(channel int) *Handle {
	return &Handle{
		Channel: channel,
		subs:    make(map[endpointKey]ownedSub),
		pubs:    make(map[endpointKey]ownedPub),
		done:    make(chan struct{}),
	}
}

// EnrollSubscriber registers fn to receive values published on key under
// tag (or Universal on the publisher side is not meaningful — Universal is
// subscriber-only). Re-enrolling the same (key, tag) pair on this Handle
// replaces the previous subscriber rather than adding a second one.
func (h *Handle) EnrollSubscriber(key Key, tag TypeTag, req Requirement, fn EventHandler) {
	ek := endpointKey{key, tag}

	h.mu.Lock()
	if existing, ok := h.subs[ek]; ok {
		existing.sig.removeSubscriber(existing.sub)
		delete(h.subs, ek)
		h.removeRequiredLocked(existing.sub)
	}
	h.mu.Unlock()

	sig := getOrCreateSignal(key)
	sub := newSubscription(tag, req, fn, h.done)
	sig.addSubscriber(sub)

	h.mu.Lock()
	h.subs[ek] = ownedSub{sig: sig, sub: sub}
	if req == Required {
		h.required = append(h.required, ownedSub{sig: sig, sub: sub})
	}
	h.mu.Unlock()
}

// EnrollPublisher registers fn as the source called by EmitAll for key
// under tag. Re-enrolling the same (key, tag) pair replaces the previous
// publisher.
func (h *Handle) EnrollPublisher(key Key, tag TypeTag, fn PublishFunc) {
	ek := endpointKey{key, tag}

	h.mu.Lock()
	if existing, ok := h.pubs[ek]; ok {
		existing.sig.removePublisher(existing.pub)
		delete(h.pubs, ek)
	}
	h.mu.Unlock()

	sig := getOrCreateSignal(key)
	pub := &publication{tag: tag, fn: fn}
	sig.addPublisher(pub)

	h.mu.Lock()
	h.pubs[ek] = ownedPub{sig: sig, pub: pub}
	h.mu.Unlock()
}

func (h *Handle) removeRequiredLocked(target *subscription) {
	out := h.required[:0]
	for _, r := range h.required {
		if r.sub != target {
			out = append(out, r)
		}
	}
	h.required = out
}

// EmitAll calls every publisher currently held by this Handle to obtain a
// value, then delivers it to the subscribers sharing its Key whose tag is
// Universal or equal to the publisher's tag.
func (h *Handle) EmitAll(index int) {
	h.mu.Lock()
	pubs := make([]ownedPub, 0, len(h.pubs))
	for _, p := range h.pubs {
		pubs = append(pubs, p)
	}
	h.mu.Unlock()

	for _, p := range pubs {
		value := p.pub.fn(index)
		p.sig.deliver(p.pub.tag, value, index)
	}
}

// Wait blocks until every Required subscription held by this Handle has
// fired at least once since the last time Wait consumed it, iterating its
// Required set in turn. It returns ErrHandleClosed if the Handle is
// closed while a wait is pending.
func (h *Handle) Wait() error {
	h.mu.Lock()
	required := append([]ownedSub(nil), h.required...)
	h.mu.Unlock()

	for _, r := range required {
		if err := r.sub.wait(); err != nil {
			return err
		}
	}
	return nil
}

// ClearSubscriptions atomically removes all of this Handle's subscribers
// (but not its publishers) from the global registry.
func (h *Handle) ClearSubscriptions() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[endpointKey]ownedSub)
	h.required = nil
	h.mu.Unlock()

	for _, s := range subs {
		s.sig.removeSubscriber(s.sub)
	}
}

// Reset atomically removes all of this Handle's subscribers and
// publishers from the global registry.
func (h *Handle) Reset() {
	h.ClearSubscriptions()

	h.mu.Lock()
	pubs := h.pubs
	h.pubs = make(map[endpointKey]ownedPub)
	h.mu.Unlock()

	for _, p := range pubs {
		p.sig.removePublisher(p.pub)
	}
}

// Close deregisters every endpoint owned by this Handle and unblocks any
// goroutine parked in Wait. A delivery already in progress against one of
// this Handle's subscribers runs to completion — Close only prevents new
// deliveries and wakes waiters, it does not cancel in-flight callbacks.
func (h *Handle) Close() {
	h.Reset()
	h.closeOnce.Do(func() { close(h.done) })
}

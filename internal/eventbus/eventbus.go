// Package eventbus implements typed publish/subscribe over a closed set
// of event names declared by the session façade, mirroring the
// mutex-guarded map-of-slices pattern the teacher uses throughout
// internal/daemon for shared, concurrently-touched state.
package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"kaspeak/internal/klog"
)

// Event is a payload delivered to subscribers of a single event name.
// Concrete event payloads (e.g. message-received) are passed as `any`
// and type-asserted by the listener, since Go has no closed sum type
// spanning independently-declared payload structs.
type Event any

// Listener receives event payloads published under the name it
// subscribed to.
type Listener func(Event)

// Bus is a typed event dispatcher restricted to a fixed, caller-declared
// set of event names. Publishing or subscribing to an undeclared name
// fails rather than silently creating a new topic.
type Bus struct {
	mu        sync.Mutex
	names     map[string]struct{}
	listeners map[string][]Listener
}

// New returns a Bus whose only valid event names are names.
func New(names ...string) *Bus {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return &Bus{
		names:     set,
		listeners: make(map[string][]Listener),
	}
}

func (b *Bus) checkName(name string) error {
	if _, ok := b.names[name]; !ok {
		return fmt.Errorf("eventbus: unknown event name %q", name)
	}
	return nil
}

// On subscribes f to name, failing if name was not declared at
// construction time.
func (b *Bus) On(name string, f Listener) error {
	if err := b.checkName(name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], f)
	return nil
}

// Once subscribes a self-removing wrapper around f: the wrapper
// unsubscribes itself before invoking f, and a fired flag drops any
// delivery from an Emit that snapshotted it earlier, so f fires at most
// once.
func (b *Bus) Once(name string, f Listener) error {
	if err := b.checkName(name); err != nil {
		return err
	}
	var id int
	var fired atomic.Bool
	wrapper := func(e Event) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		b.removeAt(name, id)
		f(e)
	}
	b.mu.Lock()
	id = len(b.listeners[name])
	b.listeners[name] = append(b.listeners[name], wrapper)
	b.mu.Unlock()
	return nil
}

func (b *Bus) removeAt(name string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[name]
	if id < 0 || id >= len(ls) {
		return
	}
	// Replace with a no-op rather than reslicing, so other listeners'
	// indices recorded by concurrent Once calls stay valid.
	ls[id] = func(Event) {}
}

// Emit publishes e under name to a snapshot of the current listener
// set, cloned under the lock so concurrent subscribe/unsubscribe calls
// during dispatch are safe. Each listener runs on its own goroutine
// (the next task-queue turn); a listener panic is recovered and logged
// so it cannot starve the others.
func (b *Bus) Emit(name string, e Event) error {
	if err := b.checkName(name); err != nil {
		return err
	}
	b.mu.Lock()
	snapshot := make([]Listener, len(b.listeners[name]))
	copy(snapshot, b.listeners[name])
	b.mu.Unlock()

	for _, listener := range snapshot {
		l := listener
		go func() {
			defer func() {
				if r := recover(); r != nil {
					klog.L().Error("eventbus: listener panicked", zap.String("event", name), zap.Any("recover", r))
				}
			}()
			l(e)
		}()
	}
	return nil
}

// Names returns the declared event names.
func (b *Bus) Names() []string {
	out := make([]string, 0, len(b.names))
	for n := range b.names {
		out = append(out, n)
	}
	return out
}

package ledger

import "sync"

// keyedFIFO hands out per-key locks whose waiters acquire strictly in
// arrival order. This is what turns overlapping mutations against the same
// entity into a documented queue instead of an interleaving.
type keyedFIFO struct {
	mu     sync.Mutex
	held   map[string]bool
	queues map[string][]chan struct{}
}

func newKeyedFIFO() *keyedFIFO {
	return &keyedFIFO{
		held:   make(map[string]bool),
		queues: make(map[string][]chan struct{}),
	}
}

// lock blocks until the key is free. Waiters are released one at a time in
// the order they called lock.
func (k *keyedFIFO) lock(key string) {
	k.mu.Lock()
	if !k.held[key] {
		k.held[key] = true
		k.mu.Unlock()
		return
	}
	ready := make(chan struct{})
	k.queues[key] = append(k.queues[key], ready)
	k.mu.Unlock()
	<-ready
}

// unlock releases the key, handing it directly to the oldest waiter if any.
func (k *keyedFIFO) unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	queue := k.queues[key]
	if len(queue) == 0 {
		delete(k.held, key)
		delete(k.queues, key)
		return
	}
	k.queues[key] = queue[1:]
	close(queue[0])
}

package store

import (
	"sync"

	"github.com/kiranshivaraju/sentineleye/pkg/models"
)

// notifier fans change events out to local subscribers.
type notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(models.ChangeEvent)
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]func(models.ChangeEvent))}
}

func (n *notifier) subscribe(fn func(models.ChangeEvent)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) publish(ev models.ChangeEvent) {
	n.mu.RLock()
	fns := make([]func(models.ChangeEvent), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

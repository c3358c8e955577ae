package session

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
)

// broadcaster fans snapshots out to watchers. Each watcher has a one-slot
// buffer; a slow watcher skips intermediate snapshots and always ends up
// with the newest one.
type broadcaster struct {
	mu     sync.Mutex
	latest domain.Snapshot
	nextID uint64
	subs   map[uint64]chan domain.Snapshot
}

func newBroadcaster(initial domain.Snapshot) *broadcaster {
	return &broadcaster{latest: initial, subs: make(map[uint64]chan domain.Snapshot)}
}

func (b *broadcaster) publish(s domain.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = s
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (b *broadcaster) snapshot() domain.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// watch delivers the current snapshot right away and then every update
// until ctx is done.
func (b *broadcaster) watch(ctx context.Context) <-chan domain.Snapshot {
	ch := make(chan domain.Snapshot, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	ch <- b.latest
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

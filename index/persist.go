package index

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/projdex/projdex/internal/debounce"
)

// DefaultSaveDelay is the debounce window for RequestSave.
const DefaultSaveDelay = time.Second

// SaveStats are cumulative persistence counters.
type SaveStats struct {
	Saves    int
	Errors   int
	LastSave time.Time
}

// Persister turns save requests into debounced, serialized snapshot
// writes. The snapshot is assembled on the requesting side via
// snapshotFn; the write itself happens on one background goroutine, so a
// slow store never blocks a mutation. A newer pending snapshot replaces
// an older one that has not been written yet.
type Persister struct {
	store      SnapshotStore
	snapshotFn func() *Snapshot
	deb        *debounce.Debouncer

	queue     chan *Snapshot
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	enqueueMu sync.Mutex
	writeMu   sync.Mutex

	statsMu sync.Mutex
	stats   SaveStats
}

func NewPersister(store SnapshotStore, snapshotFn func() *Snapshot, delay time.Duration) *Persister {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	p := &Persister{
		store:      store,
		snapshotFn: snapshotFn,
		queue:      make(chan *Snapshot, 1),
		done:       make(chan struct{}),
	}
	p.deb = debounce.New(delay, p.fire)

	p.wg.Add(1)
	go p.writer()
	return p
}

// RequestSave schedules a save. Requests inside the debounce window
// coalesce into one write.
func (p *Persister) RequestSave() {
	p.deb.Trigger()
}

func (p *Persister) fire() {
	p.enqueue(p.snapshotFn())
}

func (p *Persister) enqueue(snap *Snapshot) {
	p.enqueueMu.Lock()
	defer p.enqueueMu.Unlock()

	select {
	case p.queue <- snap:
	default:
		// Replace the queued older snapshot with this one.
		select {
		case <-p.queue:
		default:
		}
		p.queue <- snap
	}
}

func (p *Persister) writer() {
	defer p.wg.Done()
	for {
		select {
		case snap := <-p.queue:
			p.write(context.Background(), snap)
		case <-p.done:
			// Drain anything still queued before exiting.
			select {
			case snap := <-p.queue:
				p.write(context.Background(), snap)
			default:
			}
			return
		}
	}
}

func (p *Persister) write(ctx context.Context, snap *Snapshot) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	err := p.store.Save(ctx, snap)

	p.statsMu.Lock()
	if err != nil {
		p.stats.Errors++
	} else {
		p.stats.Saves++
		p.stats.LastSave = snap.SavedAt
	}
	p.statsMu.Unlock()

	if err != nil {
		log.Printf("Warning: failed to save state: %v", err)
	}
	return err
}

// ForceSave cancels any pending debounced save and writes a fresh
// snapshot synchronously.
func (p *Persister) ForceSave(ctx context.Context) error {
	p.deb.Stop()
	return p.write(ctx, p.snapshotFn())
}

// Close stops the debouncer and the writer, then performs a final
// synchronous save so nothing pending is lost.
func (p *Persister) Close(ctx context.Context) error {
	p.deb.Stop()
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
	return p.write(ctx, p.snapshotFn())
}

// Stats returns the cumulative save counters.
func (p *Persister) Stats() SaveStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

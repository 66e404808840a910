package trie

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eth2030/eth2030/log"
	"github.com/eth2030/eth2030/metrics"
	"golang.org/x/sync/errgroup"
)

// PrefetchAPI is the front door of the prefetch cache: callers hand it
// keys they expect the live request path to need soon, and a background
// I/O thread walks those keys down the latest known trie root, warming
// the shard cache ahead of time.
//
// The work queue is a bounded channel; once full, PrefetchTrieKey hands
// the key straight back to the caller instead of blocking, so a
// slow-draining queue never stalls whoever is requesting prefetches.
type PrefetchAPI struct {
	queue   chan Key
	storage *PrefetchingStorage

	stopped atomic.Bool
	wg      sync.WaitGroup

	dropped *metrics.Counter
	failed  *metrics.Counter
}

// NewPrefetchAPI creates a PrefetchAPI whose work queue holds up to
// MaxQueuedWorkItems keys, reading trie nodes through storage.
func NewPrefetchAPI(storage *PrefetchingStorage, reg *metrics.Registry) *PrefetchAPI {
	if reg == nil {
		reg = metrics.DefaultRegistry
	}
	return &PrefetchAPI{
		queue:   make(chan Key, MaxQueuedWorkItems),
		storage: storage,
		dropped: reg.Counter("prefetch_api_queue_full"),
		failed:  reg.Counter("prefetch_api_walk_failed"),
	}
}

// PrefetchTrieKey enqueues key for background prefetching. If the queue
// is full, key is returned unchanged so the caller knows the request was
// not accepted; a nil return means it was queued.
func (p *PrefetchAPI) PrefetchTrieKey(key Key) Key {
	select {
	case p.queue <- key:
		return nil
	default:
		p.dropped.Inc()
		return key
	}
}

// Clear drains any keys currently sitting in the queue without
// processing them, e.g. when the caller knows the current root is about
// to be replaced and stale prefetches would be wasted work.
func (p *PrefetchAPI) Clear() {
	for {
		select {
		case <-p.queue:
		default:
			return
		}
	}
}

// walkBatchSize bounds how many queued keys a single drain fans out
// across goroutines for, so one backing-store-bound key cannot stall the
// rest of a large batch behind it.
const walkBatchSize = 8

// StartIOThread launches the background worker that walks queued keys
// against root, until Stop is called. It returns immediately; call Stop
// to block until the worker has fully exited.
func (p *PrefetchAPI) StartIOThread(root Hash) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runIOThread(root)
	}()
}

func (p *PrefetchAPI) runIOThread(root Hash) {
	view, err := NewResolvableTrie(root, p.storage)
	if err != nil {
		log.Error("prefetch: failed to open trie view", "root", root, "err", err)
		return
	}

	for {
		if p.stopped.Load() {
			return
		}

		keys := p.drainUpTo(walkBatchSize)
		if len(keys) == 0 {
			time.Sleep(10 * time.Microsecond)
			continue
		}
		p.walkBatch(view, keys)
	}
}

// drainUpTo pops up to n keys from the queue without blocking, returning
// fewer if the queue empties first.
func (p *PrefetchAPI) drainUpTo(n int) []Key {
	keys := make([]Key, 0, n)
	for len(keys) < n {
		select {
		case key, ok := <-p.queue:
			if !ok {
				return keys
			}
			keys = append(keys, key)
		default:
			return keys
		}
	}
	return keys
}

// walkBatch resolves every key in keys against view concurrently, bounded
// by an errgroup so the batch's slowest backing-store fetch does not
// serialize the rest of it. Each key's walk pulls every node along its
// path through storage and so into the shard cache; failures are counted
// and logged rather than propagated, since one bad key must not abort
// the others already in flight.
func (p *PrefetchAPI) walkBatch(view *ResolvableTrie, keys []Key) {
	g := new(errgroup.Group)
	g.SetLimit(walkBatchSize)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			_, err := view.Get(key.ToBytes())
			if err != nil && err != ErrNotFound {
				p.failed.Inc()
				log.Debug("prefetch: walk failed", "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Stop signals the I/O thread to exit after its current iteration and
// blocks until it has done so.
func (p *PrefetchAPI) Stop() {
	p.stopped.Store(true)
	p.wg.Wait()
}

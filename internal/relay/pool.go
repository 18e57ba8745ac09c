// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// POOL
// =============================================================================

// Pool queries several relays as one. Subscriptions fan out to every relay
// and the merged stream is deduplicated by event ID.
type Pool struct {
	mu     sync.Mutex
	relays map[string]*Relay
	opts   []Option
	closed bool
}

// NewPool creates a pool over the given relay URLs.
func NewPool(urls ...string) *Pool {
	p := &Pool{relays: make(map[string]*Relay)}
	for _, u := range urls {
		p.relays[u] = New(u)
	}
	return p
}

// NewPoolWith creates a pool applying opts to every relay.
func NewPoolWith(opts []Option, urls ...string) *Pool {
	p := &Pool{relays: make(map[string]*Relay), opts: opts}
	for _, u := range urls {
		p.relays[u] = New(u, opts...)
	}
	return p
}

// Add connects an additional relay to the pool.
func (p *Pool) Add(ctx context.Context, url string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if _, ok := p.relays[url]; ok {
		p.mu.Unlock()
		return nil
	}
	r := New(url, p.opts...)
	p.relays[url] = r
	p.mu.Unlock()

	return r.Connect(ctx)
}

// Connect dials every relay. It succeeds if at least one relay connects;
// the rest keep retrying in the background via their own supervisors once
// connected at least once. Relays that never connected report their error.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	relays := p.snapshot()
	p.mu.Unlock()

	var firstErr error
	connected := 0
	for _, r := range relays {
		if err := r.Connect(ctx); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		connected++
	}
	if connected == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

func (p *Pool) snapshot() []*Relay {
	relays := make([]*Relay, 0, len(p.relays))
	for _, r := range p.relays {
		relays = append(relays, r)
	}
	return relays
}

// Close tears down every relay.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	relays := p.snapshot()
	p.mu.Unlock()

	for _, r := range relays {
		r.Close()
	}
}

// Stats returns a snapshot per relay.
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	relays := p.snapshot()
	p.mu.Unlock()

	stats := make([]Stats, 0, len(relays))
	for _, r := range relays {
		stats = append(stats, r.Stats())
	}
	return stats
}

// =============================================================================
// POOL SUBSCRIPTION
// =============================================================================

// seenCap bounds the dedup set; beyond it the set is reset rather than
// growing without bound on long-lived subscriptions.
const seenCap = 65536

// PoolSub is a merged, deduplicated subscription across the pool.
type PoolSub struct {
	Events chan *nostr.Event

	eose     chan struct{}
	eoseOnce sync.Once
	cancel   func()
	wg       sync.WaitGroup
}

// EOSE is closed once every participating relay has signalled the end of
// stored events (or dropped off).
func (ps *PoolSub) EOSE() <-chan struct{} { return ps.eose }

// Close unsubscribes from every relay.
func (ps *PoolSub) Close() { ps.cancel() }

// Subscribe opens the filters on every relay in the pool.
func (p *Pool) Subscribe(ctx context.Context, filters []nostr.Filter) (*PoolSub, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	relays := p.snapshot()
	p.mu.Unlock()

	if len(relays) == 0 {
		return nil, errors.New("pool has no relays")
	}

	ps := &PoolSub{
		Events: make(chan *nostr.Event, subBuffer),
		eose:   make(chan struct{}),
	}

	var subs []*Subscription
	for _, r := range relays {
		sub, err := r.Subscribe(ctx, filters)
		if err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	if len(subs) == 0 {
		return nil, errors.New("no relay accepted the subscription")
	}

	ps.cancel = func() {
		for _, sub := range subs {
			sub.Close()
		}
	}

	var (
		seenMu sync.Mutex
		seen   = make(map[string]struct{}, 1024)
	)

	var eoseWG sync.WaitGroup
	for _, sub := range subs {
		ps.wg.Add(1)
		eoseWG.Add(1)

		// A subscription's EOSE channel is also closed on teardown, so
		// this never leaks.
		go func(sub *Subscription) {
			<-sub.EOSE()
			eoseWG.Done()
		}(sub)

		go func(sub *Subscription) {
			defer ps.wg.Done()
			for ev := range sub.Events {
				seenMu.Lock()
				if len(seen) >= seenCap {
					seen = make(map[string]struct{}, 1024)
				}
				_, dup := seen[ev.ID]
				if !dup {
					seen[ev.ID] = struct{}{}
				}
				seenMu.Unlock()
				if dup {
					continue
				}
				select {
				case ps.Events <- ev:
				default:
					// Slow consumer: drop rather than stall the pool.
				}
			}
		}(sub)
	}

	go func() {
		eoseWG.Wait()
		ps.eoseOnce.Do(func() { close(ps.eose) })
	}()
	go func() {
		ps.wg.Wait()
		close(ps.Events)
	}()

	return ps, nil
}

// Publish sends the event to every relay and returns the per-relay error
// map. A nil map entry means the relay acknowledged the event.
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event) map[string]error {
	p.mu.Lock()
	relays := p.snapshot()
	p.mu.Unlock()

	results := make(map[string]error, len(relays))
	var (
		resMu sync.Mutex
		wg    sync.WaitGroup
	)
	for _, r := range relays {
		wg.Add(1)
		go func(r *Relay) {
			defer wg.Done()
			err := r.Publish(ctx, ev)
			resMu.Lock()
			results[r.URL] = err
			resMu.Unlock()
		}(r)
	}
	wg.Wait()
	return results
}

// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultDialTimeout bounds the websocket handshake.
	DefaultDialTimeout = 10 * time.Second

	// DefaultPublishTimeout bounds the wait for a relay OK.
	DefaultPublishTimeout = 15 * time.Second

	// pingInterval is how often the writer sends a ping frame.
	pingInterval = 30 * time.Second

	// readTimeout is the read deadline; any inbound traffic resets it.
	readTimeout = 90 * time.Second

	// subBuffer is the per-subscription event channel capacity. Events
	// beyond it are dropped and counted rather than blocking the reader.
	subBuffer = 256

	// writeBuffer is the outbound frame queue capacity.
	writeBuffer = 256

	// reconnectBase and reconnectMax bound the reconnect backoff.
	reconnectBase = time.Second
	reconnectMax  = 2 * time.Minute

	// publishRate and publishBurst throttle event publishes per relay.
	publishRate  = 5 // events per second
	publishBurst = 10
)

var (
	ErrClosed      = errors.New("relay closed")
	ErrNotAccepted = errors.New("relay rejected event")
	ErrQueueFull   = errors.New("relay write queue full")
)

// =============================================================================
// RELAY
// =============================================================================

// Relay is one websocket relay connection. It reconnects automatically
// with exponential backoff and restores active subscriptions.
type Relay struct {
	URL string

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string]*Subscription
	okWait map[string]chan okResult
	closed bool
	online bool

	writeCh chan []byte
	done    chan struct{}

	limiter  *rate.Limiter
	debug    bool
	authSign AuthSigner

	// Counters (atomic).
	eventsSeen int64
	invalid    int64
	dropped    int64
	failures   int64
	lastSeen   int64 // unix seconds
}

type okResult struct {
	ok     bool
	reason string
}

// Option configures a Relay.
type Option func(*Relay)

// WithDebug enables connection logging.
func WithDebug(debug bool) Option {
	return func(r *Relay) { r.debug = debug }
}

// AuthSigner produces a signed kind-22242 event answering an AUTH
// challenge from the given relay (NIP-42).
type AuthSigner func(relayURL, challenge string) (*nostr.Event, error)

// WithAuthSigner answers relay AUTH challenges with events from the
// signer. Without one, challenges are ignored.
func WithAuthSigner(sign AuthSigner) Option {
	return func(r *Relay) { r.authSign = sign }
}

// New creates a relay handle for the given wss:// URL. No connection is
// made until Connect.
func New(url string, opts ...Option) *Relay {
	r := &Relay{
		URL:     url,
		subs:    make(map[string]*Subscription),
		okWait:  make(map[string]chan okResult),
		writeCh: make(chan []byte, writeBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(publishRate), publishBurst),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect dials the relay and starts the connection supervisor. The first
// dial error is returned to the caller; later disconnects reconnect in the
// background.
func (r *Relay) Connect(ctx context.Context) error {
	conn, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", r.URL, err)
	}
	go r.run(ctx, conn)
	return nil
}

func (r *Relay) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultDialTimeout}
	conn, _, err := dialer.DialContext(ctx, r.URL, nil)
	if err != nil {
		atomic.AddInt64(&r.failures, 1)
		return nil, err
	}
	return conn, nil
}

// run owns the connection lifecycle: it attaches a writer and a reader to
// the current socket, and redials with backoff when the reader exits.
func (r *Relay) run(ctx context.Context, conn *websocket.Conn) {
	attempt := 0
	for {
		r.setConn(conn)
		r.resubscribe()

		writerDone := make(chan struct{})
		go r.writeLoop(conn, writerDone)
		r.readLoop(conn)

		close(writerDone)
		conn.Close()
		r.setOffline()

		if r.isClosed() || ctx.Err() != nil {
			return
		}

		for {
			delay := backoff(attempt)
			attempt++
			if r.debug {
				log.Printf("relay %s: reconnecting in %v", r.URL, delay)
			}
			select {
			case <-r.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, err := r.dial(ctx)
			if err == nil {
				conn = next
				attempt = 0
				break
			}
		}
	}
}

// backoff returns an exponential delay with jitter.
func backoff(attempt int) time.Duration {
	if attempt > 7 {
		attempt = 7
	}
	d := reconnectBase << uint(attempt)
	if d > reconnectMax {
		d = reconnectMax
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

func (r *Relay) setConn(conn *websocket.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.online = true
	r.mu.Unlock()
}

func (r *Relay) setOffline() {
	r.mu.Lock()
	r.online = false
	r.mu.Unlock()
}

func (r *Relay) isClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Connected reports whether the socket is currently up.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Close tears down the connection and all subscriptions.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conn := r.conn
	subs := r.subs
	r.subs = make(map[string]*Subscription)
	r.mu.Unlock()

	close(r.done)
	if conn != nil {
		conn.Close()
	}
	for _, sub := range subs {
		sub.finish()
	}
}

// =============================================================================
// READ / WRITE LOOPS
// =============================================================================

// writeLoop is the only goroutine that writes to the socket.
func (r *Relay) writeLoop(conn *websocket.Conn, done chan struct{}) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.done:
			return
		case msg := <-r.writeCh:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (r *Relay) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		atomic.StoreInt64(&r.lastSeen, time.Now().Unix())

		frame, err := parseFrame(data)
		if err != nil {
			// One bad frame does not invalidate the stream.
			continue
		}
		r.dispatch(frame)
	}
}

func (r *Relay) dispatch(f *Frame) {
	switch f.Label {
	case labelEvent:
		atomic.AddInt64(&r.eventsSeen, 1)
		r.mu.Lock()
		sub := r.subs[f.Sub]
		r.mu.Unlock()
		if sub == nil {
			// Event for a closed subscription.
			return
		}
		if ok, _ := f.Event.Verify(); !ok {
			atomic.AddInt64(&r.invalid, 1)
			return
		}
		if !sub.deliver(f.Event) {
			atomic.AddInt64(&r.dropped, 1)
		}
	case labelEOSE:
		r.mu.Lock()
		sub := r.subs[f.Sub]
		r.mu.Unlock()
		if sub != nil {
			sub.signalEOSE()
		}
	case labelOK:
		r.mu.Lock()
		ch := r.okWait[f.ID]
		delete(r.okWait, f.ID)
		r.mu.Unlock()
		if ch != nil {
			ch <- okResult{ok: f.OK, reason: f.Text}
		}
	case labelClosed:
		r.mu.Lock()
		sub := r.subs[f.Sub]
		delete(r.subs, f.Sub)
		r.mu.Unlock()
		if sub != nil {
			sub.finish()
		}
	case labelNotice:
		if r.debug {
			log.Printf("relay %s: notice: %s", r.URL, f.Text)
		}
	case labelAuth:
		r.answerAuth(f.Text)
	default:
		// Unknown labels are ignored for forward compatibility.
	}
}

// answerAuth responds to an AUTH challenge with a signed kind-22242
// event when a signer is configured.
func (r *Relay) answerAuth(challenge string) {
	if r.authSign == nil || challenge == "" {
		return
	}
	ev, err := r.authSign(r.URL, challenge)
	if err != nil {
		if r.debug {
			log.Printf("relay %s: auth: %v", r.URL, err)
		}
		return
	}
	if msg, err := authFrame(ev); err == nil {
		_ = r.enqueue(msg)
	}
}

// enqueue queues an outbound frame for the writer.
func (r *Relay) enqueue(msg []byte) error {
	if r.isClosed() {
		return ErrClosed
	}
	select {
	case r.writeCh <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// =============================================================================
// SUBSCRIBE / PUBLISH
// =============================================================================

// Subscribe opens a REQ subscription. Events arriving on the socket that
// fail signature verification are dropped and counted.
func (r *Relay) Subscribe(ctx context.Context, filters []nostr.Filter) (*Subscription, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}

	sub := &Subscription{
		ID:      uuid.NewString(),
		Filters: filters,
		Events:  make(chan *nostr.Event, subBuffer),
		eose:    make(chan struct{}),
		relay:   r,
	}

	msg, err := reqFrame(sub.ID, filters)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	if err := r.enqueue(msg); err != nil {
		r.removeSub(sub.ID)
		return nil, err
	}
	return sub, nil
}

// resubscribe replays REQ frames for live subscriptions after a reconnect.
func (r *Relay) resubscribe() {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		if msg, err := reqFrame(sub.ID, sub.Filters); err == nil {
			_ = r.enqueue(msg)
		}
	}
}

func (r *Relay) removeSub(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Publish sends an event and waits for the relay's OK, subject to the
// context deadline and the relay's publish rate limit.
func (r *Relay) Publish(ctx context.Context, ev *nostr.Event) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	msg, err := eventFrame(ev)
	if err != nil {
		return err
	}

	ch := make(chan okResult, 1)
	r.mu.Lock()
	r.okWait[ev.ID] = ch
	r.mu.Unlock()

	cleanup := func() {
		r.mu.Lock()
		delete(r.okWait, ev.ID)
		r.mu.Unlock()
	}

	if err := r.enqueue(msg); err != nil {
		cleanup()
		return err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPublishTimeout)
		defer cancel()
	}

	select {
	case res := <-ch:
		if !res.ok {
			return fmt.Errorf("%w: %s", ErrNotAccepted, res.reason)
		}
		return nil
	case <-ctx.Done():
		cleanup()
		return ctx.Err()
	case <-r.done:
		cleanup()
		return ErrClosed
	}
}

// =============================================================================
// STATS
// =============================================================================

// Stats is a snapshot of per-relay counters.
type Stats struct {
	URL        string
	Connected  bool
	EventsSeen int64
	Invalid    int64
	Dropped    int64
	Failures   int64
	LastSeen   time.Time
}

// Stats returns a snapshot of the relay's counters.
func (r *Relay) Stats() Stats {
	last := atomic.LoadInt64(&r.lastSeen)
	var lastSeen time.Time
	if last > 0 {
		lastSeen = time.Unix(last, 0)
	}
	return Stats{
		URL:        r.URL,
		Connected:  r.Connected(),
		EventsSeen: atomic.LoadInt64(&r.eventsSeen),
		Invalid:    atomic.LoadInt64(&r.invalid),
		Dropped:    atomic.LoadInt64(&r.dropped),
		Failures:   atomic.LoadInt64(&r.failures),
		LastSeen:   lastSeen,
	}
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscription is a live REQ. Events arrive on Events; EOSE closes the
// channel returned by EOSE once the relay has sent its stored events.
type Subscription struct {
	ID      string
	Filters []nostr.Filter
	Events  chan *nostr.Event

	eose     chan struct{}
	eoseOnce sync.Once
	relay    *Relay

	mu     sync.Mutex
	closed bool
}

// EOSE is closed when the relay signals the end of stored events.
func (s *Subscription) EOSE() <-chan struct{} { return s.eose }

func (s *Subscription) signalEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

// deliver hands an event to the consumer without blocking the reader.
// Returns false if the subscription is closed or its buffer is full.
func (s *Subscription) deliver(ev *nostr.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.Events <- ev:
		return true
	default:
		return false
	}
}

// Close unsubscribes and closes the Events channel.
func (s *Subscription) Close() {
	s.relay.removeSub(s.ID)
	if msg, err := closeFrame(s.ID); err == nil {
		_ = s.relay.enqueue(msg)
	}
	s.finish()
}

func (s *Subscription) finish() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.signalEOSE()
	close(s.Events)
}

// Package gateway consumes normalized inbound messages from the bus and
// drives the orchestrator, guaranteeing that messages from the same channel
// address are handled strictly in arrival order, one at a time. Messages
// from different addresses run concurrently.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/metrics"
	"github.com/chuchurex/papaia.cl/internal/orchestrator"
)

const (
	workerQueueSize  = 128
	workerIdleExpiry = 5 * time.Minute
)

// Gateway owns the dispatch loop. One worker goroutine per active address
// drains that address's queue in FIFO order; the per-address mutex extends
// the same serialization to out-of-band approvals.
type Gateway struct {
	bus     domain.MessageBus
	store   domain.CaptureStore
	machine *orchestrator.Machine
	logger  *slog.Logger

	mu      sync.Mutex
	workers map[string]chan domain.InboundMessage
	locks   map[string]*addressLock
	wg      sync.WaitGroup
}

// addressLock serializes one address across the message path and out-of-band
// approvals. refs counts holders and waiters so the registry entry can be
// dropped once the last one releases, keeping the map bounded by live
// traffic.
type addressLock struct {
	mu   sync.Mutex
	refs int
}

func New(bus domain.MessageBus, store domain.CaptureStore, machine *orchestrator.Machine, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		bus:     bus,
		store:   store,
		machine: machine,
		logger:  logger,
		workers: make(map[string]chan domain.InboundMessage),
		locks:   make(map[string]*addressLock),
	}
}

// Run consumes the bus until ctx is cancelled, then waits for in-flight
// workers to drain.
func (g *Gateway) Run(ctx context.Context) {
	inbound := g.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			g.wg.Wait()
			return
		case msg, ok := <-inbound:
			if !ok {
				g.wg.Wait()
				return
			}
			g.dispatch(ctx, msg)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, msg domain.InboundMessage) {
	g.mu.Lock()
	queue, ok := g.workers[msg.From]
	if !ok {
		queue = make(chan domain.InboundMessage, workerQueueSize)
		g.workers[msg.From] = queue
		g.wg.Add(1)
		go g.worker(ctx, msg.From, queue)
	}

	// Enqueue under the map lock so the idle-exit check in worker() cannot
	// race with a late enqueue into an abandoned queue.
	select {
	case queue <- msg:
	default:
		g.logger.Warn("address queue full, dropping message",
			"address", msg.From, "channel", msg.Channel)
	}
	g.mu.Unlock()
}

func (g *Gateway) worker(ctx context.Context, address string, queue chan domain.InboundMessage) {
	defer g.wg.Done()
	idle := time.NewTimer(workerIdleExpiry)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			g.removeWorker(address)
			return
		case msg := <-queue:
			g.process(ctx, msg)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(workerIdleExpiry)
		case <-idle.C:
			if g.tryRetire(address, queue) {
				return
			}
			idle.Reset(workerIdleExpiry)
		}
	}
}

// tryRetire removes the worker from the registry if its queue is still
// empty. Done under the map lock so dispatch cannot enqueue concurrently.
func (g *Gateway) tryRetire(address string, queue chan domain.InboundMessage) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(queue) > 0 {
		return false
	}
	delete(g.workers, address)
	return true
}

func (g *Gateway) removeWorker(address string) {
	g.mu.Lock()
	delete(g.workers, address)
	g.mu.Unlock()
}

// publishLogger is implemented by stores that keep a durable audit trail of
// publication fan-outs (the sqlite backend does; memory does not).
type publishLogger interface {
	LogPublish(ctx context.Context, captureID string, results []domain.PublishResult) error
}

func (g *Gateway) logPublish(ctx context.Context, rec *domain.CaptureRecord) {
	pl, ok := g.store.(publishLogger)
	if !ok {
		return
	}
	if err := pl.LogPublish(ctx, rec.ID, rec.Results); err != nil {
		g.logger.Error("publish log failed", "capture", rec.ID, "error", err)
	}
}

func (g *Gateway) acquireAddress(address string) *addressLock {
	g.mu.Lock()
	lock, ok := g.locks[address]
	if !ok {
		lock = &addressLock{}
		g.locks[address] = lock
	}
	lock.refs++
	g.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (g *Gateway) releaseAddress(address string, lock *addressLock) {
	lock.mu.Unlock()
	g.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(g.locks, address)
	}
	g.mu.Unlock()
}

func (g *Gateway) process(ctx context.Context, msg domain.InboundMessage) {
	lock := g.acquireAddress(msg.From)
	defer g.releaseAddress(msg.From, lock)

	metrics.MessagesTotal.Inc()
	metrics.Collector.Counter("papaia_channel_messages_total",
		"Inbound messages by channel and kind",
		fmt.Sprintf("channel=%q,kind=%q", msg.Channel, msg.Kind)).Inc()

	rec, err := g.store.Get(ctx, msg.From)
	if err != nil {
		g.logger.Error("capture lookup failed", "address", msg.From, "error", err)
		return
	}

	var reply string
	if rec == nil {
		rec = domain.NewCapture(msg.Channel, msg.From, "")
		reply = g.machine.Welcome(ctx, rec)
		metrics.CapturesStarted.Inc()
		metrics.ActiveCaptures.Inc()
		g.logger.Info("capture started", "capture", rec.ID, "channel", msg.Channel, "address", msg.From)
	} else {
		prev := rec.State
		reply = g.machine.HandleMessage(ctx, rec, msg)
		if rec.State == domain.StateCompleted && prev != domain.StateCompleted {
			metrics.ActiveCaptures.Dec()
			g.logPublish(ctx, rec)
		}
	}

	if err := g.store.Put(ctx, rec); err != nil {
		g.logger.Error("capture persist failed", "capture", rec.ID, "error", err)
	}

	if reply != "" {
		g.bus.SendOutbound(domain.OutboundMessage{
			Channel: rec.Channel,
			To:      rec.ChannelAddress,
			Content: reply,
		})
	}
}

// Approve publishes the capture for an address out of band (API-triggered
// instead of a chat reply). It takes the same per-address lock the message
// path takes, so it never interleaves with message handling.
func (g *Gateway) Approve(ctx context.Context, address string) ([]domain.PublishResult, error) {
	lock := g.acquireAddress(address)
	defer g.releaseAddress(address, lock)

	rec, err := g.store.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no capture in flight for %s", address)
	}

	results, err := g.machine.HandleApproval(ctx, rec)
	if putErr := g.store.Put(ctx, rec); putErr != nil {
		g.logger.Error("capture persist failed", "capture", rec.ID, "error", putErr)
	}
	if err != nil {
		return nil, err
	}

	metrics.PublishTotal.Inc()
	for _, r := range results {
		if !r.Success {
			metrics.PublishFailures.Inc()
		}
	}
	metrics.ActiveCaptures.Dec()
	g.logPublish(ctx, rec)

	g.bus.SendOutbound(domain.OutboundMessage{
		Channel: rec.Channel,
		To:      rec.ChannelAddress,
		Content: g.machine.Confirmation(ctx, rec),
	})
	return results, nil
}

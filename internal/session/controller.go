// Package session runs capture sessions and keeps the records they produce.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"netrisk/internal/analysis"
	"netrisk/internal/capture"
	"netrisk/internal/metrics"
	"netrisk/internal/models"
	"netrisk/internal/normalize"
	"netrisk/internal/sequence"
)

// StartResult is the outcome of Start.
type StartResult string

const (
	Started        StartResult = "started"
	AlreadyRunning StartResult = "already_running"
)

// StopResult is the outcome of Stop.
type StopResult string

const (
	Stopped    StopResult = "stopped"
	NotRunning StopResult = "not_running"
)

const defaultStopTimeout = 2 * time.Second

// Options configures a Controller.
type Options struct {
	Facility    capture.Facility
	Normalizer  *normalize.Normalizer
	StopTimeout time.Duration
	Analysis    analysis.Config
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Controller owns the capture lifecycle: Idle, then Capturing, then Idle again.
// All exported methods are safe for concurrent use.
type Controller struct {
	facility    capture.Facility
	normalizer  *normalize.Normalizer
	stopTimeout time.Duration
	metrics     *metrics.Metrics
	log         *zap.Logger

	issuer *sequence.Issuer
	stats  *analysis.TrafficStats

	mu         sync.RWMutex
	capturing  bool
	generation uint64
	sessionID  string
	iface      string
	buffer     []models.PacketRecord
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	return &Controller{
		facility:    opts.Facility,
		normalizer:  opts.Normalizer,
		stopTimeout: opts.StopTimeout,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		issuer:      sequence.NewIssuer(),
		stats:       analysis.NewTrafficStats(opts.Analysis),
	}
}

// Start begins a new session on iface. An empty iface lets the facility choose.
// A running session is left untouched.
func (c *Controller) Start(iface string) StartResult {
	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return AlreadyRunning
	}

	c.clear()
	c.capturing = true
	c.generation++
	c.sessionID = uuid.NewString()
	c.iface = iface

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	gen := c.generation
	log := c.log.With(zap.String("session", c.sessionID), zap.String("interface", iface))
	c.mu.Unlock()

	c.metrics.SessionStarted()
	log.Info("capture session started")

	go c.run(ctx, gen, iface, done, log)
	return Started
}

func (c *Controller) run(ctx context.Context, gen uint64, iface string, done chan struct{}, log *zap.Logger) {
	failed := false
	defer func() {
		if p := recover(); p != nil {
			failed = true
			log.Error("capture loop panicked", zap.Any("panic", p))
		}
		if c.finish(gen) {
			c.metrics.SessionEnded(failed)
		}
		close(done)
	}()

	stop := func() bool { return ctx.Err() != nil }
	onFrame := func(frame gopacket.Packet) { c.ingest(gen, frame, log) }

	if err := c.facility.Sniff(iface, onFrame, stop); err != nil {
		failed = true
		log.Error("capture loop ended with error", zap.Error(err))
		return
	}
	log.Info("capture loop ended")
}

// ingest turns one frame into a record. Frames of a stopped session still land; frames from
// a loop that was reset or replaced by a newer session are dropped and counted.
// Normalize runs outside c.mu. The id is issued under c.mu together with the append, so id
// order equals buffer order and ids have no gaps.
func (c *Controller) ingest(gen uint64, frame gopacket.Packet, log *zap.Logger) {
	c.mu.RLock()
	stale := c.generation != gen
	c.mu.RUnlock()
	if stale {
		c.drop(gen, log)
		return
	}

	out := c.normalizer.Normalize(frame, 0)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.drop(gen, log)
		return
	}
	id := c.issuer.Next()
	out.Record.ID = id
	c.buffer = append(c.buffer, out.Record)
	c.stats.ProcessRecord(out.Record)
	c.mu.Unlock()

	if out.Degraded {
		log.Debug("degraded packet", zap.Uint64("id", id), zap.Error(out.Err))
	}
	c.metrics.Packet(out.Record, out.Degraded)
}

func (c *Controller) drop(gen uint64, log *zap.Logger) {
	log.Debug("dropping frame from a superseded capture loop", zap.Uint64("generation", gen))
	c.metrics.Dropped()
}

// finish returns the controller to Idle if gen is still the current session and reports
// whether no newer session has started since.
func (c *Controller) finish(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	if c.capturing {
		c.capturing = false
		c.cancel()
	}
	return true
}

// Stop ends the running session and waits up to the stop timeout for its loop.
// The buffer is kept, including a frame the loop was delivering when Stop was called.
func (c *Controller) Stop() StopResult {
	c.mu.Lock()
	h, ok := c.detach()
	c.mu.Unlock()
	if !ok {
		return NotRunning
	}
	c.wait(h)
	return Stopped
}

// Reset stops any session and discards its records.
func (c *Controller) Reset() {
	c.mu.Lock()
	h, ok := c.detach()
	c.clear()
	c.sessionID, c.iface = "", ""
	// frames still in flight belong to the discarded session
	c.generation++
	c.mu.Unlock()
	if ok {
		c.wait(h)
		c.metrics.SessionEnded(false)
	}
	c.log.Info("capture session reset")
}

type handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// detach flips the running session to Idle. Callers hold c.mu.
func (c *Controller) detach() (handle, bool) {
	if !c.capturing {
		return handle{}, false
	}
	c.capturing = false
	return handle{id: c.sessionID, cancel: c.cancel, done: c.done}, true
}

func (c *Controller) wait(h handle) {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(c.stopTimeout):
		c.log.Warn("capture loop did not stop in time, leaving it behind",
			zap.String("session", h.id), zap.Duration("timeout", c.stopTimeout))
	}
	c.log.Info("capture session stopped", zap.String("session", h.id))
}

// clear empties the buffer, issuer and summary. Callers hold c.mu.
func (c *Controller) clear() {
	c.buffer = nil
	c.issuer.Reset()
	c.stats.Reset()
}

// Snapshot returns a copy of the last limit records in arrival order.
func (c *Controller) Snapshot(limit int) []models.PacketRecord {
	if limit <= 0 {
		return []models.PacketRecord{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if len(c.buffer) > limit {
		start = len(c.buffer) - limit
	}
	out := make([]models.PacketRecord, len(c.buffer)-start)
	copy(out, c.buffer[start:])
	return out
}

// Status reports whether a session is running and how many records it holds.
func (c *Controller) Status() models.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.Status{
		Capturing:     c.capturing,
		TotalCaptured: len(c.buffer),
		SessionID:     c.sessionID,
		Interface:     c.iface,
	}
}

// Summary aggregates the current session with at most top talkers.
func (c *Controller) Summary(top int) analysis.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats.Summary(top)
}

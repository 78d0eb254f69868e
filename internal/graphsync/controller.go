// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/shgat"
	"github.com/AleutianAI/capgateway/internal/vectorstore"
)

// defaultQueueSize bounds the inbound event queue; Submit blocks (subject
// to ctx) once it is full rather than growing without limit.
const defaultQueueSize = 1024

// defaultSeenWindow is how many recent event IDs the idempotency filter
// remembers before evicting the oldest, mirroring the bounded-buffer style
// the replay package uses for its own FIFO eviction.
const defaultSeenWindow = 10000

var (
	eventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capgateway_graphsync_events_applied_total",
		Help: "Capability-lifecycle events applied to the graph, by kind.",
	}, []string{"kind"})
	eventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgateway_graphsync_events_duplicate_total",
		Help: "Inbound events skipped because their ID was already applied.",
	})
	eventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capgateway_graphsync_events_failed_total",
		Help: "Inbound events that failed to apply, by kind.",
	}, []string{"kind"})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capgateway_graphsync_queue_depth",
		Help: "Pending events in the graph sync controller's inbound queue.",
	})
)

// Config bundles Controller's construction-time dependencies.
type Config struct {
	Graph   *graphstore.Store
	Scorer  *shgat.Scorer      // optional; marked stale after every applied mutation
	Vectors *vectorstore.Cache // optional; absorbed embeddings are dropped on merge

	QueueSize int // default 1024
	Logger    *slog.Logger
}

// Controller is Component H. It is both the single writer that drains
// the inbound event queue and applies mutations to the graph store, and
// the graphstore.EventSink that Store calls back once a mutation's
// snapshot pointer has flipped.
//
// # Thread Safety
//
// Exactly one goroutine (started by Run) drains the queue and calls into
// Store; Submit is safe to call from any number of goroutines. The
// EventSink callbacks run synchronously on Store's mutating goroutine,
// which is the same goroutine as the queue consumer, since every mutation
// this package performs is the direct result of applying a queued event.
type Controller struct {
	cfg    Config
	logger *slog.Logger
	hub    *hub

	queue chan Event

	mu   sync.Mutex
	seen map[string]struct{}
	seq  []string // insertion order of seen, for bounded eviction

	wg   sync.WaitGroup
	done chan struct{}
}

// New constructs a Controller. It does not start consuming until Run is
// called.
func New(cfg Config) *Controller {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		logger: logger,
		hub:    newHub(logger),
		queue:  make(chan Event, cfg.QueueSize),
		seen:   make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

// StreamHandler returns the http.Handler to mount at GET
// /v1/events/stream for websocket dashboard consumption.
func (c *Controller) StreamHandler() http.Handler {
	return c.hub
}

// Submit enqueues an inbound event for application, blocking until the
// queue has room or ctx is done. It does not itself apply the event or
// return an application error; failures surface only via Applied events
// on the stream and the eventsFailed metric, matching the "event handlers
// that fail log and drop" behavior of the rest of the gateway.
func (c *Controller) Submit(ctx context.Context, ev Event) error {
	select {
	case c.queue <- ev:
		queueDepth.Set(float64(len(c.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the single consumer goroutine and blocks until ctx is
// canceled, at which point it drains no further events and returns.
func (c *Controller) Run(ctx context.Context) {
	c.wg.Add(1)
	defer c.wg.Done()
	for {
		select {
		case ev := <-c.queue:
			queueDepth.Set(float64(len(c.queue)))
			c.process(ev)
		case <-ctx.Done():
			close(c.done)
			return
		}
	}
}

// Wait blocks until Run has returned after a context cancellation.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) process(ev Event) {
	if c.alreadySeen(ev.ID) {
		eventsDuplicate.Inc()
		return
	}

	applied := Applied{Event: ev}
	var err error
	switch ev.Kind {
	case KindCapabilityCreated:
		_, err = c.cfg.Graph.AddOrGetCapability(ev.toCapabilityInput())
		applied.Canonical = ev.FQDN
	case KindCapabilityUpdated:
		if len(ev.Embedding) > 0 {
			c.logger.Warn("graphsync: capability.updated carried an embedding, which the graph store cannot apply; updating membership only",
				slog.String("fqdn", ev.FQDN))
		}
		err = c.cfg.Graph.UpdateCapabilityMembers(ev.FQDN, ev.Members)
		applied.Canonical = ev.FQDN
	case KindCapabilityMerged:
		var canonical string
		canonical, err = c.cfg.Graph.MergeCapabilities(ev.MergeA, ev.MergeB)
		applied.Canonical = canonical
		if canonical == ev.MergeA {
			applied.Absorbed = ev.MergeB
		} else {
			applied.Absorbed = ev.MergeA
		}
	default:
		err = gatewayerr.New(gatewayerr.KindUnknownID, fmt.Sprintf("graphsync: unknown event kind %q", ev.Kind))
	}

	c.markSeen(ev.ID)
	eventsApplied.WithLabelValues(string(ev.Kind)).Inc()

	if err != nil {
		eventsFailed.WithLabelValues(string(ev.Kind)).Inc()
		applied.Err = err.Error()
		c.logger.Warn("graphsync: event application failed",
			slog.String("id", ev.ID), slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
	}
	c.hub.broadcast(applied)
}

func (c *Controller) alreadySeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

func (c *Controller) markSeen(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[id]; ok {
		return
	}
	c.seen[id] = struct{}{}
	c.seq = append(c.seq, id)
	if len(c.seq) > defaultSeenWindow {
		oldest := c.seq[0]
		c.seq = c.seq[1:]
		delete(c.seen, oldest)
	}
}

// CapabilityCreated implements graphstore.EventSink.
func (c *Controller) CapabilityCreated(fqdn string) {
	c.onMutation()
}

// CapabilityUpdated implements graphstore.EventSink.
func (c *Controller) CapabilityUpdated(fqdn string) {
	c.onMutation()
}

// CapabilityMerged implements graphstore.EventSink. It drops the absorbed
// capability's embedding from the vector index: absorbed ids never rank
// again, since all references have already been redirected to the
// surviving FQDN.
func (c *Controller) CapabilityMerged(oldFQDN, newFQDN string) {
	c.onMutation()
	if c.cfg.Vectors != nil {
		c.cfg.Vectors.Remove(context.Background(), oldFQDN)
	}
}

func (c *Controller) onMutation() {
	if c.cfg.Scorer != nil {
		c.cfg.Scorer.MarkStale()
	}
}

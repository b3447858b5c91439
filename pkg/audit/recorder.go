/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/moncoffretelec/coffret/pkg/metrics"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// QueueSize is the size of the async event queue.
	// Default: 1000
	QueueSize int

	// WriteTimeout bounds each sink write.
	// Default: 5s
	WriteTimeout time.Duration
}

// Recorder queues events and writes them to every sink from a single
// worker, so slow sinks never delay a submission. Events are dropped when
// the queue is full.
type Recorder struct {
	sinks   []Sink
	queue   chan *Event
	timeout time.Duration
	logger  *zap.Logger

	dropped atomic.Int64
	closed  atomic.Bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewRecorder starts the worker. Close must be called to flush and release
// the sinks.
func NewRecorder(cfg RecorderConfig, logger *zap.Logger, sinks ...Sink) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{
		sinks:   sinks,
		queue:   make(chan *Event, cfg.QueueSize),
		timeout: cfg.WriteTimeout,
		logger:  logger.Named("audit-recorder"),
	}
	r.wg.Add(1)
	go r.process()
	return r
}

// Record enqueues event without blocking.
func (r *Recorder) Record(event *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() {
		r.drop(event, "closed")
		return
	}
	select {
	case r.queue <- event:
	default:
		r.drop(event, "queue_full")
	}
}

// Dropped returns the number of events that never reached the sinks.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events, drains the queue and closes every sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed.Swap(true) {
		r.mu.Unlock()
		return nil
	}
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()

	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Recorder) drop(event *Event, reason string) {
	r.dropped.Add(1)
	metrics.AuditEventsDropped.WithLabelValues(reason).Inc()
	r.logger.Warn("audit event dropped",
		zap.String("reason", reason),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
}

func (r *Recorder) process() {
	defer r.wg.Done()
	for event := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			err := s.Write(ctx, event)
			cancel()
			if err != nil {
				metrics.AuditEvents.WithLabelValues(s.Name(), "failed").Inc()
				r.logger.Warn("audit sink write failed",
					zap.String("sink", s.Name()),
					zap.String("event_id", event.ID),
					zap.Error(err))
				continue
			}
			metrics.AuditEvents.WithLabelValues(s.Name(), "written").Inc()
		}
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(*Event) {}
func (Nop) Close() error  { return nil }

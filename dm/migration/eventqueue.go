// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package migration

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pingcap/dm/pkg/log"
)

// event is one unit of work run by the EventLoop's single worker.
type event struct {
	name string
	run  func(ctx context.Context) error
}

type deferredEvent struct {
	ev       *event
	deadline time.Time
	seq      uint64
}

// EventLoop is the single-consumer serial event queue described by §4.2: it
// accepts append (tail), prepend (head, used once at startup) and
// scheduleDeferred (deadline-ordered) submissions, and runs exactly one
// event at a time on a dedicated worker goroutine — never a
// goroutine-per-event — classifying any error the event returns per §7.
type EventLoop struct {
	logger       log.Logger
	faultHandler FaultHandler

	mu       sync.Mutex
	cond     *sync.Cond
	queue    *list.List // of *event
	deferred []deferredEvent
	seq      uint64
	closed   bool

	wg sync.WaitGroup
}

// NewEventLoop constructs an EventLoop. Start must be called before any
// event runs.
func NewEventLoop(logger log.Logger, faultHandler FaultHandler) *EventLoop {
	l := &EventLoop{
		logger:       logger,
		faultHandler: faultHandler,
		queue:        list.New(),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start launches the worker goroutine. It returns immediately; the worker
// runs until ctx is done or Shutdown is called.
func (l *EventLoop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
	go func() {
		<-ctx.Done()
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	}()
}

// Shutdown marks the queue closed: no further Append/Prepend/ScheduleDeferred
// calls are accepted (they return errQueueClosed), but events already in
// the FIFO, and deferred events whose deadline has passed, are still run
// before the worker exits. Deferred events not yet due are dropped.
// Shutdown blocks until the worker has exited.
func (l *EventLoop) Shutdown() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	l.wg.Wait()
}

// Append enqueues ev at the tail of the FIFO.
func (l *EventLoop) Append(ev *event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errQueueClosed
	}
	l.queue.PushBack(ev)
	l.cond.Broadcast()
	return nil
}

// Prepend enqueues ev at the head of the FIFO, ahead of anything already
// queued. Used once, for the initial PollEvent at startup.
func (l *EventLoop) Prepend(ev *event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errQueueClosed
	}
	l.queue.PushFront(ev)
	l.cond.Broadcast()
	return nil
}

// ScheduleDeferred enqueues ev to run no earlier than deadline. Among
// deferred events sharing a deadline, insertion order is preserved.
func (l *EventLoop) ScheduleDeferred(ev *event, deadline time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errQueueClosed
	}
	l.seq++
	l.deferred = append(l.deferred, deferredEvent{ev: ev, deadline: deadline, seq: l.seq})
	sort.SliceStable(l.deferred, func(i, j int) bool {
		if !l.deferred[i].deadline.Equal(l.deferred[j].deadline) {
			return l.deferred[i].deadline.Before(l.deferred[j].deadline)
		}
		return l.deferred[i].seq < l.deferred[j].seq
	})
	l.cond.Broadcast()
	return nil
}

// run is the worker loop: the only goroutine that ever executes an event's
// run function, giving the driver's field mutations (§5 I1) a single
// writer.
func (l *EventLoop) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		ev, ok := l.next(ctx)
		if !ok {
			return
		}
		l.execute(ctx, ev)
	}
}

// next blocks until an event is ready to run, the loop is closed and
// drained, or ctx is done.
func (l *EventLoop) next(ctx context.Context) (*event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		if front := l.queue.Front(); front != nil {
			l.queue.Remove(front)
			return front.Value.(*event), true
		}
		if len(l.deferred) > 0 {
			due := l.deferred[0]
			if !due.deadline.After(time.Now()) {
				l.deferred = l.deferred[1:]
				return due.ev, true
			}
			if !l.closed {
				// Wait until the earliest deadline, but re-check on any
				// Append/Prepend/ScheduleDeferred/Shutdown in the meantime.
				wait := time.Until(due.deadline)
				timer := time.AfterFunc(wait, l.cond.Broadcast)
				l.cond.Wait()
				timer.Stop()
				continue
			}
		}
		if l.closed {
			return nil, false
		}
		l.cond.Wait()
	}
}

// execute runs ev and applies the §4.2/§7 exception classification policy
// to whatever error it returns.
func (l *EventLoop) execute(ctx context.Context, ev *event) {
	err := ev.run(ctx)
	if err == nil {
		return
	}
	switch classify(err) {
	case kindQueueClosed:
		// swallow
	case kindTransientStore:
		pollErrors.WithLabelValues(ev.name).Inc()
		l.logger.Info("transient legacy store error, retrying on next poll", zap.String("event", ev.name), log.ShortError(err))
	case kindAuthFailure:
		pollErrors.WithLabelValues(ev.name).Inc()
		l.faultHandler.HandleFault("legacy store authentication failure in "+ev.name, err)
	default:
		pollErrors.WithLabelValues(ev.name).Inc()
		l.faultHandler.HandleFault("unhandled fault in "+ev.name, err)
	}
}

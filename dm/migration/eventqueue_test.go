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
	"context"
	"time"

	"github.com/pingcap/check"

	"github.com/pingcap/dm/pkg/log"
)

var _ = check.Suite(&testEventQueueSuite{})

type testEventQueueSuite struct{}

func (t *testEventQueueSuite) TestFIFOOrderingAndPrepend(c *check.C) {
	faults := &fakeFaultHandler{}
	loop := NewEventLoop(log.L(), faults)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []string
	done := make(chan struct{}, 3)
	mk := func(name string) *event {
		return &event{name: name, run: func(context.Context) error {
			order = append(order, name)
			done <- struct{}{}
			return nil
		}}
	}

	c.Assert(loop.Append(mk("second")), check.IsNil)
	c.Assert(loop.Append(mk("third")), check.IsNil)
	c.Assert(loop.Prepend(mk("first")), check.IsNil)
	loop.Start(ctx)
	defer loop.Shutdown()

	for i := 0; i < 3; i++ {
		<-done
	}
	c.Assert(order, check.DeepEquals, []string{"first", "second", "third"})
}

func (t *testEventQueueSuite) TestScheduleDeferredRunsAfterDeadline(c *check.C) {
	faults := &fakeFaultHandler{}
	loop := NewEventLoop(log.L(), faults)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Shutdown()

	fired := make(chan time.Time, 1)
	start := time.Now()
	ev := &event{name: "deferred", run: func(context.Context) error {
		fired <- time.Now()
		return nil
	}}
	c.Assert(loop.ScheduleDeferred(ev, start.Add(30*time.Millisecond)), check.IsNil)

	select {
	case fireTime := <-fired:
		c.Assert(fireTime.Sub(start) >= 25*time.Millisecond, check.IsTrue)
	case <-time.After(time.Second):
		c.Fatal("deferred event never fired")
	}
}

func (t *testEventQueueSuite) TestAppendAfterShutdownReturnsQueueClosed(c *check.C) {
	faults := &fakeFaultHandler{}
	loop := NewEventLoop(log.L(), faults)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	loop.Shutdown()

	err := loop.Append(&event{name: "too-late", run: func(context.Context) error { return nil }})
	c.Assert(err, check.Equals, errQueueClosed)
}

func (t *testEventQueueSuite) TestQueueClosedErrorIsSwallowedNotEscalated(c *check.C) {
	faults := &fakeFaultHandler{}
	loop := NewEventLoop(log.L(), faults)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Shutdown()

	done := make(chan struct{})
	c.Assert(loop.Append(&event{name: "returns-closed", run: func(context.Context) error {
		defer close(done)
		return errQueueClosed
	}}), check.IsNil)
	<-done

	c.Assert(faults.count(), check.Equals, 0)
}

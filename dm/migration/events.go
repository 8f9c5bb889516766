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
)

// schedulePoll builds the self-scheduling PollEvent described by §4.3: it
// always reschedules itself defaultPollInterval (or cfg.PollInterval)
// ahead, regardless of whether its body did anything, so the state machine
// keeps making progress even with no external events arriving.
func (d *Driver) schedulePoll(ctx context.Context) {
	ev := &event{name: "PollEvent"}
	ev.run = func(ctx context.Context) error {
		err := d.runPollCycle(ctx)
		// Always re-schedule, even on error, so a transient failure does
		// not stall the driver permanently.
		d.loop.ScheduleDeferred(ev, time.Now().Add(d.cfg.PollInterval)) //nolint:errcheck
		return err
	}
	d.loop.Prepend(ev) //nolint:errcheck
}

// runPollCycle implements the §4.3 dispatch table: each state either runs
// inline recovery, no-ops, or enqueues the event that advances it.
func (d *Driver) runPollCycle(ctx context.Context) error {
	switch d.State() {
	case StateUninitialized:
		return d.recover(ctx)
	case StateInactive:
		return nil
	case StateWaitForControllerQuorum:
		return d.loop.Append(&event{name: "WaitForControllerQuorumEvent", run: d.handleWaitForControllerQuorum})
	case StateBecomeController:
		return d.loop.Append(&event{name: "BecomeControllerEvent", run: d.handleBecomeController})
	case StateWaitForBrokers:
		return d.loop.Append(&event{name: "WaitForBrokersEvent", run: d.handleWaitForBrokers})
	case StateZkMigration:
		return d.loop.Append(&event{name: "MigrateMetadataEvent", run: d.handleMigrateMetadata})
	case StateKRaftControllerToBrokerComm:
		return d.loop.Append(&event{name: "SendRPCsEvent", run: d.handleSendRPCs})
	case StateDualWrite:
		return nil
	default:
		return nil
	}
}

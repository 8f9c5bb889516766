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
	"sync"

	"github.com/pingcap/failpoint"
	"go.uber.org/zap"

	"github.com/pingcap/dm/dm/migration/image"
	"github.com/pingcap/dm/pkg/log"
)

// Driver is the Orchestrator (§2): it owns the mutable driver fields, wires
// the EventLoop, TransitionGuard, MigrationReplay and MetadataChangeHandler
// together, and implements the handlers for each event kind described in
// §4.4 through §4.12. All fields below the mutex are written only by the
// EventLoop's single worker goroutine (§5 I1); external callers (LogMeta
// callbacks, the Start/Shutdown/CurrentState control surface) only enqueue
// events or take a consistent read.
type Driver struct {
	cfg            *Config
	logger         log.Logger
	client         MigrationClient
	consumer       RecordConsumer
	propagator     Propagator
	quorumFeatures QuorumFeatures
	faultHandler   FaultHandler
	loop           *EventLoop

	// initialLoadCallback registers the driver as a LogMeta metadata
	// publisher. It is invoked exactly once, at the end of recovery (§9):
	// the driver must not be registered at construction time, or metadata
	// events could arrive before leadership/state are initialized.
	initialLoadCallback func(MetadataPublisher)

	mu           sync.RWMutex
	state        DriverState
	leadership   LeadershipState
	image        image.MetadataImage
	leader       image.LeaderAndEpoch
	firstPublish bool
}

// NewDriver constructs a Driver in StateUninitialized. initialLoadCallback
// is invoked once recovery completes; pass nil in tests that drive the
// driver purely through its public surface.
func NewDriver(
	cfg *Config,
	client MigrationClient,
	consumer RecordConsumer,
	propagator Propagator,
	quorumFeatures QuorumFeatures,
	faultHandler FaultHandler,
	logger log.Logger,
	initialLoadCallback func(MetadataPublisher),
) *Driver {
	d := &Driver{
		cfg:                 cfg,
		logger:              logger,
		client:              client,
		consumer:            consumer,
		propagator:          propagator,
		quorumFeatures:      quorumFeatures,
		faultHandler:        faultHandler,
		initialLoadCallback: initialLoadCallback,
		state:               StateUninitialized,
		leadership:          EmptyLeadershipState,
		leader:              image.UnknownLeader,
	}
	d.loop = NewEventLoop(logger, faultHandler)
	return d
}

// Name implements MetadataPublisher.
func (d *Driver) Name() string { return "migration-driver" }

// Start launches the event loop and schedules the first PollEvent at the
// head of the queue, matching the Java original's construction-time
// prepend.
func (d *Driver) Start(ctx context.Context) {
	d.loop.Start(ctx)
	d.schedulePoll(ctx)
}

// Shutdown drains the queue and stops the worker. No new events are
// accepted once Shutdown has been called.
func (d *Driver) Shutdown() {
	d.loop.Shutdown()
}

// Close implements MetadataPublisher.
func (d *Driver) Close() error {
	d.Shutdown()
	return nil
}

// State returns a consistent snapshot of the driver's current state. Safe
// to call from any goroutine.
func (d *Driver) State() DriverState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Leadership returns a consistent snapshot of the driver's leadership
// state.
func (d *Driver) Leadership() LeadershipState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.leadership
}

// Image returns a consistent snapshot of the last LogMeta image observed.
func (d *Driver) Image() image.MetadataImage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.image
}

// FirstPublish reports whether at least one metadata publication has been
// observed (I4: monotone false→true).
func (d *Driver) FirstPublish() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.firstPublish
}

// CurrentState is the test-only control-surface hook from §6: it enqueues a
// no-op event and returns its observed state once the worker has processed
// every event submitted before this call, proving happens-before.
func (d *Driver) CurrentState(ctx context.Context) (DriverState, error) {
	result := make(chan DriverState, 1)
	err := d.loop.Append(&event{name: "CurrentStateEvent", run: func(context.Context) error {
		result <- d.State()
		return nil
	}})
	if err != nil {
		return 0, err
	}
	select {
	case s := <-result:
		return s, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// transition moves the driver to `to`, validating against TransitionGuard.
// Must only be called from the worker goroutine.
func (d *Driver) transition(to DriverState) error {
	from := d.State()
	if err := (TransitionGuard{}).Validate(from, to); err != nil {
		return err
	}
	d.mu.Lock()
	d.state = to
	d.mu.Unlock()
	reportState(to)
	d.logger.Info("driver state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	return nil
}

// apply is the §4.8 leadership-state mutator: it replaces leadership with
// f(current leadership) in one step and logs before → after. It is the
// only place LegacyStore writes happen, since f typically delegates to
// MigrationClient. Must only be called from the worker goroutine.
func (d *Driver) apply(ctx context.Context, name string, f func(context.Context, LeadershipState) (LeadershipState, error)) error {
	before := d.Leadership()
	after, err := f(ctx, before)
	failpoint.Inject("migrationDriverApplyError", func() {
		err = &ClientError{Op: name, Err: context.DeadlineExceeded}
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.leadership = after
	d.mu.Unlock()
	d.logger.Info("leadership state applied", zap.String("mutator", name), zap.Stringer("before", before), zap.Stringer("after", after))
	return nil
}

// OnLeaderChange implements MetadataPublisher. Per §5, external callers
// only enqueue; the actual state update happens on the worker via
// handleLeaderChange.
func (d *Driver) OnLeaderChange(leader image.LeaderAndEpoch) {
	d.loop.Append(&event{name: "LeaderChangeEvent", run: func(ctx context.Context) error { //nolint:errcheck
		return d.handleLeaderChange(ctx, leader)
	}})
}

// handleLeaderChange implements §4.4.
func (d *Driver) handleLeaderChange(ctx context.Context, newLeader image.LeaderAndEpoch) error {
	d.mu.Lock()
	d.leader = newLeader
	d.mu.Unlock()

	if err := d.apply(ctx, "leaderChange", func(ctx context.Context, s LeadershipState) (LeadershipState, error) {
		return s.WithNewLogMetaController(newLeader.NodeID, newLeader.Epoch), nil
	}); err != nil {
		return err
	}

	if newLeader.IsLeader(d.cfg.NodeID) {
		return d.transition(StateWaitForControllerQuorum)
	}
	return d.transition(StateInactive)
}

// recover implements §4.7, run exactly once on the first poll while
// state == StateUninitialized.
func (d *Driver) recover(ctx context.Context) error {
	state, err := d.client.GetOrCreateMigrationRecoveryState(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.leadership = state
	d.mu.Unlock()

	if d.initialLoadCallback != nil {
		cb := d.initialLoadCallback
		d.initialLoadCallback = nil
		cb(d)
	}
	return d.transition(StateInactive)
}

// handleWaitForControllerQuorum implements §4.5.
func (d *Driver) handleWaitForControllerQuorum(ctx context.Context) error {
	if !d.FirstPublish() {
		return nil
	}
	flag := d.Image().Features.MigrationFlag
	switch flag {
	case image.MigrationFlagNone:
		d.logger.Error("cluster is not configured for migration")
		return d.transition(StateInactive)
	case image.MigrationFlagPreMigration:
		reason, notReady := d.quorumFeatures.ReasonAllControllersMigrationNotReady(ctx)
		if notReady {
			d.logger.Info("waiting for all controllers to be migration-ready", zap.String("reason", reason))
			return nil
		}
		return d.transition(StateWaitForBrokers)
	case image.MigrationFlagMigration:
		if d.Leadership().MigrationComplete {
			return d.transition(StateBecomeController)
		}
		d.logger.Error("LogMeta reports MIGRATION in progress but LegacyStore recovery state is incomplete")
		return d.transition(StateInactive)
	case image.MigrationFlagPostMigration:
		d.logger.Error("unexpected POST_MIGRATION flag while driver is active")
		return d.transition(StateInactive)
	default:
		return d.transition(StateInactive)
	}
}

// handleWaitForBrokers implements the §4.6 readiness predicate.
func (d *Driver) handleWaitForBrokers(ctx context.Context) error {
	if !d.FirstPublish() {
		return nil
	}
	img := d.Image()
	if img.Cluster.IsEmpty() {
		return nil
	}

	legacyIDs, err := d.client.ReadBrokerIDs(ctx)
	if err != nil {
		return err
	}
	if len(legacyIDs) == 0 {
		return nil
	}
	for id := range legacyIDs {
		b, ok := img.Cluster.Brokers[id]
		if !ok || !b.IsMigratingLegacyBroker {
			return nil
		}
	}

	assignedIDs, err := d.client.ReadBrokerIDsFromTopicAssignments(ctx)
	if err != nil {
		return err
	}
	for id := range assignedIDs {
		b, ok := img.Cluster.Brokers[id]
		if !ok || !b.IsMigratingLegacyBroker {
			return nil
		}
	}

	return d.transition(StateBecomeController)
}

// handleBecomeController implements §4.9.
func (d *Driver) handleBecomeController(ctx context.Context) error {
	if err := d.apply(ctx, "claim", func(ctx context.Context, s LeadershipState) (LeadershipState, error) {
		return d.client.ClaimControllerLeadership(ctx, s)
	}); err != nil {
		return err
	}

	s := d.Leadership()
	if !s.HasClaimedLeadership() {
		// Another controller currently holds the znode; remain in state,
		// next poll retries.
		return nil
	}
	if !s.MigrationComplete {
		return d.transition(StateZkMigration)
	}
	return d.transition(StateKRaftControllerToBrokerComm)
}

// handleSendRPCs implements §4.11.
func (d *Driver) handleSendRPCs(ctx context.Context) error {
	img := d.Image()
	lead := d.Leadership()
	replayed := image.OffsetAndEpoch{Offset: lead.ReplayedOffset, Epoch: lead.ReplayedEpoch}
	if img.HighestOffsetAndEpoch.Compare(replayed) < 0 {
		// Not yet caught up; do not self-transition out of this state from
		// a poll (§9) — wait for a newer publish.
		return nil
	}
	if err := d.propagator.SendRPCsToBrokersFromImage(ctx, img, lead.LegacyControllerEpoch); err != nil {
		return err
	}
	return d.transition(StateDualWrite)
}

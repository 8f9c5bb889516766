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

	"github.com/google/uuid"
	"github.com/pingcap/check"

	"github.com/pingcap/dm/dm/migration/image"
	"github.com/pingcap/dm/pkg/log"
)

var _ = check.Suite(&testDriverSuite{})

type testDriverSuite struct{}

func newTestDriver(nodeID int32) (*Driver, *fakeClient, *fakeConsumer, *fakePropagator, *fakeQuorumFeatures, *fakeFaultHandler) {
	cfg := &Config{NodeID: nodeID, PollInterval: time.Hour, CommitDeadline: time.Second}
	client := newFakeClient()
	consumer := &fakeConsumer{}
	propagator := &fakePropagator{}
	quorum := &fakeQuorumFeatures{ready: true}
	faults := &fakeFaultHandler{}
	d := NewDriver(cfg, client, consumer, propagator, quorum, faults, log.L(), nil)
	return d, client, consumer, propagator, quorum, faults
}

func (t *testDriverSuite) TestRecoverLoadsLeadershipAndGoesInactive(c *check.C) {
	d, client, _, _, _, _ := newTestDriver(1)
	client.recoveryState = EmptyLeadershipState.WithNewLogMetaController(9, 1)

	c.Assert(d.recover(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateInactive)
	c.Assert(d.Leadership().LogMetaControllerID, check.Equals, int32(9))
}

func (t *testDriverSuite) TestLeaderChangePromotesOwnNode(c *check.C) {
	d, _, _, _, _, _ := newTestDriver(5)
	c.Assert(d.transition(StateInactive), check.IsNil)

	err := d.handleLeaderChange(context.Background(), image.LeaderAndEpoch{NodeID: 5, HasLeader: true, Epoch: 1})
	c.Assert(err, check.IsNil)
	c.Assert(d.State(), check.Equals, StateWaitForControllerQuorum)
}

func (t *testDriverSuite) TestLeaderChangeDemotesOtherNode(c *check.C) {
	d, _, _, _, _, _ := newTestDriver(5)
	c.Assert(d.transition(StateInactive), check.IsNil)

	err := d.handleLeaderChange(context.Background(), image.LeaderAndEpoch{NodeID: 6, HasLeader: true, Epoch: 1})
	c.Assert(err, check.IsNil)
	c.Assert(d.State(), check.Equals, StateInactive)
}

func (t *testDriverSuite) TestWaitForControllerQuorumStaysPutWithoutFirstPublish(c *check.C) {
	d, _, _, _, _, _ := newTestDriver(1)
	c.Assert(d.transition(StateInactive), check.IsNil)
	c.Assert(d.transition(StateWaitForControllerQuorum), check.IsNil)

	c.Assert(d.handleWaitForControllerQuorum(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateWaitForControllerQuorum)
}

func (t *testDriverSuite) TestWaitForControllerQuorumNoneFlagGoesInactive(c *check.C) {
	d, _, _, _, _, _ := newTestDriver(1)
	d.mu.Lock()
	d.firstPublish = true
	d.image = image.MetadataImage{Features: image.FeaturesImage{MigrationFlag: image.MigrationFlagNone}}
	d.mu.Unlock()
	c.Assert(d.transition(StateInactive), check.IsNil)
	c.Assert(d.transition(StateWaitForControllerQuorum), check.IsNil)

	c.Assert(d.handleWaitForControllerQuorum(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateInactive)
}

func (t *testDriverSuite) TestWaitForControllerQuorumAdvancesWhenReady(c *check.C) {
	d, _, _, _, quorum, _ := newTestDriver(1)
	quorum.ready = true
	d.mu.Lock()
	d.firstPublish = true
	d.image = image.MetadataImage{Features: image.FeaturesImage{MigrationFlag: image.MigrationFlagPreMigration}}
	d.mu.Unlock()
	c.Assert(d.transition(StateInactive), check.IsNil)
	c.Assert(d.transition(StateWaitForControllerQuorum), check.IsNil)

	c.Assert(d.handleWaitForControllerQuorum(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateWaitForBrokers)
}

func (t *testDriverSuite) TestWaitForControllerQuorumWaitsWhenNotReady(c *check.C) {
	d, _, _, _, quorum, _ := newTestDriver(1)
	quorum.ready = false
	quorum.reason = "peer 2 has not advertised migration support"
	d.mu.Lock()
	d.firstPublish = true
	d.image = image.MetadataImage{Features: image.FeaturesImage{MigrationFlag: image.MigrationFlagPreMigration}}
	d.mu.Unlock()
	c.Assert(d.transition(StateInactive), check.IsNil)
	c.Assert(d.transition(StateWaitForControllerQuorum), check.IsNil)

	c.Assert(d.handleWaitForControllerQuorum(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateWaitForControllerQuorum)
}

func (t *testDriverSuite) TestWaitForBrokersRequiresEveryLegacyAndAssignedBroker(c *check.C) {
	d, client, _, _, _, _ := newTestDriver(1)
	client.legacyBrokerIDs = map[int32]bool{1: true, 2: true}
	client.assignedBrokerIDs = map[int32]bool{3: true}
	d.mu.Lock()
	d.firstPublish = true
	d.image = image.MetadataImage{Cluster: image.ClusterImage{Brokers: map[int32]image.BrokerRegistration{
		1: {ID: 1, IsMigratingLegacyBroker: true},
		2: {ID: 2, IsMigratingLegacyBroker: false},
		3: {ID: 3, IsMigratingLegacyBroker: true},
	}}}
	d.mu.Unlock()
	c.Assert(d.transition(StateInactive), check.IsNil)
	c.Assert(d.transition(StateWaitForControllerQuorum), check.IsNil)
	c.Assert(d.transition(StateWaitForBrokers), check.IsNil)

	c.Assert(d.handleWaitForBrokers(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateWaitForBrokers, check.Commentf("broker 2 not yet migrated"))

	d.mu.Lock()
	brokers := d.image.Cluster.Brokers
	brokers[2] = image.BrokerRegistration{ID: 2, IsMigratingLegacyBroker: true}
	d.mu.Unlock()

	c.Assert(d.handleWaitForBrokers(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateBecomeController)
}

func (t *testDriverSuite) TestBecomeControllerClaimFailureRemainsInState(c *check.C) {
	d, client, _, _, _, _ := newTestDriver(1)
	client.claimErr = &ClientError{Op: "claim", Err: context.DeadlineExceeded}
	c.Assert(d.transition(StateInactive), check.IsNil)
	c.Assert(d.transition(StateWaitForControllerQuorum), check.IsNil)
	c.Assert(d.transition(StateWaitForBrokers), check.IsNil)
	c.Assert(d.transition(StateBecomeController), check.IsNil)

	err := d.handleBecomeController(context.Background())
	c.Assert(err, check.NotNil)
	c.Assert(d.State(), check.Equals, StateBecomeController)
}

func (t *testDriverSuite) TestBecomeControllerClaimSuccessGoesToZkMigration(c *check.C) {
	d, _, _, _, _, _ := newTestDriver(1)
	c.Assert(d.transition(StateInactive), check.IsNil)
	c.Assert(d.transition(StateWaitForControllerQuorum), check.IsNil)
	c.Assert(d.transition(StateWaitForBrokers), check.IsNil)
	c.Assert(d.transition(StateBecomeController), check.IsNil)

	c.Assert(d.handleBecomeController(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateZkMigration)
	c.Assert(d.Leadership().HasClaimedLeadership(), check.IsTrue)
}

func (t *testDriverSuite) TestBecomeControllerResumesAtKRaftCommIfAlreadyMigrated(c *check.C) {
	d, _, _, _, _, _ := newTestDriver(1)
	d.mu.Lock()
	d.leadership = d.leadership.WithMigrationComplete()
	d.mu.Unlock()
	c.Assert(d.transition(StateInactive), check.IsNil)
	c.Assert(d.transition(StateWaitForControllerQuorum), check.IsNil)
	c.Assert(d.transition(StateWaitForBrokers), check.IsNil)
	c.Assert(d.transition(StateBecomeController), check.IsNil)

	c.Assert(d.handleBecomeController(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateKRaftControllerToBrokerComm)
}

func (t *testDriverSuite) TestMigrateMetadataReplaysAllBatchesThenAdvances(c *check.C) {
	d, client, consumer, _, _, _ := newTestDriver(1)
	client.metadataBatches = []MetadataRecordBatch{
		{Records: []interface{}{"a", "b"}},
		{Records: []interface{}{"c"}},
	}
	consumer.result = CompleteMigrationResult{Offset: 42, Epoch: 3}
	for _, s := range []DriverState{StateInactive, StateWaitForControllerQuorum, StateWaitForBrokers, StateBecomeController, StateZkMigration} {
		c.Assert(d.transition(s), check.IsNil)
	}

	c.Assert(d.handleMigrateMetadata(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateKRaftControllerToBrokerComm)
	c.Assert(consumer.begun, check.IsTrue)
	c.Assert(consumer.aborted, check.IsFalse)
	c.Assert(d.Leadership().ReplayedOffset, check.Equals, int64(42))
	c.Assert(d.Leadership().ReplayedEpoch, check.Equals, int32(3))
	c.Assert(d.Leadership().MigrationComplete, check.IsTrue)
}

func (t *testDriverSuite) TestMigrateMetadataAbortsOnReadFailure(c *check.C) {
	d, client, consumer, _, _, _ := newTestDriver(1)
	client.readAllErr = &ClientError{Op: "readAll", Err: context.DeadlineExceeded}
	for _, s := range []DriverState{StateInactive, StateWaitForControllerQuorum, StateWaitForBrokers, StateBecomeController, StateZkMigration} {
		c.Assert(d.transition(s), check.IsNil)
	}

	err := d.handleMigrateMetadata(context.Background())
	c.Assert(err, check.NotNil)
	c.Assert(consumer.aborted, check.IsTrue)
	c.Assert(d.State(), check.Equals, StateZkMigration)
}

func (t *testDriverSuite) TestSendRPCsWaitsForReplayCatchUp(c *check.C) {
	d, _, _, _, _, _ := newTestDriver(1)
	d.mu.Lock()
	d.leadership = d.leadership.WithReplayedOffsetEpoch(100, 2)
	d.image = image.MetadataImage{HighestOffsetAndEpoch: image.OffsetAndEpoch{Offset: 50, Epoch: 2}}
	d.mu.Unlock()
	for _, s := range []DriverState{StateInactive, StateWaitForControllerQuorum, StateWaitForBrokers, StateBecomeController, StateKRaftControllerToBrokerComm} {
		c.Assert(d.transition(s), check.IsNil)
	}

	c.Assert(d.handleSendRPCs(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateKRaftControllerToBrokerComm, check.Commentf("image has not yet caught up to replayed offset"))

	d.mu.Lock()
	d.image = image.MetadataImage{HighestOffsetAndEpoch: image.OffsetAndEpoch{Offset: 150, Epoch: 2}}
	d.mu.Unlock()

	c.Assert(d.handleSendRPCs(context.Background()), check.IsNil)
	c.Assert(d.State(), check.Equals, StateDualWrite)
}

func (t *testDriverSuite) TestMetadataUpdateOutsideDualWriteJustAcksWithoutMirroring(c *check.C) {
	d, client, _, _, _, _ := newTestDriver(1)
	c.Assert(d.transition(StateInactive), check.IsNil)

	delta := &image.MetadataDelta{TopicsDelta: &image.TopicsDelta{
		CreatedTopicIDs: map[uuid.UUID]bool{},
	}}
	called := make(chan error, 1)
	err := d.handleMetadataChange(context.Background(), delta, image.MetadataImage{}, image.MetadataImage{}, false, func(err error) { called <- err })
	c.Assert(err, check.IsNil)
	c.Assert(<-called, check.IsNil)
	c.Assert(client.createTopicCalls, check.Equals, 0)
}

func (t *testDriverSuite) TestMetadataUpdateMirrorsEachGroupDuringDualWrite(c *check.C) {
	d, client, _, propagator, _, _ := newTestDriver(1)
	for _, s := range []DriverState{StateInactive, StateWaitForControllerQuorum, StateWaitForBrokers, StateBecomeController, StateKRaftControllerToBrokerComm, StateDualWrite} {
		c.Assert(d.transition(s), check.IsNil)
	}

	topicID := uuid.New()
	delta := &image.MetadataDelta{
		TopicsDelta: &image.TopicsDelta{
			CreatedTopicIDs: map[uuid.UUID]bool{topicID: true},
			ChangedTopics:   map[uuid.UUID]*image.TopicDelta{topicID: {Name: "t1"}},
		},
		ConfigsDelta: &image.ConfigsDelta{Changes: map[image.ConfigResource]*image.ConfigDelta{
			{Type: image.ConfigResourceTopic, Name: "t1"}: {Changes: map[string]*string{}},
		}},
		ProducerIdsDelta: &image.ProducerIdsDelta{NextProducerID: 10},
	}
	newImage := image.MetadataImage{HighestOffsetAndEpoch: image.OffsetAndEpoch{Offset: 1, Epoch: 1}}

	called := make(chan error, 1)
	err := d.handleMetadataChange(context.Background(), delta, image.MetadataImage{}, newImage, false, func(err error) { called <- err })
	c.Assert(err, check.IsNil)
	c.Assert(<-called, check.IsNil)
	c.Assert(client.createTopicCalls, check.Equals, 1)
	c.Assert(client.writeConfigsCalls, check.Equals, 1)
	c.Assert(client.writeProducerIDCalls, check.Equals, 1)
	c.Assert(propagator.deltaRPCCalls, check.Equals, 1)
}

func (t *testDriverSuite) TestMetadataUpdateSkipsAlreadyMirroredImage(c *check.C) {
	d, client, _, _, _, _ := newTestDriver(1)
	d.mu.Lock()
	d.leadership = d.leadership.WithReplayedOffsetEpoch(10, 1)
	d.mu.Unlock()
	for _, s := range []DriverState{StateInactive, StateWaitForControllerQuorum, StateWaitForBrokers, StateBecomeController, StateKRaftControllerToBrokerComm, StateDualWrite} {
		c.Assert(d.transition(s), check.IsNil)
	}

	topicID := uuid.New()
	delta := &image.MetadataDelta{TopicsDelta: &image.TopicsDelta{
		CreatedTopicIDs: map[uuid.UUID]bool{topicID: true},
		ChangedTopics:   map[uuid.UUID]*image.TopicDelta{topicID: {Name: "t2"}},
	}}
	newImage := image.MetadataImage{HighestOffsetAndEpoch: image.OffsetAndEpoch{Offset: 5, Epoch: 1}}

	called := make(chan error, 1)
	err := d.handleMetadataChange(context.Background(), delta, image.MetadataImage{}, newImage, false, func(err error) { called <- err })
	c.Assert(err, check.IsNil)
	c.Assert(<-called, check.IsNil)
	c.Assert(client.createTopicCalls, check.Equals, 0, check.Commentf("offset 5/epoch 1 already covered by replayed 10/1"))
}

func (t *testDriverSuite) TestEventLoopAuthFailureReportsFaultButKeepsRunning(c *check.C) {
	d, _, _, _, _, faults := newTestDriver(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Shutdown()

	authErr := &ClientAuthError{Op: "claim", Err: context.DeadlineExceeded}
	err := d.loop.Append(&event{name: "TestAuthFailure", run: func(context.Context) error { return authErr }})
	c.Assert(err, check.IsNil)

	state, err := d.CurrentState(context.Background())
	c.Assert(err, check.IsNil)
	c.Assert(state, check.Equals, StateInactive, check.Commentf("recovery runs ahead of the injected event and completes normally"))
	c.Assert(faults.count() >= 1, check.IsTrue)
}

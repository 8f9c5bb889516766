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

	"github.com/google/uuid"

	"github.com/pingcap/dm/dm/migration/image"
)

// fakeFaultHandler records every fault reported to it instead of bringing
// the process down, so tests can assert on what the event loop escalated.
type fakeFaultHandler struct {
	mu     sync.Mutex
	faults []string
}

func (f *fakeFaultHandler) HandleFault(msg string, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, msg)
}

func (f *fakeFaultHandler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.faults)
}

// fakeClient is an in-memory MigrationClient good enough to drive the
// driver through every state without a real LegacyStore.
type fakeClient struct {
	mu sync.Mutex

	recoveryState   LeadershipState
	claimErr        error
	claimedOnce     bool
	legacyBrokerIDs map[int32]bool
	assignedBrokerIDs map[int32]bool
	metadataBatches []MetadataRecordBatch
	readAllErr      error

	createTopicCalls  int
	updateTopicCalls  int
	writeConfigsCalls int
	writeQuotasCalls  int
	writeProducerIDCalls int
	removeAclsCalls   int
	writeAclsCalls    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		recoveryState:     EmptyLeadershipState,
		legacyBrokerIDs:   map[int32]bool{},
		assignedBrokerIDs: map[int32]bool{},
	}
}

func (f *fakeClient) GetOrCreateMigrationRecoveryState(ctx context.Context) (LeadershipState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recoveryState, nil
}

func (f *fakeClient) ClaimControllerLeadership(ctx context.Context, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return state, f.claimErr
	}
	f.claimedOnce = true
	state.LegacyControllerEpoch++
	state.LegacyEpochZkVersion++
	return state, nil
}

func (f *fakeClient) SetMigrationRecoveryState(ctx context.Context, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recoveryState = state
	return state, nil
}

func (f *fakeClient) ReadBrokerIDs(ctx context.Context) (map[int32]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int32]bool, len(f.legacyBrokerIDs))
	for k, v := range f.legacyBrokerIDs {
		out[k] = v
	}
	return out, nil
}

func (f *fakeClient) ReadBrokerIDsFromTopicAssignments(ctx context.Context) (map[int32]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int32]bool, len(f.assignedBrokerIDs))
	for k, v := range f.assignedBrokerIDs {
		out[k] = v
	}
	return out, nil
}

func (f *fakeClient) ReadAllMetadata(ctx context.Context, batchSink func(MetadataRecordBatch) error, brokerSink func(int32) error) error {
	f.mu.Lock()
	batches := f.metadataBatches
	err := f.readAllErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	for _, b := range batches {
		if err := batchSink(b); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeClient) CreateTopic(ctx context.Context, name string, id uuid.UUID, partitions map[int32]image.PartitionChange, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	f.createTopicCalls++
	f.mu.Unlock()
	return state, nil
}

func (f *fakeClient) UpdateTopicPartitions(ctx context.Context, changesByTopic map[string]map[int32]image.PartitionChange, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	f.updateTopicCalls++
	f.mu.Unlock()
	return state, nil
}

func (f *fakeClient) WriteConfigs(ctx context.Context, resource image.ConfigResource, configs map[string]string, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	f.writeConfigsCalls++
	f.mu.Unlock()
	return state, nil
}

func (f *fakeClient) WriteClientQuotas(ctx context.Context, entity image.ClientQuotaEntity, quotas map[string]float64, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	f.writeQuotasCalls++
	f.mu.Unlock()
	return state, nil
}

func (f *fakeClient) WriteProducerID(ctx context.Context, nextProducerID int64, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	f.writeProducerIDCalls++
	f.mu.Unlock()
	return state, nil
}

func (f *fakeClient) RemoveDeletedAcls(ctx context.Context, pattern image.ResourcePattern, entries []image.AccessControlEntry, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	f.removeAclsCalls++
	f.mu.Unlock()
	return state, nil
}

func (f *fakeClient) WriteAddedAcls(ctx context.Context, pattern image.ResourcePattern, entries []image.AccessControlEntry, state LeadershipState) (LeadershipState, error) {
	f.mu.Lock()
	f.writeAclsCalls++
	f.mu.Unlock()
	return state, nil
}

// fakeConsumer is an in-memory RecordConsumer that completes every future
// immediately with success, unless the test arranges otherwise.
type fakeConsumer struct {
	mu         sync.Mutex
	begun      bool
	aborted    bool
	abortCause error
	batchErr   error
	result     CompleteMigrationResult
}

func (f *fakeConsumer) BeginMigration(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = true
	return nil
}

func (f *fakeConsumer) AcceptBatch(batch MetadataRecordBatch) <-chan error {
	ch := make(chan error, 1)
	f.mu.Lock()
	err := f.batchErr
	f.mu.Unlock()
	ch <- err
	return ch
}

func (f *fakeConsumer) CompleteMigration() <-chan CompleteMigrationResult {
	ch := make(chan CompleteMigrationResult, 1)
	f.mu.Lock()
	ch <- f.result
	f.mu.Unlock()
	return ch
}

func (f *fakeConsumer) AbortMigration(ctx context.Context, reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	f.abortCause = reason
}

// fakePropagator is a Propagator that records every call instead of talking
// to real legacy-protocol brokers.
type fakePropagator struct {
	mu                   sync.Mutex
	metadataVersionCalls int
	imageRPCCalls        int
	deltaRPCCalls        int
	err                  error
}

func (f *fakePropagator) SetMetadataVersion(ctx context.Context, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataVersionCalls++
	return f.err
}

func (f *fakePropagator) SendRPCsToBrokersFromImage(ctx context.Context, img image.MetadataImage, legacyControllerEpoch int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageRPCCalls++
	return f.err
}

func (f *fakePropagator) SendRPCsToBrokersFromDelta(ctx context.Context, delta *image.MetadataDelta, img image.MetadataImage, legacyControllerEpoch int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltaRPCCalls++
	return f.err
}

// fakeQuorumFeatures reports every controller ready unless a test says
// otherwise.
type fakeQuorumFeatures struct {
	mu     sync.Mutex
	reason string
	ready  bool
}

func (f *fakeQuorumFeatures) ReasonAllControllersMigrationNotReady(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason, !f.ready
}

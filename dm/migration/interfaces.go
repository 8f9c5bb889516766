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
	"fmt"

	"github.com/google/uuid"

	"github.com/pingcap/dm/dm/migration/image"
)

// ClientError is a transient MigrationClient failure: a network hiccup, a
// timeout, a lost connection. The event loop's exception classifier treats
// it as retryable via the next poll.
type ClientError struct {
	Op  string
	Err error
}

func (e *ClientError) Error() string { return fmt.Sprintf("legacy store: %s: %v", e.Op, e.Err) }
func (e *ClientError) Unwrap() error { return e.Err }

// ClientAuthError is a MigrationClient authentication/authorization
// failure. The event loop reports it to the FaultHandler as severe but
// keeps the worker alive, per §7.
type ClientAuthError struct {
	Op  string
	Err error
}

func (e *ClientAuthError) Error() string {
	return fmt.Sprintf("legacy store auth: %s: %v", e.Op, e.Err)
}
func (e *ClientAuthError) Unwrap() error { return e.Err }

// MetadataRecordBatch is one batch of LegacyStore metadata translated into
// LogMeta records, as produced by MigrationClient.ReadAllMetadata and
// consumed by RecordConsumer.AcceptBatch.
type MetadataRecordBatch struct {
	Records []interface{}
}

// Size returns the number of records in the batch.
func (b MetadataRecordBatch) Size() int { return len(b.Records) }

// MigrationClient is the LegacyStore collaborator: reads and writes znodes,
// performs the conditional controller-leadership claim, and streams all
// pre-migration metadata for the bulk replay. It is out of scope for this
// module — callers supply a concrete implementation (see
// dm/migration/legacystore for a reference one backed by etcd).
type MigrationClient interface {
	GetOrCreateMigrationRecoveryState(ctx context.Context) (LeadershipState, error)
	ClaimControllerLeadership(ctx context.Context, state LeadershipState) (LeadershipState, error)
	SetMigrationRecoveryState(ctx context.Context, state LeadershipState) (LeadershipState, error)

	ReadBrokerIDs(ctx context.Context) (map[int32]bool, error)
	ReadBrokerIDsFromTopicAssignments(ctx context.Context) (map[int32]bool, error)

	ReadAllMetadata(ctx context.Context, batchSink func(MetadataRecordBatch) error, brokerSink func(int32) error) error

	CreateTopic(ctx context.Context, name string, id uuid.UUID, partitions map[int32]image.PartitionChange, state LeadershipState) (LeadershipState, error)
	UpdateTopicPartitions(ctx context.Context, changesByTopic map[string]map[int32]image.PartitionChange, state LeadershipState) (LeadershipState, error)
	WriteConfigs(ctx context.Context, resource image.ConfigResource, configs map[string]string, state LeadershipState) (LeadershipState, error)
	WriteClientQuotas(ctx context.Context, entity image.ClientQuotaEntity, quotas map[string]float64, state LeadershipState) (LeadershipState, error)
	WriteProducerID(ctx context.Context, nextProducerID int64, state LeadershipState) (LeadershipState, error)
	RemoveDeletedAcls(ctx context.Context, pattern image.ResourcePattern, entries []image.AccessControlEntry, state LeadershipState) (LeadershipState, error)
	WriteAddedAcls(ctx context.Context, pattern image.ResourcePattern, entries []image.AccessControlEntry, state LeadershipState) (LeadershipState, error)
}

// CompleteMigrationResult is what RecordConsumer.CompleteMigration resolves
// to: the offset/epoch LogMeta committed the migration record at.
type CompleteMigrationResult struct {
	Offset int64
	Epoch  int32
}

// RecordConsumer is the LogMeta collaborator that ingests migration
// batches into the replicated log. Out of scope for this module.
type RecordConsumer interface {
	BeginMigration(ctx context.Context) error
	AcceptBatch(batch MetadataRecordBatch) <-chan error
	CompleteMigration() <-chan CompleteMigrationResult
	AbortMigration(ctx context.Context, reason error)
}

// Propagator sends RPCs informing legacy-protocol brokers of cluster state.
// Out of scope for this module.
type Propagator interface {
	SetMetadataVersion(ctx context.Context, version string) error
	SendRPCsToBrokersFromImage(ctx context.Context, img image.MetadataImage, legacyControllerEpoch int32) error
	SendRPCsToBrokersFromDelta(ctx context.Context, delta *image.MetadataDelta, img image.MetadataImage, legacyControllerEpoch int32) error
}

// QuorumFeatures probes whether every controller peer advertises migration
// support. Out of scope for this module.
type QuorumFeatures interface {
	ReasonAllControllersMigrationNotReady(ctx context.Context) (string, bool)
}

// FaultHandler receives faults the driver cannot recover from on its own.
// Out of scope for this module.
type FaultHandler interface {
	HandleFault(msg string, cause error)
}

// MetadataPublisher is the interface the driver exposes to LogMeta so it
// can be registered to receive leader-change and metadata-update
// callbacks. Driver implements this; registration happens only after
// recovery completes (see §9 "cyclic callback" design note).
type MetadataPublisher interface {
	Name() string
	OnLeaderChange(leader image.LeaderAndEpoch)
	OnMetadataUpdate(delta *image.MetadataDelta, newImage image.MetadataImage, provenance image.MetadataProvenance, isSnapshot bool, completionCallback func(error))
	Close() error
}

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

// Package etcdimpl is a reference migration.MigrationClient backed by a
// plain etcd keyspace, standing in for a real ZooKeeper-backed LegacyStore.
// It models LegacyStore's znode hierarchy as an etcd key prefix and its
// conditional controller-epoch writes as an etcd CAS transaction, so the
// driver's §4.9 "claim leadership" and §4.10 "bulk replay" logic exercise
// real conditional-write and streaming-read code paths.
package etcdimpl

import (
	"context"
	"encoding/json"

	"go.etcd.io/etcd/clientv3"
	"go.uber.org/zap"

	"github.com/pingcap/dm/dm/migration"
	"github.com/pingcap/dm/pkg/etcdutil"
	"github.com/pingcap/dm/pkg/log"
	"github.com/pingcap/dm/pkg/terror"
)

// Key layout under prefix, chosen to mirror the znode paths the original
// ZkMigrationClient reads: a controller epoch znode with its own version
// counter, a broker registry subtree, and a metadata log subtree the bulk
// replay streams from in key order.
const (
	controllerEpochKey = "/controller_epoch"
	recoveryStateKey   = "/migration/recovery_state"
	brokerIDsPrefix    = "/brokers/ids/"
	topicAssignPrefix  = "/brokers/topics/"
	metadataLogPrefix  = "/migration/log/"
)

// Client is a migration.MigrationClient backed by an etcd keyspace rooted
// at prefix. The caller owns cli's lifecycle (it is typically the local
// client handed out by a dm/logmeta.Quorum).
type Client struct {
	cli    *clientv3.Client
	prefix string
	logger log.Logger
}

// New returns a Client rooted at prefix (all keys are opened under
// prefix, so one etcd cluster can host several independent LegacyStore
// instances for testing).
func New(cli *clientv3.Client, prefix string) *Client {
	return &Client{cli: cli, prefix: prefix, logger: log.With(zap.String("component", "legacystore-etcdimpl"))}
}

func (c *Client) key(suffix string) string { return c.prefix + suffix }

// GetOrCreateMigrationRecoveryState implements migration.MigrationClient.
func (c *Client) GetOrCreateMigrationRecoveryState(ctx context.Context) (migration.LeadershipState, error) {
	resp, err := c.cli.Get(ctx, c.key(recoveryStateKey))
	if err != nil {
		return migration.LeadershipState{}, terror.ErrLegacyStoreConnFail.Delegate(err, "get recovery state")
	}
	if len(resp.Kvs) == 0 {
		return migration.EmptyLeadershipState, nil
	}
	var s migration.LeadershipState
	if err := json.Unmarshal(resp.Kvs[0].Value, &s); err != nil {
		return migration.LeadershipState{}, terror.ErrLegacyStoreConnFail.Delegate(err, "decode recovery state")
	}
	return s, nil
}

// SetMigrationRecoveryState implements migration.MigrationClient.
func (c *Client) SetMigrationRecoveryState(ctx context.Context, state migration.LeadershipState) (migration.LeadershipState, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "encode recovery state")
	}
	if _, err := c.cli.Put(ctx, c.key(recoveryStateKey), string(b)); err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "put recovery state")
	}
	return state, nil
}

// controllerEpochRecord is what lives at controllerEpochKey: the same
// epoch/zkVersion pair migration.LeadershipState tracks, so a successful
// CAS there is exactly a successful controller-leadership claim.
type controllerEpochRecord struct {
	Epoch     int32 `json:"epoch"`
	ZkVersion int32 `json:"zk_version"`
}

// ClaimControllerLeadership implements migration.MigrationClient using an
// etcd CAS transaction keyed on the epoch znode's mod revision, the same
// compare-and-swap shape LegacyStore's conditional setData gives the Java
// original's tryClaimLeadership.
func (c *Client) ClaimControllerLeadership(ctx context.Context, state migration.LeadershipState) (migration.LeadershipState, error) {
	key := c.key(controllerEpochKey)
	get, err := c.cli.Get(ctx, key)
	if err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "get controller epoch")
	}

	next := controllerEpochRecord{Epoch: state.LegacyControllerEpoch + 1, ZkVersion: state.LegacyEpochZkVersion + 1}
	b, err := json.Marshal(next)
	if err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "encode controller epoch")
	}

	var txnResp *clientv3.TxnResponse
	if len(get.Kvs) == 0 {
		txnResp, err = c.cli.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, string(b))).
			Commit()
	} else {
		modRev := get.Kvs[0].ModRevision
		txnResp, err = c.cli.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", modRev)).
			Then(clientv3.OpPut(key, string(b))).
			Commit()
	}
	if err != nil {
		if etcdutil.IsRetryableError(err) {
			return state, terror.ErrLegacyStoreConnFail.Delegate(err, "claim controller epoch")
		}
		return state, terror.ErrLegacyStoreAuthFail.Delegate(err, "claim controller epoch")
	}
	if !txnResp.Succeeded {
		return state, terror.ErrLegacyStoreVersionMismatch.Generate(key)
	}

	state.LegacyControllerEpoch = next.Epoch
	state.LegacyEpochZkVersion = next.ZkVersion
	return state, nil
}

// ReadBrokerIDs implements migration.MigrationClient by listing the
// broker-registration subtree.
func (c *Client) ReadBrokerIDs(ctx context.Context) (map[int32]bool, error) {
	return c.readInt32Keys(ctx, brokerIDsPrefix)
}

// ReadBrokerIDsFromTopicAssignments implements migration.MigrationClient by
// listing the topic-assignment subtree's broker references.
func (c *Client) ReadBrokerIDsFromTopicAssignments(ctx context.Context) (map[int32]bool, error) {
	return c.readInt32Keys(ctx, topicAssignPrefix)
}

func (c *Client) readInt32Keys(ctx context.Context, prefix string) (map[int32]bool, error) {
	resp, err := c.cli.Get(ctx, c.key(prefix), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, terror.ErrLegacyStoreConnFail.Delegate(err, "list "+prefix)
	}
	out := make(map[int32]bool, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var id int32
		if _, err := jsonScanTrailingInt(string(kv.Key), &id); err == nil {
			out[id] = true
		}
	}
	return out, nil
}

// ReadAllMetadata implements migration.MigrationClient by streaming the
// metadata-log subtree in key order, batching one key per
// migration.MetadataRecordBatch so MigrationReplay sees multiple batches
// for a non-trivial log.
func (c *Client) ReadAllMetadata(ctx context.Context, batchSink func(migration.MetadataRecordBatch) error, brokerSink func(int32) error) error {
	resp, err := c.cli.Get(ctx, c.key(metadataLogPrefix), clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return terror.ErrLegacyStoreConnFail.Delegate(err, "list metadata log")
	}
	for _, kv := range resp.Kvs {
		var records []interface{}
		if err := json.Unmarshal(kv.Value, &records); err != nil {
			return terror.ErrLegacyStoreConnFail.Delegate(err, "decode metadata batch "+string(kv.Key))
		}
		if err := batchSink(migration.MetadataRecordBatch{Records: records}); err != nil {
			return err
		}
	}
	brokerIDs, err := c.ReadBrokerIDs(ctx)
	if err != nil {
		return err
	}
	for id := range brokerIDs {
		if err := brokerSink(id); err != nil {
			return err
		}
	}
	return nil
}

// jsonScanTrailingInt parses the last "/"-separated path segment of key as
// an int32, the way LegacyStore znode names embed a broker or partition id.
func jsonScanTrailingInt(key string, out *int32) (int, error) {
	i := len(key)
	for i > 0 && key[i-1] >= '0' && key[i-1] <= '9' {
		i--
	}
	digits := key[i:]
	if digits == "" {
		return 0, terror.ErrLegacyStoreConnFail.Generate("no trailing id in " + key)
	}
	var v int32
	for _, r := range digits {
		v = v*10 + int32(r-'0')
	}
	*out = v
	return len(digits), nil
}

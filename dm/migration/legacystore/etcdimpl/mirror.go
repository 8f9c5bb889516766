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

package etcdimpl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/etcd/clientv3"

	"github.com/pingcap/dm/dm/migration"
	"github.com/pingcap/dm/dm/migration/image"
	"github.com/pingcap/dm/pkg/terror"
)

const (
	topicsPrefix    = "/brokers/topics/"
	configsPrefix   = "/config/"
	quotasPrefix    = "/config/clients/"
	producerIDKey   = "/latest_producer_id"
	aclsPrefix      = "/kafka-acl/"
)

// These methods are the §4.12 dual-write mirror sinks: every one of them
// re-checks the controller-epoch znode before writing and guards the write
// itself with a CAS on that znode's mod revision, so a stale or demoted
// driver's writes are rejected the same way ClaimControllerLeadership's CAS
// would reject them, rather than silently racing another claimant.
func (c *Client) put(ctx context.Context, key string, value interface{}, state migration.LeadershipState) (migration.LeadershipState, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "encode "+key)
	}

	epochKey := c.key(controllerEpochKey)
	get, err := c.cli.Get(ctx, epochKey)
	if err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "get controller epoch")
	}
	if len(get.Kvs) == 0 {
		return state, terror.ErrLegacyStoreVersionMismatch.Generate(epochKey)
	}
	var rec controllerEpochRecord
	if err := json.Unmarshal(get.Kvs[0].Value, &rec); err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "decode controller epoch")
	}
	if rec.Epoch != state.LegacyControllerEpoch {
		return state, terror.ErrLegacyStoreVersionMismatch.Generate(epochKey)
	}

	txnResp, err := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(epochKey), "=", get.Kvs[0].ModRevision)).
		Then(clientv3.OpPut(c.key(key), string(b))).
		Commit()
	if err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "put "+key)
	}
	if !txnResp.Succeeded {
		return state, terror.ErrLegacyStoreVersionMismatch.Generate(epochKey)
	}
	return state, nil
}

// CreateTopic implements migration.MigrationClient.
func (c *Client) CreateTopic(ctx context.Context, name string, id uuid.UUID, partitions map[int32]image.PartitionChange, state migration.LeadershipState) (migration.LeadershipState, error) {
	return c.put(ctx, fmt.Sprintf("%s%s", topicsPrefix, name), struct {
		ID         string                          `json:"id"`
		Partitions map[int32]image.PartitionChange `json:"partitions"`
	}{ID: id.String(), Partitions: partitions}, state)
}

// UpdateTopicPartitions implements migration.MigrationClient.
func (c *Client) UpdateTopicPartitions(ctx context.Context, changesByTopic map[string]map[int32]image.PartitionChange, state migration.LeadershipState) (migration.LeadershipState, error) {
	for topic, changes := range changesByTopic {
		var err error
		if state, err = c.put(ctx, fmt.Sprintf("%s%s/partitions", topicsPrefix, topic), changes, state); err != nil {
			return state, err
		}
	}
	return state, nil
}

// WriteConfigs implements migration.MigrationClient.
func (c *Client) WriteConfigs(ctx context.Context, resource image.ConfigResource, configs map[string]string, state migration.LeadershipState) (migration.LeadershipState, error) {
	return c.put(ctx, fmt.Sprintf("%s%d/%s", configsPrefix, resource.Type, resource.Name), configs, state)
}

// WriteClientQuotas implements migration.MigrationClient.
func (c *Client) WriteClientQuotas(ctx context.Context, entity image.ClientQuotaEntity, quotas map[string]float64, state migration.LeadershipState) (migration.LeadershipState, error) {
	return c.put(ctx, quotasPrefix+entity.Canonical(), quotas, state)
}

// WriteProducerID implements migration.MigrationClient.
func (c *Client) WriteProducerID(ctx context.Context, nextProducerID int64, state migration.LeadershipState) (migration.LeadershipState, error) {
	return c.put(ctx, producerIDKey, nextProducerID, state)
}

// RemoveDeletedAcls implements migration.MigrationClient.
func (c *Client) RemoveDeletedAcls(ctx context.Context, pattern image.ResourcePattern, entries []image.AccessControlEntry, state migration.LeadershipState) (migration.LeadershipState, error) {
	key := aclsPrefix + pattern.ResourceType + "/" + pattern.PatternType + "/" + pattern.Name
	resp, err := c.cli.Get(ctx, c.key(key))
	if err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "get "+key)
	}
	existing := decodeEntries(resp)
	remaining := existing[:0]
	for _, e := range existing {
		if !containsEntry(entries, e) {
			remaining = append(remaining, e)
		}
	}
	return c.put(ctx, key, remaining, state)
}

// WriteAddedAcls implements migration.MigrationClient.
func (c *Client) WriteAddedAcls(ctx context.Context, pattern image.ResourcePattern, entries []image.AccessControlEntry, state migration.LeadershipState) (migration.LeadershipState, error) {
	key := aclsPrefix + pattern.ResourceType + "/" + pattern.PatternType + "/" + pattern.Name
	resp, err := c.cli.Get(ctx, c.key(key))
	if err != nil {
		return state, terror.ErrLegacyStoreConnFail.Delegate(err, "get "+key)
	}
	existing := decodeEntries(resp)
	existing = append(existing, entries...)
	return c.put(ctx, key, existing, state)
}

func decodeEntries(resp *clientv3.GetResponse) []image.AccessControlEntry {
	if len(resp.Kvs) == 0 {
		return nil
	}
	var entries []image.AccessControlEntry
	if err := json.Unmarshal(resp.Kvs[0].Value, &entries); err != nil {
		return nil
	}
	return entries
}

func containsEntry(haystack []image.AccessControlEntry, needle image.AccessControlEntry) bool {
	for _, e := range haystack {
		if e == needle {
			return true
		}
	}
	return false
}

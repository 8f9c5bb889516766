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
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/failpoint"

	"github.com/pingcap/dm/dm/migration/image"
)

// OnMetadataUpdate implements MetadataPublisher. Per §5, external callers
// only enqueue events and never touch driver state directly: the worker is
// the sole writer of d.image/d.firstPublish, computing prevImage from
// whatever d.image held when this event actually runs, not when it was
// enqueued, so the FIFO happens-before ordering relative to earlier-queued
// events (e.g. a pending leader change) is preserved.
func (d *Driver) OnMetadataUpdate(delta *image.MetadataDelta, newImage image.MetadataImage, provenance image.MetadataProvenance, isSnapshot bool, completionCallback func(error)) {
	err := d.loop.Append(&event{name: "MetadataChangeEvent", run: func(ctx context.Context) error {
		d.mu.Lock()
		prevImage := d.image
		d.image = newImage
		d.firstPublish = true
		d.mu.Unlock()
		return d.handleMetadataChange(ctx, delta, prevImage, newImage, isSnapshot, completionCallback)
	}})
	if err != nil && completionCallback != nil {
		completionCallback(err)
	}
}

// handleMetadataChange implements §4.12: outside DUAL_WRITE it only tracks
// the image (done above) and acknowledges; inside DUAL_WRITE it mirrors the
// delta into LegacyStore in the fixed order topics → configs → quotas →
// producer-id → ACLs, deletions before additions within ACLs, and always
// invokes completionCallback exactly once.
func (d *Driver) handleMetadataChange(ctx context.Context, delta *image.MetadataDelta, prevImage, newImage image.MetadataImage, isSnapshot bool, completionCallback func(error)) error {
	if d.State() != StateDualWrite {
		if completionCallback != nil {
			completionCallback(nil)
		}
		return nil
	}

	if delta != nil && delta.FeaturesDelta != nil && delta.FeaturesDelta.MetadataVersion != nil {
		if err := d.propagator.SetMetadataVersion(ctx, *delta.FeaturesDelta.MetadataVersion); err != nil {
			if completionCallback != nil {
				completionCallback(err)
			}
			return err
		}
	}

	lead := d.Leadership()
	if lead.AlreadyMirrored(newImage.HighestOffsetAndEpoch.Offset, newImage.HighestOffsetAndEpoch.Epoch) {
		// I5: this image has already been fully mirrored (e.g. a replayed
		// snapshot after restart); skip re-writing LegacyStore.
		if completionCallback != nil {
			completionCallback(nil)
		}
		return nil
	}

	mirrorStart := time.Now()
	var mirrorErr error
	lead, mirrorErr = d.mirrorTopics(ctx, delta, newImage, lead)
	if mirrorErr == nil {
		lead, mirrorErr = d.mirrorConfigs(ctx, delta, newImage, lead)
	}
	if mirrorErr == nil {
		lead, mirrorErr = d.mirrorQuotas(ctx, delta, newImage, lead)
	}
	if mirrorErr == nil {
		lead, mirrorErr = d.mirrorProducerID(ctx, delta, newImage, lead)
	}
	if mirrorErr == nil {
		lead, mirrorErr = d.mirrorAcls(ctx, delta, prevImage, newImage, lead)
	}
	failpoint.Inject("migrationDualWriteMirrorError", func() {
		mirrorErr = &ClientError{Op: "mirror", Err: context.DeadlineExceeded}
	})
	dualWriteLatency.Observe(time.Since(mirrorStart).Seconds())

	d.mu.Lock()
	d.leadership = lead
	d.mu.Unlock()

	if mirrorErr != nil {
		if completionCallback != nil {
			completionCallback(mirrorErr)
		}
		return mirrorErr
	}

	if delta != nil && (delta.TopicsDelta != nil || delta.ClusterDelta != nil) {
		if err := d.propagator.SendRPCsToBrokersFromDelta(ctx, delta, newImage, lead.LegacyControllerEpoch); err != nil {
			if completionCallback != nil {
				completionCallback(err)
			}
			return err
		}
	}

	if completionCallback != nil {
		completionCallback(nil)
	}
	return nil
}

func (d *Driver) mirrorTopics(ctx context.Context, delta *image.MetadataDelta, newImage image.MetadataImage, lead LeadershipState) (LeadershipState, error) {
	if delta == nil || delta.TopicsDelta == nil {
		return lead, nil
	}
	td := delta.TopicsDelta

	for _, id := range sortedUUIDKeys(td.CreatedTopicIDs) {
		t := td.ChangedTopics[id]
		if t == nil {
			continue
		}
		var err error
		lead, err = d.client.CreateTopic(ctx, t.Name, id, t.PartitionChanges, lead)
		if err != nil {
			return lead, err
		}
	}

	changesByTopic := make(map[string]map[int32]image.PartitionChange)
	for _, id := range td.ChangedTopicIDsInOrder() {
		if td.CreatedTopicIDs[id] {
			continue
		}
		t := td.ChangedTopics[id]
		changesByTopic[t.Name] = t.PartitionChanges
	}
	if len(changesByTopic) > 0 {
		var err error
		lead, err = d.client.UpdateTopicPartitions(ctx, changesByTopic, lead)
		if err != nil {
			return lead, err
		}
	}
	return lead, nil
}

func (d *Driver) mirrorConfigs(ctx context.Context, delta *image.MetadataDelta, newImage image.MetadataImage, lead LeadershipState) (LeadershipState, error) {
	if delta == nil || delta.ConfigsDelta == nil {
		return lead, nil
	}
	resources := make([]image.ConfigResource, 0, len(delta.ConfigsDelta.Changes))
	for res := range delta.ConfigsDelta.Changes {
		resources = append(resources, res)
	}
	sort.Slice(resources, func(i, j int) bool {
		if resources[i].Type != resources[j].Type {
			return resources[i].Type < resources[j].Type
		}
		return resources[i].Name < resources[j].Name
	})
	for _, res := range resources {
		var err error
		lead, err = d.client.WriteConfigs(ctx, res, newImage.Configs.ConfigMapForResource(res), lead)
		if err != nil {
			return lead, err
		}
	}
	return lead, nil
}

func (d *Driver) mirrorQuotas(ctx context.Context, delta *image.MetadataDelta, newImage image.MetadataImage, lead LeadershipState) (LeadershipState, error) {
	if delta == nil || delta.ClientQuotasDelta == nil {
		return lead, nil
	}
	keys := make([]string, 0, len(delta.ClientQuotasDelta.Changes))
	for k := range delta.ClientQuotasDelta.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entity := delta.ClientQuotasDelta.Changes[k].Entity
		var err error
		lead, err = d.client.WriteClientQuotas(ctx, entity, newImage.ClientQuotas.QuotaMapForEntity(entity), lead)
		if err != nil {
			return lead, err
		}
	}
	return lead, nil
}

func (d *Driver) mirrorProducerID(ctx context.Context, delta *image.MetadataDelta, newImage image.MetadataImage, lead LeadershipState) (LeadershipState, error) {
	if delta == nil || delta.ProducerIdsDelta == nil {
		return lead, nil
	}
	return d.client.WriteProducerID(ctx, newImage.ProducerIDs.NextProducerID, lead)
}

func (d *Driver) mirrorAcls(ctx context.Context, delta *image.MetadataDelta, prevImage, newImage image.MetadataImage, lead LeadershipState) (LeadershipState, error) {
	if delta == nil || delta.AclsDelta == nil {
		return lead, nil
	}
	ad := delta.AclsDelta

	deletions, err := groupDeletedACLsByPattern(sortedUUIDs(ad.Deleted()), prevImage.Acls.Acls)
	if err != nil {
		return lead, err
	}
	for _, g := range deletions {
		var err error
		lead, err = d.client.RemoveDeletedAcls(ctx, g.pattern, g.entries, lead)
		if err != nil {
			return lead, err
		}
	}

	additions := groupACLsByPattern(sortedUUIDs(ad.Added()), ad.Changes)
	for _, g := range additions {
		var err error
		lead, err = d.client.WriteAddedAcls(ctx, g.pattern, g.entries, lead)
		if err != nil {
			return lead, err
		}
	}

	return lead, nil
}

type aclPatternGroup struct {
	pattern image.ResourcePattern
	entries []image.AccessControlEntry
}

// groupACLsByPattern groups the ACLs named by ids (looked up in source) by
// resource pattern, preserving ids' order so the result is deterministic
// across replays of the same delta. Used for additions, where source is the
// delta's own Changes map and every id is guaranteed present by construction.
func groupACLsByPattern(ids []uuid.UUID, source map[uuid.UUID]*image.StandardAcl) []aclPatternGroup {
	order := make([]image.ResourcePattern, 0)
	byPattern := make(map[image.ResourcePattern][]image.AccessControlEntry)
	for _, id := range ids {
		acl := source[id]
		if acl == nil {
			continue
		}
		if _, ok := byPattern[acl.Pattern]; !ok {
			order = append(order, acl.Pattern)
		}
		byPattern[acl.Pattern] = append(byPattern[acl.Pattern], acl.Entry)
	}
	groups := make([]aclPatternGroup, 0, len(order))
	for _, p := range order {
		groups = append(groups, aclPatternGroup{pattern: p, entries: byPattern[p]})
	}
	return groups
}

// groupDeletedACLsByPattern resolves each deleted id against prevAcls and
// groups the results by resource pattern, same as groupACLsByPattern. Unlike
// additions, a deletion naming a uuid absent from prevAcls is not something
// to skip: per §4.12.e it means LegacyStore was never told about the ACL the
// log now claims is gone, which is fatal rather than recoverable by retry.
func groupDeletedACLsByPattern(ids []uuid.UUID, prevAcls map[uuid.UUID]*image.StandardAcl) ([]aclPatternGroup, error) {
	order := make([]image.ResourcePattern, 0)
	byPattern := make(map[image.ResourcePattern][]image.AccessControlEntry)
	for _, id := range ids {
		acl := prevAcls[id]
		if acl == nil {
			return nil, errAclNotInPrevImage(id)
		}
		if _, ok := byPattern[acl.Pattern]; !ok {
			order = append(order, acl.Pattern)
		}
		byPattern[acl.Pattern] = append(byPattern[acl.Pattern], acl.Entry)
	}
	groups := make([]aclPatternGroup, 0, len(order))
	for _, p := range order {
		groups = append(groups, aclPatternGroup{pattern: p, entries: byPattern[p]})
	}
	return groups, nil
}

func sortedUUIDs(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sortedUUIDKeys(set map[uuid.UUID]bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return sortedUUIDs(ids)
}

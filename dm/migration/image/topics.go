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

package image

import (
	"sort"

	"github.com/google/uuid"
)

// PartitionChange describes a change to one partition's replica/ISR/leader
// assignment. The driver never inspects the contents, only mirrors that a
// change happened, so it is an opaque blob here.
type PartitionChange struct {
	Replicas []int32
	Isr      []int32
	Leader   *int32
}

// TopicDelta is the set of partition changes for one topic. Whether the
// topic itself was just created is recorded in TopicsDelta.CreatedTopicIDs.
type TopicDelta struct {
	Name             string
	PartitionChanges map[int32]PartitionChange
}

// TopicsDelta is the change to the whole topic set carried by one
// MetadataDelta.
type TopicsDelta struct {
	ChangedTopics   map[uuid.UUID]*TopicDelta
	CreatedTopicIDs map[uuid.UUID]bool
	DeletedTopicIDs map[uuid.UUID]string // id -> name; Apply drops these topics, the dual-write mirror writes no deletion
}

// ChangedTopicIDsInOrder returns the changed topic ids in a stable order so
// the dual-write mirror produces deterministic logs across replays.
func (d *TopicsDelta) ChangedTopicIDsInOrder() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.ChangedTopics))
	for id := range d.ChangedTopics {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// TopicsImage is the full current topic set.
type TopicsImage struct {
	TopicsByID   map[uuid.UUID]*TopicDelta
	TopicIDsByName map[string]uuid.UUID
}

// Apply returns a new TopicsImage reflecting d applied on top of base.
func (d *TopicsDelta) Apply(base TopicsImage) TopicsImage {
	next := TopicsImage{
		TopicsByID:     make(map[uuid.UUID]*TopicDelta, len(base.TopicsByID)),
		TopicIDsByName: make(map[string]uuid.UUID, len(base.TopicIDsByName)),
	}
	for id, t := range base.TopicsByID {
		next.TopicsByID[id] = t
		next.TopicIDsByName[t.Name] = id
	}
	if d == nil {
		return next
	}
	for id := range d.DeletedTopicIDs {
		if t, ok := next.TopicsByID[id]; ok {
			delete(next.TopicIDsByName, t.Name)
		}
		delete(next.TopicsByID, id)
	}
	for id, delta := range d.ChangedTopics {
		next.TopicsByID[id] = delta
		next.TopicIDsByName[delta.Name] = id
	}
	return next
}

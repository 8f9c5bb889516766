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

// Package image models the metadata that flows from LogMeta to the
// migration driver: an immutable snapshot (MetadataImage) plus the
// incremental change (MetadataDelta) that produced it. Both are read-only
// value types; nothing in this package talks to a real LogMeta quorum.
package image

import "fmt"

// OffsetAndEpoch identifies a position in LogMeta's replicated log: an
// offset within the current leader epoch.
type OffsetAndEpoch struct {
	Offset int64
	Epoch  int32
}

// Compare returns -1, 0 or 1 as o is less than, equal to, or greater than
// other, ordering first by epoch and then by offset within the epoch.
func (o OffsetAndEpoch) Compare(other OffsetAndEpoch) int {
	if o.Epoch != other.Epoch {
		if o.Epoch < other.Epoch {
			return -1
		}
		return 1
	}
	switch {
	case o.Offset < other.Offset:
		return -1
	case o.Offset > other.Offset:
		return 1
	default:
		return 0
	}
}

// String implements fmt.Stringer.
func (o OffsetAndEpoch) String() string {
	return fmt.Sprintf("(offset=%d, epoch=%d)", o.Offset, o.Epoch)
}

// UnknownOffsetAndEpoch is the sentinel used before the driver has observed
// any metadata from LogMeta.
var UnknownOffsetAndEpoch = OffsetAndEpoch{Offset: -1, Epoch: -1}

// LeaderAndEpoch identifies which LogMeta controller node currently holds
// leadership, and in which epoch.
type LeaderAndEpoch struct {
	NodeID    int32
	HasLeader bool
	Epoch     int32
}

// UnknownLeader is the sentinel value before any leader has been observed.
var UnknownLeader = LeaderAndEpoch{NodeID: -1, HasLeader: false, Epoch: -1}

// IsLeader reports whether nodeID is the leader described by l.
func (l LeaderAndEpoch) IsLeader(nodeID int32) bool {
	return l.HasLeader && l.NodeID == nodeID
}

// String implements fmt.Stringer.
func (l LeaderAndEpoch) String() string {
	if !l.HasLeader {
		return fmt.Sprintf("(no leader, epoch=%d)", l.Epoch)
	}
	return fmt.Sprintf("(leader=%d, epoch=%d)", l.NodeID, l.Epoch)
}

// MetadataProvenance records where a MetadataImage came from: the log
// position it reflects and the wall-clock time of the record that produced
// it, used to log human-readable lag information.
type MetadataProvenance struct {
	Offset                 int64
	Epoch                  int32
	LastContainedLogTimeMs int64
}

// String implements fmt.Stringer.
func (p MetadataProvenance) String() string {
	return fmt.Sprintf("(offset=%d, epoch=%d, lastContainedLogTimeMs=%d)", p.Offset, p.Epoch, p.LastContainedLogTimeMs)
}

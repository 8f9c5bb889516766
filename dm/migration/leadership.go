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

import "fmt"

// LeadershipState is the driver's immutable record of its last-known
// authority in LegacyStore. It is never mutated in place: apply (see
// driver.go) replaces it wholesale by calling a mutator function that
// returns a new value, mirroring the way the Java original's
// ZkMigrationLeadershipState works.
type LeadershipState struct {
	LegacyControllerEpoch int32
	LegacyEpochZkVersion  int32
	LogMetaControllerID   int32
	LogMetaControllerEpoch int32
	ReplayedOffset        int64
	ReplayedEpoch         int32
	MigrationComplete     bool
}

// EmptyLeadershipState is the sentinel value before any recovery has run.
var EmptyLeadershipState = LeadershipState{
	LegacyControllerEpoch:  -1,
	LegacyEpochZkVersion:   -1,
	LogMetaControllerID:    -1,
	LogMetaControllerEpoch: -1,
	ReplayedOffset:         -1,
	ReplayedEpoch:          -1,
	MigrationComplete:      false,
}

// HasClaimedLeadership reports whether s records a successful claim:
// LegacyEpochZkVersion stays -1 (as in EmptyLeadershipState) until a claim
// succeeds.
func (s LeadershipState) HasClaimedLeadership() bool {
	return s.LegacyEpochZkVersion >= 0
}

// WithNewLogMetaController returns a copy of s recording a new LogMeta
// controller id/epoch, used by the leader-change handler.
func (s LeadershipState) WithNewLogMetaController(id int32, epoch int32) LeadershipState {
	next := s
	next.LogMetaControllerID = id
	next.LogMetaControllerEpoch = epoch
	return next
}

// WithReplayedOffsetEpoch returns a copy of s recording the offset/epoch up
// to which LegacyStore has now been fully replayed.
func (s LeadershipState) WithReplayedOffsetEpoch(offset int64, epoch int32) LeadershipState {
	next := s
	next.ReplayedOffset = offset
	next.ReplayedEpoch = epoch
	return next
}

// WithMigrationComplete returns a copy of s with the migration-complete
// flag set.
func (s LeadershipState) WithMigrationComplete() LeadershipState {
	next := s
	next.MigrationComplete = true
	return next
}

// AlreadyMirrored reports whether offsetAndEpoch has already been reflected
// into LegacyStore, per invariant I5 (idempotent replay on restart).
func (s LeadershipState) AlreadyMirrored(offset int64, epoch int32) bool {
	if epoch != s.ReplayedEpoch {
		return epoch < s.ReplayedEpoch
	}
	return offset <= s.ReplayedOffset
}

// String implements fmt.Stringer, used for the apply() before/after log
// line.
func (s LeadershipState) String() string {
	return fmt.Sprintf(
		"LeadershipState{legacyControllerEpoch=%d, legacyEpochZkVersion=%d, logMetaControllerId=%d, logMetaControllerEpoch=%d, replayedOffset=%d, replayedEpoch=%d, migrationComplete=%t}",
		s.LegacyControllerEpoch, s.LegacyEpochZkVersion, s.LogMetaControllerID, s.LogMetaControllerEpoch,
		s.ReplayedOffset, s.ReplayedEpoch, s.MigrationComplete,
	)
}

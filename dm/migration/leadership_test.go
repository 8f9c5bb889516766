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

import "github.com/pingcap/check"

var _ = check.Suite(&testLeadershipSuite{})

type testLeadershipSuite struct{}

func (t *testLeadershipSuite) TestEmptyHasNotClaimed(c *check.C) {
	c.Assert(EmptyLeadershipState.HasClaimedLeadership(), check.IsFalse)
}

func (t *testLeadershipSuite) TestClaimedOnceVersionNonNegative(c *check.C) {
	s := EmptyLeadershipState
	s.LegacyEpochZkVersion = 0
	c.Assert(s.HasClaimedLeadership(), check.IsTrue)
}

func (t *testLeadershipSuite) TestWithersAreImmutable(c *check.C) {
	base := EmptyLeadershipState
	next := base.WithNewLogMetaController(7, 3)

	c.Assert(base.LogMetaControllerID, check.Equals, int32(-1))
	c.Assert(next.LogMetaControllerID, check.Equals, int32(7))
	c.Assert(next.LogMetaControllerEpoch, check.Equals, int32(3))

	next2 := next.WithReplayedOffsetEpoch(100, 2)
	c.Assert(next.ReplayedOffset, check.Equals, int64(-1))
	c.Assert(next2.ReplayedOffset, check.Equals, int64(100))
	c.Assert(next2.ReplayedEpoch, check.Equals, int32(2))

	next3 := next2.WithMigrationComplete()
	c.Assert(next2.MigrationComplete, check.IsFalse)
	c.Assert(next3.MigrationComplete, check.IsTrue)
}

func (t *testLeadershipSuite) TestAlreadyMirroredIsIdempotentOnReplay(c *check.C) {
	s := EmptyLeadershipState.WithReplayedOffsetEpoch(100, 5)

	c.Assert(s.AlreadyMirrored(50, 5), check.IsTrue)
	c.Assert(s.AlreadyMirrored(100, 5), check.IsTrue)
	c.Assert(s.AlreadyMirrored(101, 5), check.IsFalse)
	c.Assert(s.AlreadyMirrored(0, 4), check.IsTrue)
	c.Assert(s.AlreadyMirrored(0, 6), check.IsFalse)
}

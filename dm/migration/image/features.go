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

// MigrationFlag mirrors the migration progress flag LogMeta carries for the
// whole cluster, as opposed to LeadershipState which is the driver's own
// private view of migration progress.
type MigrationFlag int

// Migration flags, in the order the migration actually proceeds through
// them.
const (
	MigrationFlagNone MigrationFlag = iota
	MigrationFlagPreMigration
	MigrationFlagMigration
	MigrationFlagPostMigration
)

func (f MigrationFlag) String() string {
	switch f {
	case MigrationFlagNone:
		return "NONE"
	case MigrationFlagPreMigration:
		return "PRE_MIGRATION"
	case MigrationFlagMigration:
		return "MIGRATION"
	case MigrationFlagPostMigration:
		return "POST_MIGRATION"
	default:
		return "UNKNOWN"
	}
}

// FeaturesImage is the subset of cluster-wide feature state the driver
// cares about.
type FeaturesImage struct {
	MetadataVersion string
	MigrationFlag   MigrationFlag
}

// FeaturesDelta describes a change to FeaturesImage.
type FeaturesDelta struct {
	MetadataVersion *string
	MigrationFlag   *MigrationFlag
}

// Apply returns a new FeaturesImage reflecting d applied on top of base.
func (d *FeaturesDelta) Apply(base FeaturesImage) FeaturesImage {
	if d == nil {
		return base
	}
	next := base
	if d.MetadataVersion != nil {
		next.MetadataVersion = *d.MetadataVersion
	}
	if d.MigrationFlag != nil {
		next.MigrationFlag = *d.MigrationFlag
	}
	return next
}

// BrokerRegistration is the subset of a broker's registration record the
// driver cares about: whether it has completed the legacy-broker migration
// handshake yet.
type BrokerRegistration struct {
	ID                      int32
	IsMigratingLegacyBroker bool
}

// ClusterImage holds the set of registered brokers.
type ClusterImage struct {
	Brokers map[int32]BrokerRegistration
}

// IsEmpty reports whether no brokers are registered yet.
func (c ClusterImage) IsEmpty() bool {
	return len(c.Brokers) == 0
}

// ClusterDelta describes broker registration changes.
type ClusterDelta struct {
	ChangedBrokers map[int32]*BrokerRegistration // nil value means the broker was removed
}

// Apply returns a new ClusterImage reflecting d applied on top of base.
func (d *ClusterDelta) Apply(base ClusterImage) ClusterImage {
	if d == nil {
		return base
	}
	next := ClusterImage{Brokers: make(map[int32]BrokerRegistration, len(base.Brokers))}
	for id, b := range base.Brokers {
		next.Brokers[id] = b
	}
	for id, b := range d.ChangedBrokers {
		if b == nil {
			delete(next.Brokers, id)
			continue
		}
		next.Brokers[id] = *b
	}
	return next
}

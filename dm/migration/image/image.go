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

// MetadataDelta is the incremental change LogMeta hands the driver on each
// OnMetadataUpdate callback. Any field may be nil if that part of the
// metadata did not change in this delta.
type MetadataDelta struct {
	FeaturesDelta     *FeaturesDelta
	ClusterDelta      *ClusterDelta
	TopicsDelta       *TopicsDelta
	ConfigsDelta      *ConfigsDelta
	ClientQuotasDelta *ClientQuotasDelta
	ProducerIdsDelta  *ProducerIdsDelta
	AclsDelta         *AclsDelta
}

// ProducerIdsDelta describes a producer id block allocation.
type ProducerIdsDelta struct {
	NextProducerID int64
}

// ProducerIdsImage is the current producer id allocation high-water mark.
type ProducerIdsImage struct {
	NextProducerID int64
}

// Apply returns a new ProducerIdsImage reflecting d applied on top of base.
func (d *ProducerIdsDelta) Apply(base ProducerIdsImage) ProducerIdsImage {
	if d == nil {
		return base
	}
	return ProducerIdsImage{NextProducerID: d.NextProducerID}
}

// MetadataImage is LogMeta's full metadata state as of some offset/epoch.
// It is immutable: Apply produces a new image, it never mutates the
// receiver.
type MetadataImage struct {
	Features              FeaturesImage
	Cluster               ClusterImage
	Topics                TopicsImage
	Configs               ConfigsImage
	ClientQuotas          ClientQuotasImage
	ProducerIDs           ProducerIdsImage
	Acls                  AclsImage
	HighestOffsetAndEpoch OffsetAndEpoch
	Provenance            MetadataProvenance
}

// Apply returns the new MetadataImage produced by applying delta on top of
// image, along with the provenance the caller supplies for the result.
func Apply(base MetadataImage, delta *MetadataDelta, newOffsetAndEpoch OffsetAndEpoch, provenance MetadataProvenance) MetadataImage {
	next := base
	next.HighestOffsetAndEpoch = newOffsetAndEpoch
	next.Provenance = provenance
	if delta == nil {
		return next
	}
	next.Features = delta.FeaturesDelta.Apply(base.Features)
	next.Cluster = delta.ClusterDelta.Apply(base.Cluster)
	next.Topics = delta.TopicsDelta.Apply(base.Topics)
	next.Configs = delta.ConfigsDelta.Apply(base.Configs)
	next.ClientQuotas = delta.ClientQuotasDelta.Apply(base.ClientQuotas)
	next.ProducerIDs = delta.ProducerIdsDelta.Apply(base.ProducerIDs)
	next.Acls = delta.AclsDelta.Apply(base.Acls)
	return next
}

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

// ConfigResourceType names the kind of entity a dynamic config applies to.
type ConfigResourceType int

// Config resource types.
const (
	ConfigResourceUnknown ConfigResourceType = iota
	ConfigResourceBroker
	ConfigResourceTopic
)

// ConfigResource identifies one configurable resource.
type ConfigResource struct {
	Type ConfigResourceType
	Name string
}

// ConfigDelta is the set of key changes for one resource. A nil value means
// the key was removed.
type ConfigDelta struct {
	Changes map[string]*string
}

// ConfigsDelta is the change to the whole dynamic config set carried by one
// MetadataDelta.
type ConfigsDelta struct {
	Changes map[ConfigResource]*ConfigDelta
}

// ConfigsImage is the full current dynamic config set, keyed by resource.
type ConfigsImage struct {
	Resources map[ConfigResource]map[string]string
}

// ConfigMapForResource returns the effective config map for resource,
// suitable for mirroring into the legacy store verbatim.
func (c ConfigsImage) ConfigMapForResource(resource ConfigResource) map[string]string {
	return c.Resources[resource]
}

// Apply returns a new ConfigsImage reflecting d applied on top of base.
func (d *ConfigsDelta) Apply(base ConfigsImage) ConfigsImage {
	next := ConfigsImage{Resources: make(map[ConfigResource]map[string]string, len(base.Resources))}
	for res, kv := range base.Resources {
		cp := make(map[string]string, len(kv))
		for k, v := range kv {
			cp[k] = v
		}
		next.Resources[res] = cp
	}
	if d == nil {
		return next
	}
	for res, delta := range d.Changes {
		kv, ok := next.Resources[res]
		if !ok {
			kv = make(map[string]string)
			next.Resources[res] = kv
		}
		for k, v := range delta.Changes {
			if v == nil {
				delete(kv, k)
				continue
			}
			kv[k] = *v
		}
	}
	return next
}

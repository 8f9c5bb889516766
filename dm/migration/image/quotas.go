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
	"strings"
)

// ClientQuotaEntity identifies who a quota applies to, e.g. {"user": "bob",
// "client-id": "reporter"}. Canonical() gives a stable map key and mirror
// target path.
type ClientQuotaEntity struct {
	Entries map[string]string
}

// Canonical renders e as a deterministic "type=value,type=value" string,
// sorted by type, so it can key a map and produce a stable legacy store
// path.
func (e ClientQuotaEntity) Canonical() string {
	types := make([]string, 0, len(e.Entries))
	for t := range e.Entries {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, t+"="+e.Entries[t])
	}
	return strings.Join(parts, ",")
}

// ClientQuotaDelta is the set of quota key changes for one entity.
type ClientQuotaDelta struct {
	Entity  ClientQuotaEntity
	Changes map[string]*float64
}

// ClientQuotasDelta is the change to the whole quota set carried by one
// MetadataDelta, keyed by the entity's canonical string.
type ClientQuotasDelta struct {
	Changes map[string]*ClientQuotaDelta
}

// ClientQuotasImage is the full current quota set.
type ClientQuotasImage struct {
	Quotas map[string]map[string]float64 // canonical entity -> quota key -> value
}

// QuotaMapForEntity returns the effective quota map for entity.
func (c ClientQuotasImage) QuotaMapForEntity(entity ClientQuotaEntity) map[string]float64 {
	return c.Quotas[entity.Canonical()]
}

// Apply returns a new ClientQuotasImage reflecting d applied on top of base.
func (d *ClientQuotasDelta) Apply(base ClientQuotasImage) ClientQuotasImage {
	next := ClientQuotasImage{Quotas: make(map[string]map[string]float64, len(base.Quotas))}
	for k, v := range base.Quotas {
		cp := make(map[string]float64, len(v))
		for kk, vv := range v {
			cp[kk] = vv
		}
		next.Quotas[k] = cp
	}
	if d == nil {
		return next
	}
	for key, delta := range d.Changes {
		kv, ok := next.Quotas[key]
		if !ok {
			kv = make(map[string]float64)
			next.Quotas[key] = kv
		}
		for qk, qv := range delta.Changes {
			if qv == nil {
				delete(kv, qk)
				continue
			}
			kv[qk] = *qv
		}
	}
	return next
}

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

import "github.com/google/uuid"

// ResourcePattern identifies what an ACL entry's resource filter matches.
type ResourcePattern struct {
	ResourceType string
	Name         string
	PatternType  string
}

// AccessControlEntry is the principal/host/operation/permission tuple an ACL
// grants or denies.
type AccessControlEntry struct {
	Principal      string
	Host           string
	Operation      string
	PermissionType string
}

// StandardAcl pairs a resource pattern with the entry applied to it, the
// unit the legacy store's ACL znodes are organized by.
type StandardAcl struct {
	Pattern ResourcePattern
	Entry   AccessControlEntry
}

// AclsDelta is the change to the ACL set carried by one MetadataDelta. A nil
// value for a given id means that ACL was deleted.
type AclsDelta struct {
	Changes map[uuid.UUID]*StandardAcl
}

// Deleted returns the ids removed by this delta.
func (d *AclsDelta) Deleted() []uuid.UUID {
	var out []uuid.UUID
	for id, acl := range d.Changes {
		if acl == nil {
			out = append(out, id)
		}
	}
	return out
}

// Added returns the ids added or changed by this delta.
func (d *AclsDelta) Added() []uuid.UUID {
	var out []uuid.UUID
	for id, acl := range d.Changes {
		if acl != nil {
			out = append(out, id)
		}
	}
	return out
}

// AclsImage is the full current ACL set.
type AclsImage struct {
	Acls map[uuid.UUID]*StandardAcl
}

// Apply returns a new AclsImage reflecting d applied on top of base.
func (d *AclsDelta) Apply(base AclsImage) AclsImage {
	next := AclsImage{Acls: make(map[uuid.UUID]*StandardAcl, len(base.Acls))}
	for id, acl := range base.Acls {
		next.Acls[id] = acl
	}
	if d == nil {
		return next
	}
	for id, acl := range d.Changes {
		if acl == nil {
			delete(next.Acls, id)
			continue
		}
		next.Acls[id] = acl
	}
	return next
}

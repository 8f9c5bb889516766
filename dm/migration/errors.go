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
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pingcap/dm/pkg/terror"
)

// errIllegalTransition builds the *terror.Error raised when TransitionGuard
// rejects a state change. This is always a programming bug: the caller
// should treat it as fatal to the event (fault-handler severe), not retry.
func errIllegalTransition(from, to DriverState) error {
	return terror.ErrMigrationIllegalTransition.Generate(from, to)
}

// errCommitTimeout builds the error raised when a RecordConsumer future
// (acceptBatch/completeMigration) does not resolve within its deadline.
func errCommitTimeout(what string, deadline time.Duration) error {
	return terror.ErrMigrationCommitTimeout.Generate(what, deadline)
}

// errAclNotInPrevImage builds the *terror.Error raised when a deleted ACL's
// uuid is absent from the previous AclsImage. Per §4.12.e this is fatal: the
// metadata log promised a delete for an ACL the driver never mirrored in the
// first place, so there is no safe way to proceed with the mirror.
func errAclNotInPrevImage(id uuid.UUID) error {
	return terror.ErrMigrationAclNotInPrevImage.Generate(id)
}

// errQueueClosed is the sentinel the event loop classifier treats as
// "queue closed during shutdown": silently dropped, never surfaced to the
// fault handler.
var errQueueClosed = errors.New("migration: event queue is closed")

// exceptionKind classifies an error for the §4.2/§7 exception policy.
type exceptionKind int

const (
	kindUnknown exceptionKind = iota
	kindTransientStore
	kindAuthFailure
	kindQueueClosed
	kindCommitTimeout
	kindIllegalTransition
)

func classify(err error) exceptionKind {
	if err == nil {
		return kindUnknown
	}
	if errors.Is(err, errQueueClosed) {
		return kindQueueClosed
	}
	var te *terror.Error
	if errors.As(err, &te) {
		switch te.Code() {
		case terror.ErrLegacyStoreAuthFail.Code():
			return kindAuthFailure
		case terror.ErrLegacyStoreConnFail.Code(), terror.ErrLegacyStoreTimeout.Code(), terror.ErrLegacyStoreVersionMismatch.Code():
			return kindTransientStore
		case terror.ErrMigrationCommitTimeout.Code():
			return kindCommitTimeout
		case terror.ErrMigrationIllegalTransition.Code(), terror.ErrMigrationAclNotInPrevImage.Code():
			return kindIllegalTransition
		}
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return kindTransientStore
	}
	var authErr *ClientAuthError
	if errors.As(err, &authErr) {
		return kindAuthFailure
	}
	return kindUnknown
}

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

// Package migration implements the event-serialized state machine that
// migrates cluster metadata from a legacy hierarchical key-value store
// (LegacyStore) to a replicated log-based metadata system (LogMeta). See
// Driver for the orchestrating type.
package migration

// DriverState is the migration driver's lifecycle state.
type DriverState int

// Driver states, in roughly the order a fresh driver passes through them.
const (
	// StateUninitialized is the state before recovery has run.
	StateUninitialized DriverState = iota
	// StateInactive means this node is not driving the migration: either it
	// is not the LogMeta leader, or it has lost LegacyStore authority.
	StateInactive
	// StateWaitForControllerQuorum waits for all controller peers to
	// advertise migration support and for the first metadata publish.
	StateWaitForControllerQuorum
	// StateWaitForBrokers waits for every LegacyStore-registered broker to
	// appear in LogMeta's cluster image.
	StateWaitForBrokers
	// StateBecomeController attempts to claim exclusive LegacyStore
	// controller leadership.
	StateBecomeController
	// StateZkMigration performs the one-shot bulk replay from LegacyStore
	// into LogMeta.
	StateZkMigration
	// StateKRaftControllerToBrokerComm sends legacy broker RPCs derived
	// from the current image.
	StateKRaftControllerToBrokerComm
	// StateDualWrite is the steady state: every LogMeta delta is mirrored
	// into LegacyStore as it arrives.
	StateDualWrite
)

func (s DriverState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInactive:
		return "INACTIVE"
	case StateWaitForControllerQuorum:
		return "WAIT_FOR_CONTROLLER_QUORUM"
	case StateWaitForBrokers:
		return "WAIT_FOR_BROKERS"
	case StateBecomeController:
		return "BECOME_CONTROLLER"
	case StateZkMigration:
		return "ZK_MIGRATION"
	case StateKRaftControllerToBrokerComm:
		return "KRAFT_CONTROLLER_TO_BROKER_COMM"
	case StateDualWrite:
		return "DUAL_WRITE"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions enumerates, for each state, the set of states the driver
// may move to next. It is a whitelist: anything not listed (and not a
// self-transition) is illegal and rejected by TransitionGuard. No state may
// ever transition back to StateUninitialized.
var legalTransitions = map[DriverState]map[DriverState]bool{
	StateUninitialized: {
		StateInactive: true,
	},
	StateInactive: {
		StateWaitForControllerQuorum: true,
	},
	StateWaitForControllerQuorum: {
		StateInactive:        true,
		StateBecomeController: true,
		StateWaitForBrokers:   true,
	},
	StateWaitForBrokers: {
		StateInactive:         true,
		StateBecomeController: true,
	},
	StateBecomeController: {
		StateInactive:                   true,
		StateZkMigration:                true,
		StateKRaftControllerToBrokerComm: true,
	},
	StateZkMigration: {
		StateInactive:                    true,
		StateKRaftControllerToBrokerComm: true,
	},
	StateKRaftControllerToBrokerComm: {
		StateInactive:  true,
		StateDualWrite: true,
	},
	StateDualWrite: {
		StateInactive: true,
	},
}

// TransitionGuard validates driver state transitions against the legal
// transition table, refusing to silently allow an illegal jump.
type TransitionGuard struct{}

// IsValid reports whether moving from `from` to `to` is a legal transition.
// A state transitioning to itself is always legal, modeling a handler that
// re-runs its own entry logic (e.g. repeated WAIT_FOR_CONTROLLER_QUORUM
// polls) without having made progress yet.
func (TransitionGuard) IsValid(from, to DriverState) bool {
	if from == to {
		return from != StateUninitialized
	}
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Validate returns a *terror.Error if moving from `from` to `to` is not
// legal, and nil otherwise.
func (g TransitionGuard) Validate(from, to DriverState) error {
	if g.IsValid(from, to) {
		return nil
	}
	return errIllegalTransition(from, to)
}

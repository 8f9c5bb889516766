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

package terror

// Error codes, grouped by the class of component that raises them.
const (
	// config
	codeConfigTomlTransform ErrCode = iota + 1001
	codeConfigParseFlagSet
	codeConfigInvalidNodeID
	codeConfigHostPortNotValid
	codeConfigInvalidDuration
)

const (
	// embedded LogMeta quorum bootstrap (dm/logmeta)
	codeLogMetaStartEmbedEtcdFail ErrCode = iota + 1101
	codeLogMetaJoinEmbedEtcdFail
	codeLogMetaGenEmbedEtcdConfigFail
	codeLogMetaHostPortNotValid
	codeLogMetaEtcdClientCreateFail
)

const (
	// election
	codeElectionCampaignFail ErrCode = iota + 1201
	codeElectionGetLeaderIDFail
	codeElectionCampaignLeaderIDNotFound
)

const (
	// legacy store client
	codeLegacyStoreConnFail ErrCode = iota + 1301
	codeLegacyStoreAuthFail
	codeLegacyStoreVersionMismatch
	codeLegacyStoreTimeout
)

const (
	// migration driver core
	codeMigrationQueueClosed ErrCode = iota + 1401
	codeMigrationIllegalTransition
	codeMigrationCommitTimeout
	codeMigrationReplayFailed
	codeMigrationNotLeader
	codeMigrationAclNotInPrevImage
)

// Config errors.
var (
	ErrConfigTomlTransform = New(codeConfigTomlTransform, ClassConfig, ScopeInternal, LevelMedium,
		"failed to transform config from/to toml", "please check the config file syntax")
	ErrConfigParseFlagSet = New(codeConfigParseFlagSet, ClassConfig, ScopeInternal, LevelMedium,
		"parse flag set for config failed: %s", "please check the command-line arguments")
	ErrConfigInvalidNodeID = New(codeConfigInvalidNodeID, ClassConfig, ScopeInternal, LevelHigh,
		"invalid node id %s, must be a positive int32", "please set a valid --node-id")
	ErrConfigHostPortNotValid = New(codeConfigHostPortNotValid, ClassConfig, ScopeInternal, LevelHigh,
		"host:port %s not valid", "please check the address format")
	ErrConfigInvalidDuration = New(codeConfigInvalidDuration, ClassConfig, ScopeInternal, LevelMedium,
		"invalid duration %s for %s", "please set a positive duration such as \"1s\"")
)

// LogMeta embedded-quorum bootstrap errors.
var (
	ErrLogMetaStartEmbedEtcdFail = New(codeLogMetaStartEmbedEtcdFail, ClassLogMeta, ScopeInternal, LevelHigh,
		"start embedded etcd failed", "please check the log of embedded etcd for more detail")
	ErrLogMetaJoinEmbedEtcdFail = New(codeLogMetaJoinEmbedEtcdFail, ClassLogMeta, ScopeInternal, LevelHigh,
		"join embedded etcd failed: %s", "please check the log of embedded etcd for more detail")
	ErrLogMetaGenEmbedEtcdConfigFail = New(codeLogMetaGenEmbedEtcdConfigFail, ClassLogMeta, ScopeInternal, LevelHigh,
		"generate embedded etcd config failed: %s", "please check the config file syntax")
	ErrLogMetaHostPortNotValid = New(codeLogMetaHostPortNotValid, ClassLogMeta, ScopeInternal, LevelHigh,
		"host:port %s not valid", "please check the address format")
	ErrLogMetaEtcdClientCreateFail = New(codeLogMetaEtcdClientCreateFail, ClassLogMeta, ScopeInternal, LevelHigh,
		"create etcd client failed", "please check the endpoints and network connectivity")
)

// Election errors.
var (
	ErrElectionCampaignFail = New(codeElectionCampaignFail, ClassElection, ScopeInternal, LevelMedium,
		"fail to campaign leader: %s", "please check the log of embedded etcd for more detail")
	ErrElectionGetLeaderIDFail = New(codeElectionGetLeaderIDFail, ClassElection, ScopeInternal, LevelMedium,
		"get leader id failed", "please retry later")
	ErrElectionCampaignLeaderIDNotFound = New(codeElectionCampaignLeaderIDNotFound, ClassElection, ScopeInternal, LevelMedium,
		"leader id not found in campaign response", "")
)

// LegacyStore client errors. These are the two exception kinds the event
// loop's classifier distinguishes: a plain ErrLegacyStoreConnFail/Timeout is
// treated as transient, ErrLegacyStoreAuthFail is treated as an
// authentication failure that must be reported to the fault handler while
// leaving the driver running.
var (
	ErrLegacyStoreConnFail = New(codeLegacyStoreConnFail, ClassLegacyStore, ScopeDownstream, LevelMedium,
		"legacy store request failed: %s", "please check connectivity to the legacy store")
	ErrLegacyStoreAuthFail = New(codeLegacyStoreAuthFail, ClassLegacyStore, ScopeDownstream, LevelHigh,
		"legacy store authentication failed: %s", "please check the migration driver's legacy store credentials")
	ErrLegacyStoreVersionMismatch = New(codeLegacyStoreVersionMismatch, ClassLegacyStore, ScopeDownstream, LevelMedium,
		"legacy store node version mismatch for %s, lost leadership", "the driver will re-claim leadership on the next poll")
	ErrLegacyStoreTimeout = New(codeLegacyStoreTimeout, ClassLegacyStore, ScopeDownstream, LevelMedium,
		"legacy store request timed out: %s", "please check legacy store load and network latency")
)

// Migration driver core errors.
var (
	ErrMigrationQueueClosed = New(codeMigrationQueueClosed, ClassMigration, ScopeInternal, LevelLow,
		"event queue is closed", "")
	ErrMigrationIllegalTransition = New(codeMigrationIllegalTransition, ClassMigration, ScopeInternal, LevelHigh,
		"illegal driver state transition from %s to %s", "this is a bug, please report it")
	ErrMigrationCommitTimeout = New(codeMigrationCommitTimeout, ClassMigration, ScopeInternal, LevelHigh,
		"timed out waiting for LogMeta to commit %s after %s", "please check LogMeta quorum health")
	ErrMigrationReplayFailed = New(codeMigrationReplayFailed, ClassMigration, ScopeInternal, LevelHigh,
		"metadata replay failed: %s", "the driver will retry replay on the next poll")
	ErrMigrationNotLeader = New(codeMigrationNotLeader, ClassMigration, ScopeInternal, LevelLow,
		"driver is not the active migration leader", "")
	ErrMigrationAclNotInPrevImage = New(codeMigrationAclNotInPrevImage, ClassMigration, ScopeInternal, LevelHigh,
		"cannot remove deleted acl %s: not present in the previous acls image", "this is a bug in the metadata log, please report it")
)

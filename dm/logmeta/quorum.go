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

package logmeta

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/embed"
	"go.uber.org/zap"

	"github.com/pingcap/dm/dm/migration/image"
	"github.com/pingcap/dm/pkg/election"
	"github.com/pingcap/dm/pkg/log"
)

// electionKey is the etcd key the quorum campaigns on. All replicas of one
// LogMeta quorum must agree on this key.
const electionKey = "/logmeta/leader"

// sessionTTL is the etcd session lease TTL backing the campaign, matching
// the value the original dm-master election used.
const sessionTTL = 60

// MetadataPublisher is the subset of migration.Driver's MetadataPublisher
// interface Quorum needs: just enough to push leader changes without
// importing the migration package and creating an import cycle.
type MetadataPublisher interface {
	OnLeaderChange(leader image.LeaderAndEpoch)
}

// Quorum bootstraps an embedded etcd member for one LogMeta controller
// replica, campaigns for leadership on it, and forwards every leadership
// change to a registered migration.Driver as an image.LeaderAndEpoch.
type Quorum struct {
	cfg *Config

	etcd   *embed.Etcd
	client *clientv3.Client
	elec   *election.Election

	mu        sync.Mutex
	epoch     int32
	publisher MetadataPublisher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQuorum starts the embedded etcd member described by cfg and begins
// campaigning for leadership. The returned Quorum does not yet notify
// anyone; call Register to attach a migration.Driver.
func NewQuorum(ctx context.Context, cfg *Config) (*Quorum, error) {
	if err := prepareJoin(cfg); err != nil {
		return nil, err
	}
	etcdCfg, err := cfg.genEmbedEtcdConfig()
	if err != nil {
		return nil, err
	}
	e, err := startEtcd(etcdCfg)
	if err != nil {
		return nil, err
	}

	client, err := newLocalClient(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}

	qctx, cancel := context.WithCancel(ctx)
	q := &Quorum{
		cfg:    cfg,
		etcd:   e,
		client: client,
		epoch:  -1,
		cancel: cancel,
	}
	q.elec = election.NewElection(qctx, client, sessionTTL, electionKey, strconv.Itoa(int(cfg.NodeID)))

	q.wg.Add(1)
	go q.watchLeadership(qctx)
	return q, nil
}

// Register attaches the migration driver that receives leader-change
// notifications. Safe to call once, before any leadership change fires.
func (q *Quorum) Register(p MetadataPublisher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.publisher = p
}

// leadershipPollInterval bounds how quickly watchLeadership notices this
// replica won a campaign. RetireNotify/ErrorNotify cover the loss side
// immediately; pkg/election exposes no symmetric "became leader" channel,
// so the win side is polled.
const leadershipPollInterval = 200 * time.Millisecond

// watchLeadership translates the election's IsLeader transitions into
// monotonically increasing LeaderAndEpoch values and forwards them to the
// registered publisher, mirroring the original dm-master electionNotify
// loop's leader/retire split.
func (q *Quorum) watchLeadership(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(leadershipPollInterval)
	defer ticker.Stop()

	nodeIDLabel := strconv.Itoa(int(q.cfg.NodeID))
	wasLeader := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.elec.RetireNotify():
			if wasLeader {
				wasLeader = false
				isLeader.WithLabelValues(nodeIDLabel).Set(0)
				q.publishLeader(image.LeaderAndEpoch{NodeID: -1, HasLeader: false, Epoch: q.nextEpoch()})
			}
		case err := <-q.elec.ErrorNotify():
			electionErrors.WithLabelValues(nodeIDLabel).Inc()
			log.L().Error("logmeta quorum election error", zap.Error(err))
		case <-ticker.C:
			leading := q.elec.IsLeader()
			if leading && !wasLeader {
				wasLeader = true
				isLeader.WithLabelValues(nodeIDLabel).Set(1)
				q.publishLeader(image.LeaderAndEpoch{NodeID: q.cfg.NodeID, HasLeader: true, Epoch: q.nextEpoch()})
			} else if !leading && wasLeader {
				wasLeader = false
				isLeader.WithLabelValues(nodeIDLabel).Set(0)
				q.publishLeader(image.LeaderAndEpoch{NodeID: -1, HasLeader: false, Epoch: q.nextEpoch()})
			}
		}
	}
}

func (q *Quorum) nextEpoch() int32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.epoch++
	return q.epoch
}

func (q *Quorum) publishLeader(leader image.LeaderAndEpoch) {
	q.mu.Lock()
	p := q.publisher
	q.mu.Unlock()
	if p != nil {
		p.OnLeaderChange(leader)
	}
}

// Client returns the local etcd client, for collaborators such as
// legacystore/etcdimpl that need a handle to this member's etcd endpoint.
func (q *Quorum) Client() *clientv3.Client { return q.client }

// Close stops the election, the local client, and the embedded etcd
// server, in that order.
func (q *Quorum) Close() {
	q.cancel()
	q.wg.Wait()
	q.elec.Close()
	q.client.Close()
	q.etcd.Close()
}

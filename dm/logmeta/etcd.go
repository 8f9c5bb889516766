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
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/embed"

	"github.com/pingcap/dm/pkg/etcdutil"
	"github.com/pingcap/dm/pkg/terror"
)

const (
	// etcdStartTimeout bounds how long startEtcd waits for the embedded
	// server to report ready.
	etcdStartTimeout = time.Minute
	// privateDirMode grants only the owner access to the data directory.
	privateDirMode os.FileMode = 0700
)

// startEtcd starts the embedded etcd server this quorum member runs its
// leader election and LegacyStore-claim bookkeeping against.
func startEtcd(etcdCfg *embed.Config) (*embed.Etcd, error) {
	e, err := embed.StartEtcd(etcdCfg)
	if err != nil {
		return nil, terror.ErrLogMetaStartEmbedEtcdFail.Delegate(err)
	}

	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(etcdStartTimeout):
		e.Server.Stop()
		e.Close()
		return nil, terror.ErrLogMetaStartEmbedEtcdFail.Generatef("start embedded etcd timeout %v", etcdStartTimeout)
	}
	return e, nil
}

// prepareJoin adjusts cfg to join an existing quorum when cfg.Join is set,
// following the same restart/rejoin precedence as the original dm-master
// bootstrap: prefer local persisted data, otherwise contact the existing
// cluster to add this member. No join record is read or persisted.
func prepareJoin(cfg *Config) error {
	if cfg.Join == "" {
		return nil
	}

	for _, clientURL := range strings.Split(cfg.Join, ",") {
		if clientURL == cfg.AdvertiseClientURLs {
			return terror.ErrLogMetaJoinEmbedEtcdFail.Generate("join self is forbidden")
		}
	}

	if isDataExist(filepath.Join(cfg.DataDir, "member")) {
		cfg.InitialCluster = ""
		cfg.InitialClusterState = embed.ClusterStateFlagExisting
		return nil
	}

	client, err := etcdutil.CreateClient(strings.Split(cfg.Join, ","), nil)
	if err != nil {
		return terror.ErrLogMetaJoinEmbedEtcdFail.Delegate(err, "create etcd client for "+cfg.Join)
	}
	defer client.Close()

	listResp, err := etcdutil.ListMembers(client)
	if err != nil {
		return terror.ErrLogMetaJoinEmbedEtcdFail.Delegate(err, "list members of "+cfg.Join)
	}
	for _, m := range listResp.Members {
		if m.Name == cfg.Name {
			return terror.ErrLogMetaJoinEmbedEtcdFail.Generate("duplicate member name " + m.Name)
		}
	}

	addResp, err := etcdutil.AddMember(client, strings.Split(cfg.AdvertisePeerURLs, ","))
	if err != nil {
		return terror.ErrLogMetaJoinEmbedEtcdFail.Delegate(err, "add member "+cfg.AdvertisePeerURLs)
	}

	var ms []string
	for _, m := range addResp.Members {
		name := m.Name
		if m.ID == addResp.Member.ID {
			name = cfg.Name
		}
		if name == "" {
			return terror.ErrLogMetaJoinEmbedEtcdFail.Generate("a member has not completed joining, retry or remove it")
		}
		for _, url := range m.PeerURLs {
			ms = append(ms, name+"="+url)
		}
	}
	cfg.InitialCluster = strings.Join(ms, ",")
	cfg.InitialClusterState = embed.ClusterStateFlagExisting
	return nil
}

func isDataExist(d string) bool {
	dir, err := os.Open(d)
	if err != nil {
		return false
	}
	defer dir.Close()
	names, err := dir.Readdirnames(1)
	if err != nil {
		return false
	}
	return len(names) != 0
}

// newLocalClient builds an etcd client talking to this quorum member's own
// client URLs, for the election and legacystore/etcdimpl collaborators.
func newLocalClient(cfg *Config) (*clientv3.Client, error) {
	client, err := etcdutil.CreateClient(strings.Split(cfg.AdvertiseClientURLs, ","), nil)
	if err != nil {
		return nil, terror.ErrLogMetaEtcdClientCreateFail.Delegate(err)
	}
	return client, nil
}

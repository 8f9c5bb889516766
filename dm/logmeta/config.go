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

// Package logmeta embeds the etcd quorum a LogMeta controller replica
// bootstraps against: the replica's own data directory, the peer list, and
// the leader election that feeds the migration driver's OnLeaderChange.
package logmeta

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.etcd.io/etcd/embed"
	"go.etcd.io/etcd/pkg/types"

	"github.com/pingcap/dm/pkg/terror"
)

// Config is the configuration for a LogMeta controller replica's embedded
// etcd quorum member.
type Config struct {
	flagSet *flag.FlagSet

	Name   string `toml:"name" json:"name"`
	NodeID int32  `toml:"node-id" json:"node-id"`

	DataDir           string `toml:"data-dir" json:"data-dir"`
	PeerURLs          string `toml:"peer-urls" json:"peer-urls"`
	AdvertisePeerURLs string `toml:"advertise-peer-urls" json:"advertise-peer-urls"`
	ClientURLs        string `toml:"client-urls" json:"client-urls"`
	AdvertiseClientURLs string `toml:"advertise-client-urls" json:"advertise-client-urls"`

	InitialCluster      string `toml:"initial-cluster" json:"initial-cluster"`
	InitialClusterState string `toml:"-" json:"-"`
	Join                string `toml:"join" json:"join"`

	ConfigFile string `json:"config-file"`

	printVersion bool
}

// NewConfig creates a Config with its flag set populated. Call Parse to
// fill it in from the command line and/or a config file.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.flagSet = flag.NewFlagSet("migration-driver-logmeta", flag.ContinueOnError)
	fs := cfg.flagSet

	fs.BoolVar(&cfg.printVersion, "V", false, "prints version and exit")
	fs.StringVar(&cfg.ConfigFile, "config", "", "path to config file")
	fs.StringVar(&cfg.Name, "name", "", "this replica's unique name in the quorum")
	fs.Var((*int32Value)(&cfg.NodeID), "node-id", "this replica's numeric node id")
	fs.StringVar(&cfg.DataDir, "data-dir", "", "directory to store the embedded etcd data")
	fs.StringVar(&cfg.PeerURLs, "peer-urls", "http://127.0.0.1:2380", "urls for peer traffic")
	fs.StringVar(&cfg.AdvertisePeerURLs, "advertise-peer-urls", "", "advertised urls for peer traffic")
	fs.StringVar(&cfg.ClientURLs, "client-urls", "http://127.0.0.1:2379", "urls for client traffic")
	fs.StringVar(&cfg.AdvertiseClientURLs, "advertise-client-urls", "", "advertised urls for client traffic")
	fs.StringVar(&cfg.InitialCluster, "initial-cluster", "", "initial cluster configuration for bootstrapping")
	fs.StringVar(&cfg.Join, "join", "", "comma separated client urls of an existing cluster to join")

	return cfg
}

// int32Value adapts an int32 field to flag.Value, the way dm/migration's
// config does for its own --node-id flag.
type int32Value int32

func (v *int32Value) String() string { return strconv.Itoa(int(*v)) }
func (v *int32Value) Set(s string) error {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return err
	}
	*v = int32Value(n)
	return nil
}

// Parse parses flag definitions from the argument list, loading a config
// file first if one is given so command-line flags can still override it.
func (c *Config) Parse(arguments []string) error {
	if err := c.flagSet.Parse(arguments); err != nil {
		return terror.ErrConfigParseFlagSet.Delegate(err, "first pass")
	}
	if c.printVersion {
		return flag.ErrHelp
	}
	if c.ConfigFile != "" {
		if err := c.configFromFile(c.ConfigFile); err != nil {
			return err
		}
	}
	if err := c.flagSet.Parse(arguments); err != nil {
		return terror.ErrConfigParseFlagSet.Delegate(err, "second pass")
	}
	if c.flagSet.NArg() != 0 {
		return terror.ErrConfigParseFlagSet.Generate(fmt.Sprintf("'%s' is an invalid flag", c.flagSet.Arg(0)))
	}
	return c.adjust()
}

func (c *Config) configFromFile(path string) error {
	_, err := toml.DecodeFile(path, c)
	if err != nil {
		return terror.ErrConfigTomlTransform.Delegate(err)
	}
	return nil
}

func (c *Config) adjust() error {
	if c.Name == "" {
		return terror.ErrLogMetaGenEmbedEtcdConfigFail.Generate("name must not be empty")
	}
	if c.NodeID <= 0 {
		return terror.ErrConfigInvalidNodeID.Generate(strconv.Itoa(int(c.NodeID)))
	}
	if c.DataDir == "" {
		c.DataDir = "logmeta." + c.Name
	}
	if c.AdvertisePeerURLs == "" {
		c.AdvertisePeerURLs = c.PeerURLs
	}
	if c.AdvertiseClientURLs == "" {
		c.AdvertiseClientURLs = c.ClientURLs
	}
	if c.InitialCluster == "" {
		c.InitialCluster = fmt.Sprintf("%s=%s", c.Name, c.AdvertisePeerURLs)
		c.InitialClusterState = embed.ClusterStateFlagNew
	} else {
		c.InitialClusterState = embed.ClusterStateFlagExisting
	}
	return nil
}

// genEmbedEtcdConfig translates Config into an etcd embed.Config.
func (c *Config) genEmbedEtcdConfig() (*embed.Config, error) {
	cfg := embed.NewConfig()
	cfg.Name = c.Name
	cfg.Dir = c.DataDir
	cfg.InitialCluster = c.InitialCluster
	cfg.InitialClusterToken = "logmeta-quorum"
	cfg.ClusterState = c.InitialClusterState

	var err error
	cfg.LPUrls, err = parseURLs(c.PeerURLs)
	if err != nil {
		return nil, terror.ErrLogMetaHostPortNotValid.Delegate(err, c.PeerURLs)
	}
	cfg.APUrls, err = parseURLs(c.AdvertisePeerURLs)
	if err != nil {
		return nil, terror.ErrLogMetaHostPortNotValid.Delegate(err, c.AdvertisePeerURLs)
	}
	cfg.LCUrls, err = parseURLs(c.ClientURLs)
	if err != nil {
		return nil, terror.ErrLogMetaHostPortNotValid.Delegate(err, c.ClientURLs)
	}
	cfg.ACUrls, err = parseURLs(c.AdvertiseClientURLs)
	if err != nil {
		return nil, terror.ErrLogMetaHostPortNotValid.Delegate(err, c.AdvertiseClientURLs)
	}
	return cfg, nil
}

func parseURLs(s string) (types.URLs, error) {
	return types.NewURLs(strings.Split(s, ","))
}

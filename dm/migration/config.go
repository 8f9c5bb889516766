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
	"bytes"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pingcap/dm/pkg/terror"
)

// defaultPollInterval is the PollCycle period specified by §4.3.
const defaultPollInterval = time.Second

// defaultCommitDeadline is the deadline MigrationReplay applies to
// RecordConsumer futures, per §4.10/§5.
const defaultCommitDeadline = 5 * time.Minute

// Config holds the migration driver's runtime parameters. It is
// deliberately small: almost everything else about the environment
// (LegacyStore/LogMeta endpoints, credentials) belongs to the
// MigrationClient/RecordConsumer implementations the driver is constructed
// with, not to the driver itself.
type Config struct {
	flagSet *flag.FlagSet

	// NodeID identifies this LogMeta controller replica. Only the replica
	// whose id matches the current LogMeta leader drives the migration.
	NodeID int32 `toml:"node-id"`

	// PollInterval is the PollCycle period. Defaults to 1s, matching §4.3;
	// only ever changed in tests to speed them up.
	PollInterval time.Duration `toml:"poll-interval"`

	// CommitDeadline bounds how long MigrationReplay waits on a
	// RecordConsumer future before treating it as a timeout. Defaults to
	// 5m, matching §4.10/§5.
	CommitDeadline time.Duration `toml:"commit-deadline"`

	ConfigFile string `toml:"-"`
}

// int32Value adapts an *int32 to flag.Value so the flag package can parse
// directly into Config.NodeID without an intermediate int64.
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

// NewConfig returns a Config with defaults applied, ready for Parse.
func NewConfig() *Config {
	cfg := &Config{
		PollInterval:   defaultPollInterval,
		CommitDeadline: defaultCommitDeadline,
	}
	cfg.flagSet = flag.NewFlagSet("migration-driver", flag.ContinueOnError)
	cfg.flagSet.Var((*int32Value)(&cfg.NodeID), "node-id", "this LogMeta controller replica's node id")
	cfg.flagSet.StringVar(&cfg.ConfigFile, "config", "", "path to config file")
	cfg.flagSet.DurationVar(&cfg.PollInterval, "poll-interval", defaultPollInterval, "PollCycle period")
	cfg.flagSet.DurationVar(&cfg.CommitDeadline, "commit-deadline", defaultCommitDeadline, "RecordConsumer future deadline")
	return cfg
}

// Parse parses command-line arguments (and, if -config is given, a TOML
// config file) into cfg, then validates it.
func (c *Config) Parse(args []string) error {
	if err := c.flagSet.Parse(args); err != nil {
		return terror.ErrConfigParseFlagSet.Delegate(err)
	}
	if c.ConfigFile != "" {
		if err := c.configFromFile(c.ConfigFile); err != nil {
			return err
		}
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
	if c.NodeID <= 0 {
		return terror.ErrConfigInvalidNodeID.Generate(strconv.Itoa(int(c.NodeID)))
	}
	if c.PollInterval <= 0 {
		return terror.ErrConfigInvalidDuration.Generate(c.PollInterval.String(), "poll-interval")
	}
	if c.CommitDeadline <= 0 {
		return terror.ErrConfigInvalidDuration.Generate(c.CommitDeadline.String(), "commit-deadline")
	}
	return nil
}

// String implements fmt.Stringer, rendering cfg back to TOML for logging.
func (c *Config) String() string {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Sprintf("<migration.Config: %v>", err)
	}
	return buf.String()
}

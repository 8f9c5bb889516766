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

// Command migration-driver runs one replica of the LegacyStore-to-LogMeta
// migration driver: it bootstraps a LogMeta quorum member, wires it to a
// Driver, and serves Prometheus metrics until signaled to stop.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pingcap/dm/dm/logmeta"
	"github.com/pingcap/dm/dm/migration"
	"github.com/pingcap/dm/dm/migration/image"
	"github.com/pingcap/dm/dm/migration/legacystore/etcdimpl"
	"github.com/pingcap/dm/pkg/log"
)

// defaultMetricsAddr is the address the /metrics endpoint listens on.
const defaultMetricsAddr = ":8262"

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "migration-driver",
		Short: "run the LegacyStore-to-LogMeta migration driver",
		RunE:  run,
	}
	root.Flags().StringVar(&configFile, "config", "", "path to a TOML file with both the driver and logmeta quorum settings")

	if err := root.Execute(); err != nil {
		log.L().Error("migration-driver exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// configArgs builds the argument list each Config.Parse sees: just the
// shared --config flag. Driver and quorum settings are both read from one
// TOML file rather than the command line, so the two independent
// flag.FlagSets never have to agree on each other's flag names.
func configArgs() []string {
	if configFile == "" {
		return nil
	}
	return []string{"--config", configFile}
}

func run(cmd *cobra.Command, _ []string) error {
	driverCfg := migration.NewConfig()
	if err := driverCfg.Parse(configArgs()); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	quorumCfg := logmeta.NewConfig()
	if err := quorumCfg.Parse(configArgs()); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quorum, err := logmeta.NewQuorum(ctx, quorumCfg)
	if err != nil {
		return err
	}
	defer quorum.Close()

	legacyClient := etcdimpl.New(quorum.Client(), "/legacystore")

	registry := prometheus.NewRegistry()
	migration.RegisterMetrics(registry)
	logmeta.RegisterMetrics(registry)

	driver := migration.NewDriver(
		driverCfg,
		legacyClient,
		&unimplementedConsumer{logger: log.L()},
		&unimplementedPropagator{logger: log.L()},
		&alwaysReadyQuorumFeatures{},
		&logFaultHandler{logger: log.L()},
		log.L(),
		func(migration.MetadataPublisher) {
			// A real deployment registers the driver with LogMeta's
			// metadata publisher subscription here; left as a no-op until
			// that integration exists.
		},
	)
	quorum.Register(driver)
	driver.Start(ctx)
	defer driver.Shutdown()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: defaultMetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.L().Error("metrics server exited", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.L().Info("migration-driver received shutdown signal")
	_ = srv.Close()
	return nil
}

// unimplementedConsumer is a placeholder RecordConsumer that logs instead
// of committing to a real LogMeta log, until this binary is wired to one.
type unimplementedConsumer struct {
	logger log.Logger
}

func (c *unimplementedConsumer) BeginMigration(ctx context.Context) error {
	c.logger.Info("migration replay begin (no LogMeta log wired)")
	return nil
}

func (c *unimplementedConsumer) AcceptBatch(batch migration.MetadataRecordBatch) <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}

func (c *unimplementedConsumer) CompleteMigration() <-chan migration.CompleteMigrationResult {
	ch := make(chan migration.CompleteMigrationResult, 1)
	ch <- migration.CompleteMigrationResult{}
	return ch
}

func (c *unimplementedConsumer) AbortMigration(ctx context.Context, reason error) {
	c.logger.Warn("migration replay aborted", zap.Error(reason))
}

// unimplementedPropagator is a placeholder Propagator that logs instead of
// sending real legacy-protocol broker RPCs.
type unimplementedPropagator struct {
	logger log.Logger
}

func (p *unimplementedPropagator) SetMetadataVersion(ctx context.Context, version string) error {
	p.logger.Info("would set metadata version", zap.String("version", version))
	return nil
}

func (p *unimplementedPropagator) SendRPCsToBrokersFromImage(ctx context.Context, img image.MetadataImage, legacyControllerEpoch int32) error {
	p.logger.Info("would send RPCs from image", zap.Int32("legacyControllerEpoch", legacyControllerEpoch))
	return nil
}

func (p *unimplementedPropagator) SendRPCsToBrokersFromDelta(ctx context.Context, delta *image.MetadataDelta, img image.MetadataImage, legacyControllerEpoch int32) error {
	p.logger.Info("would send RPCs from delta", zap.Int32("legacyControllerEpoch", legacyControllerEpoch))
	return nil
}

// alwaysReadyQuorumFeatures reports every controller peer as migration
// ready. A real deployment probes actual peer feature flags here.
type alwaysReadyQuorumFeatures struct{}

func (alwaysReadyQuorumFeatures) ReasonAllControllersMigrationNotReady(ctx context.Context) (string, bool) {
	return "", false
}

// logFaultHandler reports faults via structured logging. A real deployment
// might also page or restart the process on high-severity faults.
type logFaultHandler struct {
	logger log.Logger
}

func (h *logFaultHandler) HandleFault(msg string, cause error) {
	h.logger.Error(msg, zap.Error(cause))
}

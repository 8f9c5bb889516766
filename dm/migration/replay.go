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
	"context"

	"github.com/pingcap/failpoint"
	"go.uber.org/zap"

	"github.com/pingcap/dm/pkg/utils"
)

// handleMigrateMetadata implements MigrationReplay (§4.10): it drains every
// pre-migration LegacyStore record through RecordConsumer, bounding each
// future by cfg.CommitDeadline, and only transitions to
// StateKRaftControllerToBrokerComm once LogMeta confirms the migration
// record committed. Any failure aborts the in-flight RecordConsumer
// migration and is reported through the normal exception policy so the
// next poll retries from scratch.
func (d *Driver) handleMigrateMetadata(ctx context.Context) error {
	if err := d.consumer.BeginMigration(ctx); err != nil {
		return err
	}

	var batches, records int
	var abortErr error
	batchSink := func(batch MetadataRecordBatch) error {
		failpoint.Inject("migrationReplayBatchError", func() {
			abortErr = context.DeadlineExceeded
		})
		if abortErr != nil {
			return abortErr
		}
		done := d.consumer.AcceptBatch(batch)
		if err := utils.WaitWithLogging(ctx, d.logger, "migration batch commit", done, d.cfg.CommitDeadline); err != nil {
			if err == context.DeadlineExceeded {
				err = errCommitTimeout("migration batch commit", d.cfg.CommitDeadline)
			}
			abortErr = err
			return err
		}
		batches++
		records += batch.Size()
		replayBatches.Inc()
		return nil
	}

	var brokerIDs []int32
	brokerSink := func(id int32) error {
		brokerIDs = append(brokerIDs, id)
		return nil
	}

	if err := d.client.ReadAllMetadata(ctx, batchSink, brokerSink); err != nil {
		if abortErr == nil {
			abortErr = err
		}
		d.consumer.AbortMigration(ctx, abortErr)
		return abortErr
	}

	done := d.consumer.CompleteMigration()
	var result CompleteMigrationResult
	waitErr := make(chan error, 1)
	go func() {
		select {
		case r := <-done:
			result = r
			waitErr <- nil
		case <-ctx.Done():
			waitErr <- ctx.Err()
		}
	}()
	if err := utils.WaitWithLogging(ctx, d.logger, "migration completion commit", waitErr, d.cfg.CommitDeadline); err != nil {
		if err == context.DeadlineExceeded {
			err = errCommitTimeout("migration completion commit", d.cfg.CommitDeadline)
		}
		d.consumer.AbortMigration(ctx, err)
		return err
	}

	d.logger.Info("legacy store metadata replay complete",
		zap.Int("batches", batches), zap.Int("records", records), zap.Int("brokers", len(brokerIDs)),
		zap.Int64("offset", result.Offset), zap.Int32("epoch", result.Epoch))

	if err := d.apply(ctx, "finish", func(ctx context.Context, s LeadershipState) (LeadershipState, error) {
		s = s.WithReplayedOffsetEpoch(result.Offset, result.Epoch)
		s = s.WithMigrationComplete()
		return d.client.SetMigrationRecoveryState(ctx, s)
	}); err != nil {
		return err
	}

	return d.transition(StateKRaftControllerToBrokerComm)
}

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

// Package utils holds small generic helpers shared across the migration
// driver that don't deserve their own package.
package utils

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pingcap/dm/pkg/log"
)

// WaitSomething polls isReady up to backoff times, waiting waitTime between
// each poll, until it returns true or the retry budget is exhausted.
func WaitSomething(backoff int, waitTime time.Duration, isReady func() bool) bool {
	for i := 0; i < backoff; i++ {
		if isReady() {
			return true
		}
		time.Sleep(waitTime)
	}
	return false
}

// IsContextCanceledError returns true if err is exactly context.Canceled.
// It intentionally does not unwrap, mirroring the call sites that only care
// about the local context they created, not a nested one.
func IsContextCanceledError(err error) bool {
	return err == context.Canceled
}

// WaitWithLogging waits for done to fire or deadline to elapse, logging an
// info line every fifth of deadline while it is still waiting. It is used by
// MigrationReplay to wait on RecordConsumer futures without hanging the
// event loop's single worker goroutine forever.
func WaitWithLogging(ctx context.Context, logger log.Logger, what string, done <-chan error, deadline time.Duration) error {
	ticker := time.NewTicker(deadline / 5)
	defer ticker.Stop()
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()

	start := time.Now()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			logger.Info("still waiting", zap.String("what", what), zap.Duration("elapsed", time.Since(start)))
		case <-timeout.C:
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

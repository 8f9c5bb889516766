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

// Package retry implements a finite-retry strategy: transient errors are
// retried a bounded number of times with a
// configurable backoff, while errors classified as non-retryable (auth
// failures, version mismatches) return to the caller immediately.
package retry

import (
	"time"

	tcontext "github.com/pingcap/dm/pkg/context"
)

// Speed represents the enum of retry backoff speed.
type Speed uint8

// Backoff speeds.
const (
	// Slow doubles the wait time on every retry.
	Slow Speed = iota + 1
	// Stable waits FirstRetryDuration between every retry.
	Stable
)

// Strategy defines a retry strategy usable by any caller that wants to
// retry an operation a bounded number of times.
type Strategy interface {
	// FiniteRetryStrategy retries `retryCount` times when operateFn fails.
	// It waits `firstRetryDuration` before the first retry, and the rest of
	// the waits follow retrySpeed.
	FiniteRetryStrategy(ctx *tcontext.Context, retryCount int, firstRetryDuration time.Duration, retrySpeed Speed,
		operateFn func(*tcontext.Context, int) (interface{}, error),
		retryFn func(int, error) bool) (interface{}, error)
}

// Params configures a single DefaultRetryStrategy call.
type Params struct {
	RetryCount         int
	FirstRetryDuration time.Duration
	RetryInterval      Speed
	IsRetryableFn      func(retryCount int, err error) bool
}

// FiniteRetryStrategy runs operations through DefaultRetryStrategy. It has
// no FiniteRetryStrategy method, so it does not satisfy the Strategy
// interface.
type FiniteRetryStrategy struct{}

// DefaultRetryStrategy runs operateFn, retrying up to params.RetryCount
// times while the failure is retryable. It returns the last result/error
// pair along with how many retries were actually attempted.
func (*FiniteRetryStrategy) DefaultRetryStrategy(
	ctx *tcontext.Context,
	params Params,
	operateFn func(*tcontext.Context, int) (interface{}, error),
) (interface{}, int, error) {
	var (
		result interface{}
		err    error
		wait   = params.FirstRetryDuration
	)

	for i := 0; i <= params.RetryCount; i++ {
		result, err = operateFn(ctx, i)
		if err == nil {
			return result, i, nil
		}
		if !IsRetryableError(err) {
			return result, i, err
		}
		if params.IsRetryableFn != nil && !params.IsRetryableFn(i, err) {
			return result, i, err
		}
		if i == params.RetryCount {
			break
		}

		select {
		case <-ctx.GetContext().Done():
			return result, i, err
		case <-time.After(wait):
		}
		if params.RetryInterval == Slow {
			wait *= 2
		}
	}
	return result, params.RetryCount, err
}

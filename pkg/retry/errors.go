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

package retry

import (
	"github.com/pingcap/errors"

	"github.com/pingcap/dm/pkg/terror"
)

// IsRetryableError tells whether DefaultRetryStrategy may retry err, as
// opposed to returning it to the caller immediately. Authentication failures and version
// mismatches are never retryable: retrying them wastes a poll cycle on a
// failure that will not resolve itself.
func IsRetryableError(err error) bool {
	cause := errors.Cause(err)
	te, ok := cause.(*terror.Error)
	if !ok {
		return true
	}
	switch te.Code() {
	case terror.ErrLegacyStoreAuthFail.Code(), terror.ErrLegacyStoreVersionMismatch.Code():
		return false
	default:
		return true
	}
}

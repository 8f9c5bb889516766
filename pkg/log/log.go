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

// Package log wraps github.com/pingcap/log; callers still build their
// fields with go.uber.org/zap. It adds the couple of helpers (ErrorFilterContextCanceled,
// ShortError, WithFields) that show up on every hot path of the migration driver.
package log

import (
	"context"
	"strings"
	"sync"

	pclog "github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the log configuration, re-using pingcap/log's Adjust() defaults
// (json/text format switch, file rotation, sampling).
type Config = pclog.Config

// Logger wraps *zap.Logger, adding a couple of convenience methods used
// throughout the driver's event handlers.
type Logger struct {
	*zap.Logger
}

var (
	mu         sync.RWMutex
	appLogger  = Logger{Logger: pclog.L()}
	appProps   *pclog.ZapProperties
)

// InitLogger initializes the package-level logger from cfg. It should be
// called once during process bootstrap, before any migration driver
// component starts logging.
func InitLogger(cfg *Config) error {
	logger, props, err := pclog.InitLogger(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	appLogger = Logger{Logger: logger}
	appProps = props
	mu.Unlock()
	pclog.ReplaceGlobals(logger, props)
	return nil
}

// L returns the current global Logger.
func L() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return appLogger
}

// SetLevel changes the level of the global logger dynamically.
func SetLevel(level zapcore.Level) {
	mu.RLock()
	props := appProps
	mu.RUnlock()
	if props != nil {
		props.Level.SetLevel(level)
	}
}

// Props exposes the ZapProperties installed by InitLogger, mainly for tests
// that want to assert on the effective level.
func Props() *pclog.ZapProperties {
	mu.RLock()
	defer mu.RUnlock()
	return appProps
}

// With returns a child of the global logger carrying the given fields, e.g.
// a per-component logger: log.With(zap.String("component", "migration driver")).
func With(fields ...zap.Field) Logger {
	return Logger{Logger: L().Logger.With(fields...)}
}

// WithFields is an alias of With kept for call sites that read more
// naturally with a plural name, e.g. building a per-lock or per-node logger.
func (l Logger) WithFields(fields ...zap.Field) Logger {
	return Logger{Logger: l.Logger.With(fields...)}
}

// ErrorFilterContextCanceled logs at Error level unless the wrapped cause is
// context.Canceled, in which case it is dropped entirely. Shutdown paths
// cancel contexts routinely and that should not show up as an error.
func (l Logger) ErrorFilterContextCanceled(msg string, fields ...zap.Field) {
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok && isContextCanceled(err) {
				return
			}
		}
		// ShortError renders the error as a plain "error" string field.
		if f.Type == zapcore.StringType && f.Key == "error" && strings.HasSuffix(f.String, context.Canceled.Error()) {
			return
		}
	}
	l.Logger.Error(msg, fields...)
}

func isContextCanceled(err error) bool {
	for err != nil {
		if err == context.Canceled {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			causer, ok2 := err.(interface{ Cause() error })
			if !ok2 {
				return false
			}
			err = causer.Cause()
			continue
		}
		err = u.Unwrap()
	}
	return false
}

// ShortError constructs a zap.Field for an error without its stack trace,
// which pingcap/errors otherwise attaches and which floods multi-line logs.
func ShortError(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", err.Error())
}

// Copyright 2024 Silo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGetLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, getLevel(&LogConfig{Level: "debug"}))
	require.Equal(t, zapcore.InfoLevel, getLevel(&LogConfig{Level: "info"}))
	require.Equal(t, zapcore.WarnLevel, getLevel(&LogConfig{Level: "warn"}))
	require.Equal(t, zapcore.ErrorLevel, getLevel(&LogConfig{Level: "error"}))
	require.Equal(t, zapcore.InfoLevel, getLevel(&LogConfig{Level: "no-such-level"}))
}

func TestGetEncoder(t *testing.T) {
	require.NotNil(t, getEncoder(&LogConfig{Format: "json"}))
	require.NotNil(t, getEncoder(&LogConfig{Format: "console"}))
	require.NotNil(t, getEncoder(&LogConfig{}))
}

func TestGetSyncer(t *testing.T) {
	require.NotNil(t, getSyncer(&LogConfig{}))
	fn := filepath.Join(t.TempDir(), "silo.log")
	require.NotNil(t, getSyncer(&LogConfig{Filename: fn, MaxSize: 64}))
}

func TestSetupLogger(t *testing.T) {
	SetupLogger(&LogConfig{Level: "debug", Format: "json"})
	require.NotNil(t, GetGlobalLogger())
	Infof("logger up, level %s", "debug")
	Debug("direct field call")
	SetupLogger(&LogConfig{Level: "info", Format: "console"})
}

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

package serr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	err := NewNotSupportedNoCtx("window_funnel does not support type 'FLOAT64'")
	require.Equal(t, ErrNotSupported, err.ErrorCode())
	require.Equal(t, "not supported: window_funnel does not support type 'FLOAT64'", err.Error())

	require.True(t, IsErrCode(err, ErrNotSupported))
	require.False(t, IsErrCode(err, ErrInvalidInput))
	require.True(t, IsErrCode(nil, Ok))
	require.False(t, IsErrCode(errors.New("plain"), ErrInternal))
}

func TestNewWithoutArgs(t *testing.T) {
	err := NewOOMNoCtx()
	require.Equal(t, "error: out of memory", err.Error())
}

func TestConvertGoError(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, ConvertGoError(ctx, nil))

	coded := NewCorruptedStateNoCtx("truncated event list")
	require.Equal(t, error(coded), ConvertGoError(ctx, coded))

	converted := ConvertGoError(ctx, errors.New("boom"))
	require.True(t, IsErrCode(converted, ErrInternal))
}

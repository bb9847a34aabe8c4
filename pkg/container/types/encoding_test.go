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

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeSliceRoundTrip(t *testing.T) {
	vs := []uint64{1, 1 << 20, 1 << 40, 0, ^uint64(0)}
	bs := EncodeSlice(vs)
	require.Equal(t, len(vs)*8, len(bs))
	got := DecodeSlice[uint64](bs)
	require.Equal(t, vs, got)

	require.Nil(t, EncodeSlice([]uint32(nil)))
	require.Nil(t, DecodeSlice[uint32](nil))
}

func TestEncodeFixed(t *testing.T) {
	v := uint32(0xDEADBEEF)
	bs := EncodeFixed(v)
	require.Equal(t, 4, len(bs))
	require.Equal(t, v, DecodeFixed[uint32](bs))

	u := uint8(7)
	require.Equal(t, u, DecodeFixed[uint8](EncodeFixed(u)))
}

func TestEncodeType(t *testing.T) {
	typ := T_uint64.ToType()
	got := DecodeType(EncodeType(&typ))
	require.Equal(t, typ, got)
}

func TestTypeSize(t *testing.T) {
	require.Equal(t, 1, T_uint8.TypeSize())
	require.Equal(t, 2, T_uint16.TypeSize())
	require.Equal(t, 4, T_uint32.TypeSize())
	require.Equal(t, 8, T_uint64.TypeSize())
	require.Equal(t, 8, T_float64.TypeSize())
	require.Equal(t, 0, T_any.TypeSize())
}

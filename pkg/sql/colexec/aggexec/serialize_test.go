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

package aggexec

import (
	"testing"

	"github.com/silodb/silo/pkg/common/mpool"
	"github.com/silodb/silo/pkg/common/serr"
	"github.com/silodb/silo/pkg/container/types"
	"github.com/silodb/silo/pkg/container/vector"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalWindowFunnel(t *testing.T) {
	mp := mpool.MustNewZero()
	mg := NewSimpleAggMemoryManager(mp)

	src := makeFunnelExec(t, mg, 3)
	require.NoError(t, src.GroupGrow(2))

	vecs := makeFunnelInput(t, mp,
		[]uint64{9, 0, 5},
		nil,
		[]bool{false, true, false},
		[]bool{false, false, true},
		[]bool{true, false, false})
	require.NoError(t, src.BulkFill(0, vecs))

	data, err := MarshalAggFuncExec(src)
	require.NoError(t, err)

	dst, err := UnmarshalAggFuncExec(mg, data)
	require.NoError(t, err)
	require.Equal(t, src.AggID(), dst.AggID())

	srcInner := src.(*windowFunnelExec[uint64])
	dstInner := dst.(*windowFunnelExec[uint64])
	require.Equal(t, srcInner.groups[0].events, dstInner.groups[0].events)
	require.Equal(t, srcInner.groups[0].sorted, dstInner.groups[0].sorted)
	require.Equal(t, 0, dstInner.groups[1].size())

	res, err := dst.Flush()
	require.NoError(t, err)
	got := vector.MustFixedCol[uint8](res)
	require.Equal(t, uint8(3), got[0])
	require.Equal(t, uint8(0), got[1])

	res.Free(mp)
	freeVectors(mp, vecs)
	src.Free()
	dst.Free()
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestMarshalRoundTripThenMerge(t *testing.T) {
	mp := mpool.MustNewZero()
	mg := NewSimpleAggMemoryManager(mp)

	a := makeFunnelExec(t, mg, 2)
	require.NoError(t, a.GroupGrow(1))
	va := makeFunnelInput(t, mp, []uint64{0}, nil, []bool{true}, []bool{false})
	require.NoError(t, a.BulkFill(0, va))

	b := makeFunnelExec(t, mg, 2)
	require.NoError(t, b.GroupGrow(1))
	vb := makeFunnelInput(t, mp, []uint64{4}, nil, []bool{false}, []bool{true})
	require.NoError(t, b.BulkFill(0, vb))

	data, err := MarshalAggFuncExec(b)
	require.NoError(t, err)
	remote, err := UnmarshalAggFuncExec(mg, data)
	require.NoError(t, err)

	require.NoError(t, a.BatchMerge(remote, 0, []uint64{1}))

	res, err := a.Flush()
	require.NoError(t, err)
	require.Equal(t, uint8(2), vector.MustFixedCol[uint8](res)[0])

	res.Free(mp)
	freeVectors(mp, va)
	freeVectors(mp, vb)
	a.Free()
	b.Free()
	remote.Free()
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestUnmarshalCorruptedEnvelope(t *testing.T) {
	mp := mpool.MustNewZero()
	mg := NewSimpleAggMemoryManager(mp)

	exec := makeFunnelExec(t, mg, 2)
	require.NoError(t, exec.GroupGrow(1))
	data, err := MarshalAggFuncExec(exec)
	require.NoError(t, err)
	exec.Free()

	t.Run("too short", func(t *testing.T) {
		_, err := UnmarshalAggFuncExec(mg, data[:5])
		require.True(t, serr.IsErrCode(err, serr.ErrCorruptedState))
	})

	t.Run("truncated tail", func(t *testing.T) {
		_, err := UnmarshalAggFuncExec(mg, data[:len(data)-2])
		require.True(t, serr.IsErrCode(err, serr.ErrCorruptedState))
	})

	t.Run("trailing garbage", func(t *testing.T) {
		_, err := UnmarshalAggFuncExec(mg, append(append([]byte{}, data...), 0xFF))
		require.True(t, serr.IsErrCode(err, serr.ErrCorruptedState))
	})

	t.Run("huge group count", func(t *testing.T) {
		// With zero groups the envelope ends with the group-count u32.
		empty, err := marshalExecSections(multiAggInfo{
			aggID:    AggIdOfWindowFunnel,
			argTypes: []types.Type{types.T_uint64.ToType(), types.T_bool.ToType()},
			retType:  types.T_uint8.ToType(),
		}, nil, nil)
		require.NoError(t, err)
		bad := append([]byte{}, empty...)
		for i := len(bad) - 4; i < len(bad); i++ {
			bad[i] = 0xFF
		}
		_, err = UnmarshalAggFuncExec(mg, bad)
		require.True(t, serr.IsErrCode(err, serr.ErrCorruptedState))
	})

	t.Run("bad arg types reach binding", func(t *testing.T) {
		bad, err := marshalExecSections(multiAggInfo{
			aggID:    AggIdOfWindowFunnel,
			argTypes: []types.Type{types.T_float64.ToType(), types.T_bool.ToType()},
			retType:  types.T_uint8.ToType(),
		}, nil, nil)
		require.NoError(t, err)
		_, err = UnmarshalAggFuncExec(mg, bad)
		require.True(t, serr.IsErrCode(err, serr.ErrNotSupported))
	})
}

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

package mergegroup

import (
	"testing"

	"github.com/panjf2000/ants/v2"
	"github.com/silodb/silo/pkg/common/mpool"
	"github.com/silodb/silo/pkg/container/types"
	"github.com/silodb/silo/pkg/container/vector"
	"github.com/silodb/silo/pkg/sql/colexec/aggexec"
	"github.com/stretchr/testify/require"
)

// onePartial builds a one-group window_funnel executor holding a
// single event at ts firing stage.
func onePartial(t *testing.T, mg aggexec.AggMemoryManager, mp *mpool.MPool,
	steps int, ts uint64, stage int) aggexec.AggFuncExec {
	argTypes := []types.Type{types.T_uint64.ToType()}
	for i := 0; i < steps; i++ {
		argTypes = append(argTypes, types.T_bool.ToType())
	}
	exec, err := aggexec.MakeAgg(mg, aggexec.AggIdOfWindowFunnel, false, argTypes...)
	require.NoError(t, err)
	require.NoError(t, exec.GroupGrow(1))

	vecs := make([]*vector.Vector, 0, steps+1)
	tsVec := vector.NewVec(types.T_uint64.ToType())
	require.NoError(t, vector.AppendFixed(tsVec, ts, false, mp))
	vecs = append(vecs, tsVec)
	for i := 1; i <= steps; i++ {
		v := vector.NewVec(types.T_bool.ToType())
		require.NoError(t, vector.AppendFixed(v, i == stage, false, mp))
		vecs = append(vecs, v)
	}
	require.NoError(t, exec.BulkFill(0, vecs))
	for _, v := range vecs {
		v.Free(mp)
	}
	return exec
}

func TestCombine(t *testing.T) {
	mp := mpool.MustNewZero()
	mg := aggexec.NewSimpleAggMemoryManager(mp)

	dst := onePartial(t, mg, mp, 3, 0, 1)
	s2 := onePartial(t, mg, mp, 3, 5, 2)
	s3 := onePartial(t, mg, mp, 3, 9, 3)

	require.NoError(t, Combine(dst, 1, s2, s3))

	res, err := dst.Flush()
	require.NoError(t, err)
	require.Equal(t, uint8(3), vector.MustFixedCol[uint8](res)[0])

	res.Free(mp)
	dst.Free()
	s2.Free()
	s3.Free()
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestCombineParallel(t *testing.T) {
	mp := mpool.MustNewZero()
	mg := aggexec.NewSimpleAggMemoryManager(mp)

	// 9 partials across 3 stages, any reduction order must reach 3.
	execs := make([]aggexec.AggFuncExec, 0, 9)
	for i := 0; i < 9; i++ {
		execs = append(execs, onePartial(t, mg, mp, 3, uint64(i), i%3+1))
	}

	combined, err := CombineParallel(execs, 1, 4)
	require.NoError(t, err)

	res, err := combined.Flush()
	require.NoError(t, err)
	require.Equal(t, uint8(3), vector.MustFixedCol[uint8](res)[0])

	res.Free(mp)
	for _, exec := range execs {
		exec.Free()
	}
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestCombineParallelEdge(t *testing.T) {
	mp := mpool.MustNewZero()
	mg := aggexec.NewSimpleAggMemoryManager(mp)

	_, err := CombineParallel(nil, 1, 2)
	require.Error(t, err)

	single := onePartial(t, mg, mp, 2, 0, 1)
	got, err := CombineParallel([]aggexec.AggFuncExec{single}, 1, 2)
	require.NoError(t, err)
	require.Equal(t, single, got)
	single.Free()
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestReduceRoundSubmitFailure(t *testing.T) {
	mp := mpool.MustNewZero()
	mg := aggexec.NewSimpleAggMemoryManager(mp)

	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	require.NoError(t, err)
	defer pool.Release()

	// Park the only worker so every submit in the round is rejected.
	gate := make(chan struct{})
	require.NoError(t, pool.Submit(func() { <-gate }))

	a := onePartial(t, mg, mp, 2, 0, 1)
	b := onePartial(t, mg, mp, 2, 4, 2)

	_, err = reduceRound(pool, []aggexec.AggFuncExec{a, b}, 1)
	require.Error(t, err)
	close(gate)

	// The rejected pair was never merged, a is back in the caller's
	// hands with only its own event.
	res, err := a.Flush()
	require.NoError(t, err)
	require.Equal(t, uint8(1), vector.MustFixedCol[uint8](res)[0])

	res.Free(mp)
	a.Free()
	b.Free()
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestCombineEncoded(t *testing.T) {
	mp := mpool.MustNewZero()
	mg := aggexec.NewSimpleAggMemoryManager(mp)

	dst := onePartial(t, mg, mp, 2, 0, 1)
	remote := onePartial(t, mg, mp, 2, 4, 2)
	blob, err := aggexec.MarshalAggFuncExec(remote)
	require.NoError(t, err)
	remote.Free()

	require.NoError(t, CombineEncoded(mg, dst, 1, blob))

	res, err := dst.Flush()
	require.NoError(t, err)
	require.Equal(t, uint8(2), vector.MustFixedCol[uint8](res)[0])

	t.Run("corrupted blob fails", func(t *testing.T) {
		d2 := onePartial(t, mg, mp, 2, 0, 1)
		require.Error(t, CombineEncoded(mg, d2, 1, blob[:3]))
		d2.Free()
	})

	res.Free(mp)
	dst.Free()
	require.Equal(t, int64(0), mp.CurrNB())
}

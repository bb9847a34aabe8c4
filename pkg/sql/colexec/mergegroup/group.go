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

// Package mergegroup folds partial aggregation states produced by
// independent workers into one executor before the final flush.
package mergegroup

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/silodb/silo/pkg/common/serr"
	"github.com/silodb/silo/pkg/logutil"
	"github.com/silodb/silo/pkg/sql/colexec/aggexec"
)

// Combine folds every src executor into dst, group by group. All
// executors must have the same n groups, with group i of every src
// belonging to group i of dst.
func Combine(dst aggexec.AggFuncExec, n int, srcs ...aggexec.AggFuncExec) error {
	groups := make([]uint64, n)
	for i := range groups {
		groups[i] = uint64(i + 1)
	}
	for _, src := range srcs {
		if err := dst.BatchMerge(src, 0, groups); err != nil {
			logutil.Errorf("merge of partial agg states failed: %s", err)
			return err
		}
	}
	return nil
}

// CombineParallel folds execs by pairwise tree reduction on a worker
// pool and returns the surviving executor, which is execs[0]. Each
// round merges disjoint pairs concurrently, so no executor is touched
// by two workers at once. parallel <= 0 picks the CPU count.
func CombineParallel(execs []aggexec.AggFuncExec, n int, parallel int) (aggexec.AggFuncExec, error) {
	if len(execs) == 0 {
		return nil, serr.NewInvalidInputNoCtx("no partial agg states to combine")
	}
	if len(execs) == 1 {
		return execs[0], nil
	}
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}

	pool, err := ants.NewPool(parallel)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	live := execs
	for len(live) > 1 {
		next, err := reduceRound(pool, live, n)
		if err != nil {
			return nil, err
		}
		live = next
	}
	return live[0], nil
}

// reduceRound merges disjoint pairs of live executors concurrently and
// returns the survivors. It never returns while a submitted merge is
// still running, even when a later submit fails, so the caller regains
// exclusive ownership of every executor.
func reduceRound(pool *ants.Pool, live []aggexec.AggFuncExec, n int) ([]aggexec.AggFuncExec, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	next := make([]aggexec.AggFuncExec, 0, (len(live)+1)/2)
	for i := 0; i < len(live); i += 2 {
		if i+1 == len(live) {
			next = append(next, live[i])
			break
		}
		dst, src := live[i], live[i+1]
		next = append(next, dst)

		wg.Add(1)
		if submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := Combine(dst, n, src); err != nil {
				setErr(err)
			}
		}); submitErr != nil {
			wg.Done()
			setErr(submitErr)
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return next, nil
}

// CombineEncoded rebuilds transmitted partial states and folds them
// into dst. This is the receive path of a distributed aggregation.
func CombineEncoded(mg aggexec.AggMemoryManager, dst aggexec.AggFuncExec, n int, blobs ...[]byte) error {
	for _, blob := range blobs {
		src, err := aggexec.UnmarshalAggFuncExec(mg, blob)
		if err != nil {
			logutil.Errorf("decode of partial agg state failed: %s", err)
			return err
		}
		err = Combine(dst, n, src)
		src.Free()
		if err != nil {
			return err
		}
	}
	return nil
}

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

// Package aggexec provides the executors of the aggregation functions.
//
// An executor owns one state per group. The hosting operator drives it
// through the partial-aggregation protocol: GroupGrow to declare groups,
// the Fill family to accumulate rows, Merge to fold partial states from
// other executors, and Flush to resolve the final column. Marshal and
// unmarshal move a whole executor across threads or nodes as bytes.
package aggexec

import (
	"github.com/silodb/silo/pkg/common/mpool"
	"github.com/silodb/silo/pkg/container/types"
	"github.com/silodb/silo/pkg/container/vector"
)

const (
	// GroupNotMatched marks a row that belongs to no group in the
	// groups slice passed to BatchFill and BatchMerge. Matched rows
	// carry groupIndex+1.
	GroupNotMatched = 0
)

// AggMemoryManager hands out the memory pool that backs executor
// results and states.
type AggMemoryManager interface {
	Mp() *mpool.MPool
}

type SimpleAggMemoryManager struct {
	mp *mpool.MPool
}

func NewSimpleAggMemoryManager(mp *mpool.MPool) AggMemoryManager {
	return SimpleAggMemoryManager{mp: mp}
}

func (m SimpleAggMemoryManager) Mp() *mpool.MPool {
	return m.mp
}

// AggFuncExec is the common interface of the aggregation executors.
//
// Row accumulation comes in three shapes.
// Fill adds one row to one group. BulkFill adds a whole batch to one
// group. BatchFill adds rows starting at offset, routing row i to
// group groups[i+offset]-1, skipping GroupNotMatched rows.
type AggFuncExec interface {
	AggID() int64
	IsDistinct() bool

	// TypesInfo returns the argument types and the result type.
	TypesInfo() ([]types.Type, types.Type)

	// GroupGrow appends more empty groups.
	GroupGrow(more int) error

	Fill(groupIndex int, row int, vectors []*vector.Vector) error
	BulkFill(groupIndex int, vectors []*vector.Vector) error
	BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error

	// Merge folds next's group groupIdx2 into this executor's group
	// groupIdx1. next's state for that group is disposable afterward.
	Merge(next AggFuncExec, groupIdx1, groupIdx2 int) error
	// BatchMerge folds next's group i+offset into group groups[i]-1
	// for each i, skipping GroupNotMatched entries.
	BatchMerge(next AggFuncExec, offset int, groups []uint64) error

	// Flush resolves all groups into the result vector. The executor
	// must not be filled or merged into afterward.
	Flush() (*vector.Vector, error)

	Free()

	marshal() ([]byte, error)
	unmarshal(mp *mpool.MPool, result []byte, groups [][]byte) error
}

// multiAggInfo describes one executor instance: which function it is
// and the types it was bound to.
type multiAggInfo struct {
	aggID    int64
	distinct bool
	argTypes []types.Type
	retType  types.Type
}

func (info multiAggInfo) AggID() int64 {
	return info.aggID
}

func (info multiAggInfo) IsDistinct() bool {
	return info.distinct
}

func (info multiAggInfo) TypesInfo() ([]types.Type, types.Type) {
	return info.argTypes, info.retType
}

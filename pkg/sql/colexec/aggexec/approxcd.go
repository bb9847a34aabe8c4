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
	"github.com/axiomhq/hyperloglog"
	"github.com/silodb/silo/pkg/common/mpool"
	"github.com/silodb/silo/pkg/common/serr"
	"github.com/silodb/silo/pkg/container/vector"
)

// approxCountExec estimates the distinct count of one column with one
// hyperloglog sketch per group.
type approxCountExec struct {
	multiAggInfo

	mg  AggMemoryManager
	ret aggFuncResult[uint64]
	sks []*hyperloglog.Sketch
}

func newApproxCountExec(mg AggMemoryManager, info multiAggInfo) AggFuncExec {
	return &approxCountExec{
		multiAggInfo: info,
		mg:           mg,
		ret:          initFixedAggFuncResult[uint64](mg, info.retType, false),
	}
}

func (exec *approxCountExec) GroupGrow(more int) error {
	if err := exec.ret.grows(more); err != nil {
		return err
	}
	for i := 0; i < more; i++ {
		exec.sks = append(exec.sks, hyperloglog.New())
	}
	return nil
}

func (exec *approxCountExec) Fill(groupIndex int, row int, vectors []*vector.Vector) error {
	v := vectors[0]
	if v.IsNull(uint64(row)) {
		return nil
	}
	exec.sks[groupIndex].Insert(v.GetRawBytesAt(row))
	exec.ret.setGroupNotEmpty(groupIndex)
	return nil
}

func (exec *approxCountExec) BulkFill(groupIndex int, vectors []*vector.Vector) error {
	length := vectors[0].Length()
	for row := 0; row < length; row++ {
		if err := exec.Fill(groupIndex, row, vectors); err != nil {
			return err
		}
	}
	return nil
}

func (exec *approxCountExec) BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
	for i, group := range groups {
		if group == GroupNotMatched {
			continue
		}
		if err := exec.Fill(int(group-1), i+offset, vectors); err != nil {
			return err
		}
	}
	return nil
}

func (exec *approxCountExec) Merge(next AggFuncExec, groupIdx1, groupIdx2 int) error {
	other, ok := next.(*approxCountExec)
	if !ok {
		return serr.NewInternalNoCtx("approx_count_distinct merge with mismatched executor")
	}
	if err := exec.sks[groupIdx1].Merge(other.sks[groupIdx2]); err != nil {
		return serr.NewInternalNoCtx("sketch merge failed: %s", err)
	}
	if !other.ret.groupIsEmpty(groupIdx2) {
		exec.ret.setGroupNotEmpty(groupIdx1)
	}
	return nil
}

func (exec *approxCountExec) BatchMerge(next AggFuncExec, offset int, groups []uint64) error {
	for i, group := range groups {
		if group == GroupNotMatched {
			continue
		}
		if err := exec.Merge(next, int(group-1), i+offset); err != nil {
			return err
		}
	}
	return nil
}

func (exec *approxCountExec) Flush() (*vector.Vector, error) {
	for i, sk := range exec.sks {
		exec.ret.aggSet(i, sk.Estimate())
	}
	return exec.ret.flush(), nil
}

func (exec *approxCountExec) Free() {
	exec.ret.free()
	exec.sks = nil
}

func (exec *approxCountExec) marshal() ([]byte, error) {
	result, err := exec.ret.marshal()
	if err != nil {
		return nil, err
	}
	groups := make([][]byte, len(exec.sks))
	for i, sk := range exec.sks {
		data, err := sk.MarshalBinary()
		if err != nil {
			return nil, err
		}
		groups[i] = data
	}
	return marshalExecSections(exec.multiAggInfo, result, groups)
}

func (exec *approxCountExec) unmarshal(mp *mpool.MPool, result []byte, groups [][]byte) error {
	if err := exec.ret.unmarshal(mp, result); err != nil {
		return err
	}
	if exec.ret.groupCount() != len(groups) {
		return serr.NewCorruptedStateNoCtx(
			"approx_count_distinct has %d result groups but %d sketches",
			exec.ret.groupCount(), len(groups))
	}
	exec.sks = make([]*hyperloglog.Sketch, len(groups))
	for i, data := range groups {
		exec.sks[i] = hyperloglog.New()
		if err := exec.sks[i].UnmarshalBinary(data); err != nil {
			return serr.NewCorruptedStateNoCtx("bad sketch bytes for group %d: %s", i, err)
		}
	}
	return nil
}

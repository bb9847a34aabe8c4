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
	"encoding/binary"

	"github.com/silodb/silo/pkg/common/mpool"
	"github.com/silodb/silo/pkg/common/serr"
	"github.com/silodb/silo/pkg/container/types"
	"github.com/silodb/silo/pkg/container/vector"
)

// aggFuncResult holds the per-group result values of an executor as a
// growing column vector, plus the group-empty flags used to decide
// whether a group flushes as null.
type aggFuncResult[T types.FixedSizeT] struct {
	mg  AggMemoryManager
	mp  *mpool.MPool
	typ types.Type

	res   *vector.Vector
	empty []bool
	// emptyBeNull decides how a group that never saw a value flushes:
	// null when true, the zero value when false.
	emptyBeNull bool
}

func initFixedAggFuncResult[T types.FixedSizeT](
	mg AggMemoryManager, typ types.Type, emptyBeNull bool) aggFuncResult[T] {
	return aggFuncResult[T]{
		mg:          mg,
		mp:          mg.Mp(),
		typ:         typ,
		res:         vector.NewVec(typ),
		emptyBeNull: emptyBeNull,
	}
}

func (r *aggFuncResult[T]) grows(more int) error {
	var zero T
	if err := vector.AppendMultiFixed(r.res, zero, false, more, r.mp); err != nil {
		return err
	}
	for i := 0; i < more; i++ {
		r.empty = append(r.empty, true)
	}
	return nil
}

func (r *aggFuncResult[T]) groupCount() int {
	return len(r.empty)
}

func (r *aggFuncResult[T]) aggGet(groupIndex int) T {
	return vector.MustFixedCol[T](r.res)[groupIndex]
}

func (r *aggFuncResult[T]) aggSet(groupIndex int, value T) {
	vector.MustFixedCol[T](r.res)[groupIndex] = value
}

func (r *aggFuncResult[T]) setGroupNotEmpty(groupIndex int) {
	r.empty[groupIndex] = false
}

func (r *aggFuncResult[T]) groupIsEmpty(groupIndex int) bool {
	return r.empty[groupIndex]
}

// flush hands the result vector to the caller, who takes ownership.
func (r *aggFuncResult[T]) flush() *vector.Vector {
	if r.emptyBeNull {
		nsp := r.res.GetNulls()
		for i, isEmpty := range r.empty {
			if isEmpty {
				nsp.Add(uint64(i))
			}
		}
	}
	res := r.res
	r.res = nil
	return res
}

func (r *aggFuncResult[T]) free() {
	if r.res != nil {
		r.res.Free(r.mp)
		r.res = nil
	}
	r.empty = nil
}

// marshal frames the result section as
//
//	type | u32 group count | empty flags | u32 data length | value bytes
func (r *aggFuncResult[T]) marshal() ([]byte, error) {
	values := vector.MustFixedCol[T](r.res)
	data := types.EncodeSlice(values)

	buf := make([]byte, 0, len(r.typBytes())+4+len(r.empty)+4+len(data))
	buf = append(buf, r.typBytes()...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.empty)))
	for _, isEmpty := range r.empty {
		if isEmpty {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	return buf, nil
}

func (r *aggFuncResult[T]) unmarshal(mp *mpool.MPool, data []byte) error {
	typSize := len(r.typBytes())
	if len(data) < typSize+4 {
		return serr.NewCorruptedStateNoCtx("result section too short")
	}
	r.typ = types.DecodeType(data[:typSize])
	data = data[typSize:]

	cnt := int(binary.BigEndian.Uint32(data))
	data = data[4:]
	if len(data) < cnt+4 {
		return serr.NewCorruptedStateNoCtx("result section truncated at empty flags")
	}
	r.empty = make([]bool, cnt)
	for i := 0; i < cnt; i++ {
		r.empty[i] = data[i] == 1
	}
	data = data[cnt:]

	sz := int(binary.BigEndian.Uint32(data))
	data = data[4:]
	if len(data) < sz {
		return serr.NewCorruptedStateNoCtx("result section truncated at values")
	}
	values := types.DecodeSlice[T](data[:sz])
	if len(values) != cnt {
		return serr.NewCorruptedStateNoCtx(
			"result section has %d values for %d groups", len(values), cnt)
	}

	r.mp = mp
	r.res = vector.NewVec(r.typ)
	return vector.AppendFixedList(r.res, values, nil, mp)
}

func (r *aggFuncResult[T]) typBytes() []byte {
	return types.EncodeType(&r.typ)
}

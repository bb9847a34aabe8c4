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

package vector

import (
	"github.com/silodb/silo/pkg/common/mpool"
	"github.com/silodb/silo/pkg/common/serr"
	"github.com/silodb/silo/pkg/container/nulls"
	"github.com/silodb/silo/pkg/container/types"
)

const (
	FLAT     = iota // flat vector, one value per row
	CONSTANT        // constant vector, one value repeated length times
)

// Vector is a column of fixed-size values backed by mpool memory.
type Vector struct {
	class  int
	typ    types.Type
	nsp    *nulls.Nulls
	data   []byte
	length int

	cantFreeData bool
}

func NewVec(typ types.Type) *Vector {
	return &Vector{
		class: FLAT,
		typ:   typ,
		nsp:   &nulls.Nulls{},
	}
}

// NewConstNull returns a constant vector of length rows, all null.
func NewConstNull(typ types.Type, length int) *Vector {
	vec := &Vector{
		class:  CONSTANT,
		typ:    typ,
		nsp:    &nulls.Nulls{},
		length: length,
	}
	vec.nsp.Add(0)
	return vec
}

// NewConstFixed returns a constant vector of length rows, all val.
func NewConstFixed[T types.FixedSizeT](typ types.Type, val T, length int, mp *mpool.MPool) (*Vector, error) {
	vec := &Vector{
		class: CONSTANT,
		typ:   typ,
		nsp:   &nulls.Nulls{},
	}
	if err := appendOneFixed(vec, val, false, mp); err != nil {
		return nil, err
	}
	vec.length = length
	return vec, nil
}

func (v *Vector) Length() int {
	return v.length
}

func (v *Vector) SetLength(n int) {
	v.length = n
}

func (v *Vector) GetType() *types.Type {
	return &v.typ
}

func (v *Vector) GetNulls() *nulls.Nulls {
	return v.nsp
}

func (v *Vector) IsConst() bool {
	return v.class == CONSTANT
}

func (v *Vector) IsConstNull() bool {
	return v.class == CONSTANT && v.nsp.Contains(0)
}

// IsNull reports whether the row at i is null.
func (v *Vector) IsNull(i uint64) bool {
	if v.IsConstNull() {
		return true
	}
	if v.IsConst() {
		return false
	}
	return v.nsp.Contains(i)
}

func (v *Vector) HasNull() bool {
	return v.IsConstNull() || v.nsp.Any()
}

func (v *Vector) Free(mp *mpool.MPool) {
	if v.data != nil && !v.cantFreeData {
		mp.Free(v.data)
	}
	v.data = nil
	v.nsp = &nulls.Nulls{}
	v.length = 0
}

// MustFixedCol returns the typed view over the vector's storage. For a
// constant vector the view holds the single stored value.
func MustFixedCol[T types.FixedSizeT](v *Vector) []T {
	if len(v.data) == 0 {
		return nil
	}
	vs := types.DecodeSlice[T](v.data)
	if v.class == CONSTANT {
		return vs[:1]
	}
	return vs[:v.length]
}

// GetRawBytesAt returns the raw bytes of the fixed-size value at row i.
func (v *Vector) GetRawBytesAt(i int) []byte {
	if v.class == CONSTANT {
		i = 0
	}
	sz := int(v.typ.Size)
	return v.data[i*sz : (i+1)*sz]
}

// GetFixedAt reads the value at row i, resolving constant vectors.
func GetFixedAt[T types.FixedSizeT](v *Vector, i int) T {
	if v.class == CONSTANT {
		i = 0
	}
	return types.DecodeSlice[T](v.data)[i]
}

func AppendFixed[T types.FixedSizeT](vec *Vector, val T, isNull bool, mp *mpool.MPool) error {
	if mp == nil {
		return serr.NewInternalNoCtx("append to vector without a mpool")
	}
	return appendOneFixed(vec, val, isNull, mp)
}

func AppendFixedList[T types.FixedSizeT](vec *Vector, vals []T, isNulls []bool, mp *mpool.MPool) error {
	if mp == nil {
		return serr.NewInternalNoCtx("append to vector without a mpool")
	}
	if len(vals) == 0 {
		return nil
	}
	if err := extend(vec, len(vals), mp); err != nil {
		return err
	}
	length := vec.length
	vec.length += len(vals)
	col := types.DecodeSlice[T](vec.data)
	for i, val := range vals {
		col[length+i] = val
		if len(isNulls) > 0 && isNulls[i] {
			vec.nsp.Add(uint64(length + i))
		}
	}
	return nil
}

// AppendMultiFixed appends val cnt times.
func AppendMultiFixed[T types.FixedSizeT](vec *Vector, val T, isNull bool, cnt int, mp *mpool.MPool) error {
	if mp == nil {
		return serr.NewInternalNoCtx("append to vector without a mpool")
	}
	if err := extend(vec, cnt, mp); err != nil {
		return err
	}
	length := vec.length
	vec.length += cnt
	col := types.DecodeSlice[T](vec.data)
	for i := 0; i < cnt; i++ {
		col[length+i] = val
	}
	if isNull {
		vec.nsp.AddRange(uint64(length), uint64(length+cnt))
	}
	return nil
}

func appendOneFixed[T types.FixedSizeT](vec *Vector, val T, isNull bool, mp *mpool.MPool) error {
	if err := extend(vec, 1, mp); err != nil {
		return err
	}
	length := vec.length
	vec.length++
	if isNull {
		vec.nsp.Add(uint64(length))
	} else {
		col := types.DecodeSlice[T](vec.data)
		col[length] = val
	}
	return nil
}

func extend(vec *Vector, rows int, mp *mpool.MPool) error {
	sz := int(vec.typ.Size)
	need := (vec.length + rows) * sz
	if need <= cap(vec.data) {
		vec.data = vec.data[:need]
		return nil
	}
	data, err := mp.Grow(vec.data, need)
	if err != nil {
		return err
	}
	vec.data = data
	return nil
}

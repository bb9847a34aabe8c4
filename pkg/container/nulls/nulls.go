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

// Package nulls implements the null bitmap of a column vector as a
// roaring bitmap of row indices. A nil *Nulls means no nulls, every
// method is nil-safe on the receiver.
package nulls

import (
	"github.com/RoaringBitmap/roaring/roaring64"
)

type Nulls struct {
	np *roaring64.Bitmap
}

func NewWithSize(_ int) *Nulls {
	return &Nulls{np: roaring64.New()}
}

// Any returns true if any row is marked null.
func (nsp *Nulls) Any() bool {
	return nsp != nil && nsp.np != nil && !nsp.np.IsEmpty()
}

func (nsp *Nulls) Count() int {
	if nsp == nil || nsp.np == nil {
		return 0
	}
	return int(nsp.np.GetCardinality())
}

func (nsp *Nulls) Contains(row uint64) bool {
	return nsp != nil && nsp.np != nil && nsp.np.Contains(row)
}

func (nsp *Nulls) Add(rows ...uint64) {
	if nsp == nil {
		return
	}
	if nsp.np == nil {
		nsp.np = roaring64.New()
	}
	nsp.np.AddMany(rows)
}

func (nsp *Nulls) AddRange(start, end uint64) {
	if nsp == nil {
		return
	}
	if nsp.np == nil {
		nsp.np = roaring64.New()
	}
	nsp.np.AddRange(start, end)
}

func (nsp *Nulls) Del(rows ...uint64) {
	if nsp == nil || nsp.np == nil {
		return
	}
	for _, row := range rows {
		nsp.np.Remove(row)
	}
}

func (nsp *Nulls) Reset() {
	if nsp != nil && nsp.np != nil {
		nsp.np.Clear()
	}
}

// Or merges the nulls of a into nsp.
func (nsp *Nulls) Or(a *Nulls) {
	if a == nil || a.np == nil || a.np.IsEmpty() {
		return
	}
	if nsp.np == nil {
		nsp.np = roaring64.New()
	}
	nsp.np.Or(a.np)
}

func (nsp *Nulls) Clone() *Nulls {
	if nsp == nil {
		return nil
	}
	if nsp.np == nil {
		return &Nulls{}
	}
	return &Nulls{np: nsp.np.Clone()}
}

// Contains reports whether the row is null, tolerating a nil nsp.
func Contains(nsp *Nulls, row uint64) bool {
	return nsp.Contains(row)
}

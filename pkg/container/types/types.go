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

import "fmt"

// T is the type id of a column value.
type T uint8

const (
	T_any T = iota

	T_bool

	T_int8
	T_int16
	T_int32
	T_int64

	T_uint8
	T_uint16
	T_uint32
	T_uint64

	T_float32
	T_float64
)

// Type describes a column type. Size is the byte width of one
// fixed-size value of this type.
type Type struct {
	Oid  T
	Size int32
}

func New(oid T) Type {
	return Type{Oid: oid, Size: int32(oid.TypeSize())}
}

func (t T) ToType() Type {
	return New(t)
}

func (t T) TypeSize() int {
	switch t {
	case T_bool, T_int8, T_uint8:
		return 1
	case T_int16, T_uint16:
		return 2
	case T_int32, T_uint32, T_float32:
		return 4
	case T_int64, T_uint64, T_float64:
		return 8
	}
	return 0
}

func (t T) String() string {
	switch t {
	case T_any:
		return "ANY"
	case T_bool:
		return "BOOL"
	case T_int8:
		return "TINYINT"
	case T_int16:
		return "SMALLINT"
	case T_int32:
		return "INT"
	case T_int64:
		return "BIGINT"
	case T_uint8:
		return "TINYINT UNSIGNED"
	case T_uint16:
		return "SMALLINT UNSIGNED"
	case T_uint32:
		return "INT UNSIGNED"
	case T_uint64:
		return "BIGINT UNSIGNED"
	case T_float32:
		return "FLOAT"
	case T_float64:
		return "DOUBLE"
	}
	return fmt.Sprintf("unexpected type %d", t)
}

func (t Type) String() string {
	return t.Oid.String()
}

func (t Type) IsFixedLen() bool {
	return t.Oid.TypeSize() > 0
}

type Ints interface {
	int8 | int16 | int32 | int64
}

type UInts interface {
	uint8 | uint16 | uint32 | uint64
}

type Floats interface {
	float32 | float64
}

// FixedSizeT is the constraint for values stored with a fixed byte width.
type FixedSizeT interface {
	bool | Ints | UInts | Floats
}

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
	"unsafe"

	"github.com/silodb/silo/pkg/common/serr"
	"github.com/silodb/silo/pkg/container/types"
)

// Executor envelope, all length prefixes big endian:
//
//	aggID    : int64
//	distinct : 1 byte
//	args     : u32 count, then count fixed-width types
//	ret      : one fixed-width type
//	result   : u32 length, result section bytes
//	groups   : u32 count, then per group u32 length and bytes

var typeEncodedSize = int(unsafe.Sizeof(types.Type{}))

// MarshalAggFuncExec turns a live executor into transferable bytes.
func MarshalAggFuncExec(exec AggFuncExec) ([]byte, error) {
	return exec.marshal()
}

// UnmarshalAggFuncExec rebuilds an executor from MarshalAggFuncExec
// bytes, allocating its result from mp.
func UnmarshalAggFuncExec(mg AggMemoryManager, data []byte) (AggFuncExec, error) {
	info, result, groups, err := unmarshalExecSections(data)
	if err != nil {
		return nil, err
	}
	exec, err := MakeAgg(mg, info.aggID, info.distinct, info.argTypes...)
	if err != nil {
		return nil, err
	}
	if err = exec.unmarshal(mg.Mp(), result, groups); err != nil {
		exec.Free()
		return nil, err
	}
	return exec, nil
}

func marshalExecSections(info multiAggInfo, result []byte, groups [][]byte) ([]byte, error) {
	sz := 8 + 1 + 4 + len(info.argTypes)*typeEncodedSize + typeEncodedSize +
		4 + len(result) + 4
	for _, g := range groups {
		sz += 4 + len(g)
	}

	buf := make([]byte, 0, sz)
	buf = binary.BigEndian.AppendUint64(buf, uint64(info.aggID))
	if info.distinct {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(info.argTypes)))
	for i := range info.argTypes {
		buf = append(buf, types.EncodeType(&info.argTypes[i])...)
	}
	buf = append(buf, types.EncodeType(&info.retType)...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(result)))
	buf = append(buf, result...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(groups)))
	for _, g := range groups {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(g)))
		buf = append(buf, g...)
	}
	return buf, nil
}

func unmarshalExecSections(data []byte) (multiAggInfo, []byte, [][]byte, error) {
	var info multiAggInfo
	bad := func(msg string, args ...any) (multiAggInfo, []byte, [][]byte, error) {
		return info, nil, nil, serr.NewCorruptedStateNoCtx(msg, args...)
	}

	if len(data) < 8+1+4 {
		return bad("executor envelope too short")
	}
	info.aggID = int64(binary.BigEndian.Uint64(data))
	info.distinct = data[8] == 1
	nArgs := int(binary.BigEndian.Uint32(data[9:]))
	data = data[13:]

	if len(data) < (nArgs+1)*typeEncodedSize {
		return bad("executor envelope truncated at types")
	}
	info.argTypes = make([]types.Type, nArgs)
	for i := 0; i < nArgs; i++ {
		info.argTypes[i] = types.DecodeType(data[:typeEncodedSize])
		data = data[typeEncodedSize:]
	}
	info.retType = types.DecodeType(data[:typeEncodedSize])
	data = data[typeEncodedSize:]

	if len(data) < 4 {
		return bad("executor envelope truncated at result length")
	}
	resultLen := int(binary.BigEndian.Uint32(data))
	data = data[4:]
	if len(data) < resultLen+4 {
		return bad("executor envelope truncated at result section")
	}
	result := data[:resultLen]
	data = data[resultLen:]

	nGroups := int(binary.BigEndian.Uint32(data))
	data = data[4:]
	// Every group carries at least its own length prefix, so a count
	// beyond len(data)/4 is corrupt. Reject it before allocating.
	if nGroups > len(data)/4 {
		return bad("executor envelope claims %d groups in %d bytes", nGroups, len(data))
	}
	groups := make([][]byte, nGroups)
	for i := 0; i < nGroups; i++ {
		if len(data) < 4 {
			return bad("executor envelope truncated at group %d length", i)
		}
		gLen := int(binary.BigEndian.Uint32(data))
		data = data[4:]
		if len(data) < gLen {
			return bad("executor envelope truncated at group %d bytes", i)
		}
		groups[i] = data[:gLen]
		data = data[gLen:]
	}
	if len(data) != 0 {
		return bad("executor envelope has %d trailing bytes", len(data))
	}
	return info, result, groups, nil
}

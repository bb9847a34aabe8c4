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
	"github.com/silodb/silo/pkg/common/serr"
	"github.com/silodb/silo/pkg/container/types"
)

// Special aggregation functions carry negative ids to keep them apart
// from the ordinary sql function ids assigned by the function registry.
const (
	AggIdOfWindowFunnel = int64(-1)
	AggIdOfApproxCount  = int64(-2)
)

const (
	WindowFunnelName = "window_funnel"
	ApproxCountName  = "approx_count_distinct"
)

type specialAggMaker func(mg AggMemoryManager, info multiAggInfo) AggFuncExec

type specialAggEntry struct {
	name string
	bind func(argTypes []types.Type) (types.Type, specialAggMaker, error)
}

var specialAgg = map[int64]specialAggEntry{}

func init() {
	RegisterWindowFunnelAgg(AggIdOfWindowFunnel)
	RegisterApproxCountAgg(AggIdOfApproxCount)
}

// windowFunnelCreators maps the timestamp type to the monomorphic
// executor constructor. The type is resolved once here; every later
// operation on the instance is free of per-row type checks.
var windowFunnelCreators = map[types.T]specialAggMaker{
	types.T_uint8:  newWindowFunnelExec[uint8],
	types.T_uint16: newWindowFunnelExec[uint16],
	types.T_uint32: newWindowFunnelExec[uint32],
	types.T_uint64: newWindowFunnelExec[uint64],
}

// WindowFunnelReturnType is the result type of window_funnel, always
// non-nullable.
func WindowFunnelReturnType(_ []types.Type) types.Type {
	return types.T_uint8.ToType()
}

func RegisterWindowFunnelAgg(id int64) {
	specialAgg[id] = specialAggEntry{
		name: WindowFunnelName,
		bind: bindWindowFunnel,
	}
}

func bindWindowFunnel(argTypes []types.Type) (types.Type, specialAggMaker, error) {
	if len(argTypes) < 2 {
		return types.Type{}, nil, serr.NewInvalidInputNoCtx(
			"window_funnel requires a timestamp column and at least one condition column")
	}
	for i := 1; i < len(argTypes); i++ {
		if argTypes[i].Oid != types.T_bool {
			return types.Type{}, nil, serr.NewInvalidInputNoCtx(
				"window_funnel condition column %d has type %s, want BOOL",
				i, argTypes[i].Oid)
		}
	}
	maker, ok := windowFunnelCreators[argTypes[0].Oid]
	if !ok {
		return types.Type{}, nil, serr.NewNotSupportedNoCtx(
			"window_funnel timestamp type %s", argTypes[0].Oid)
	}
	return WindowFunnelReturnType(argTypes), maker, nil
}

func RegisterApproxCountAgg(id int64) {
	specialAgg[id] = specialAggEntry{
		name: ApproxCountName,
		bind: bindApproxCount,
	}
}

func bindApproxCount(argTypes []types.Type) (types.Type, specialAggMaker, error) {
	if len(argTypes) != 1 {
		return types.Type{}, nil, serr.NewInvalidInputNoCtx(
			"approx_count_distinct requires exactly one column, got %d", len(argTypes))
	}
	if !argTypes[0].IsFixedLen() {
		return types.Type{}, nil, serr.NewNotSupportedNoCtx(
			"approx_count_distinct column type %s", argTypes[0].Oid)
	}
	return types.T_uint64.ToType(), newApproxCountExec, nil
}

// AggName returns the registered name of an aggregation function id.
func AggName(aggID int64) string {
	if entry, ok := specialAgg[aggID]; ok {
		return entry.name
	}
	return "unknown"
}

// MakeAgg builds the executor for the aggregation function aggID bound
// to the given argument types.
func MakeAgg(
	mg AggMemoryManager, aggID int64, isDistinct bool, argTypes ...types.Type) (AggFuncExec, error) {
	entry, ok := specialAgg[aggID]
	if !ok {
		return nil, serr.NewNotSupportedNoCtx("aggregation function id %d", aggID)
	}
	retType, maker, err := entry.bind(argTypes)
	if err != nil {
		return nil, err
	}
	info := multiAggInfo{
		aggID:    aggID,
		distinct: isDistinct,
		argTypes: argTypes,
		retType:  retType,
	}
	return maker(mg, info), nil
}

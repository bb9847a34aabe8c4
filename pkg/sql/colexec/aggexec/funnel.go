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
	"sort"

	"github.com/silodb/silo/pkg/common/mpool"
	"github.com/silodb/silo/pkg/common/serr"
	"github.com/silodb/silo/pkg/container/types"
	"github.com/silodb/silo/pkg/container/vector"
)

// defaultFunnelWindow is the sliding-window length of window_funnel.
// Stage s counts only if its timestamp is within this many ticks of
// the stage s-1 anchor.
const defaultFunnelWindow = 1024

// funnelTime is the set of timestamp representations window_funnel
// accepts.
type funnelTime interface {
	uint8 | uint16 | uint32 | uint64
}

// funnelEvent records one stage firing at one timestamp.
type funnelEvent[T funnelTime] struct {
	ts    T
	stage uint8
}

func (e funnelEvent[T]) less(o funnelEvent[T]) bool {
	if e.ts != o.ts {
		return e.ts < o.ts
	}
	return e.stage < o.stage
}

// funnelState is the partial aggregation state of one group: the
// observed events plus a sortedness hint maintained in O(1) on append.
type funnelState[T funnelTime] struct {
	events []funnelEvent[T]
	sorted bool
}

func newFunnelState[T funnelTime]() *funnelState[T] {
	return &funnelState[T]{sorted: true}
}

func (s *funnelState[T]) add(ts T, stage uint8) {
	e := funnelEvent[T]{ts: ts, stage: stage}
	if s.sorted && len(s.events) > 0 {
		last := s.events[len(s.events)-1]
		if e.less(last) {
			s.sorted = false
		}
	}
	s.events = append(s.events, e)
}

func (s *funnelState[T]) ensureSorted() {
	if s.sorted {
		return
	}
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].less(s.events[j])
	})
	s.sorted = true
}

// merge absorbs other's events.  Both sides are brought to sorted
// order once, then interleaved with a stable two-pointer merge, so the
// result stays sorted and duplicates from both sides survive.
func (s *funnelState[T]) merge(other *funnelState[T]) {
	if other == nil || len(other.events) == 0 {
		return
	}
	if len(s.events) == 0 {
		s.events = append(s.events, other.events...)
		s.sorted = other.sorted
		return
	}
	s.ensureSorted()
	other.ensureSorted()

	merged := make([]funnelEvent[T], 0, len(s.events)+len(other.events))
	i, j := 0, 0
	for i < len(s.events) && j < len(other.events) {
		if other.events[j].less(s.events[i]) {
			merged = append(merged, other.events[j])
			j++
		} else {
			merged = append(merged, s.events[i])
			i++
		}
	}
	merged = append(merged, s.events[i:]...)
	merged = append(merged, other.events[j:]...)
	s.events = merged
}

// eventLevel resolves the funnel level in one pass over the sorted
// events. anchor[k] is the timestamp at which stage k+1 was first
// validly completed; stage s counts when stage s-1 is anchored and the
// delta does not exceed the window. The first stage-1 occurrence seeds
// the only tracked attempt.
func (s *funnelState[T]) eventLevel(steps uint8, window uint64) uint8 {
	if steps == 1 {
		if len(s.events) == 0 {
			return 0
		}
		return 1
	}
	s.ensureSorted()

	anchor := make([]uint64, steps)
	anchored := make([]bool, steps)
	for _, e := range s.events {
		if e.stage == 0 || e.stage > steps {
			continue
		}
		k := int(e.stage) - 1
		if k == 0 {
			if !anchored[0] {
				anchor[0] = uint64(e.ts)
				anchored[0] = true
			}
			continue
		}
		if anchored[k-1] && !anchored[k] && uint64(e.ts)-anchor[k-1] <= window {
			anchor[k] = uint64(e.ts)
			anchored[k] = true
		}
	}

	var level uint8
	for k := 0; k < int(steps); k++ {
		if !anchored[k] {
			break
		}
		level = uint8(k + 1)
	}
	return level
}

// marshal writes the wire form of the state:
//
//	sorted flag 1 byte | uvarint event count | per event: timestamp, stage byte
func (s *funnelState[T]) marshal() []byte {
	var t T
	tsSize := len(types.EncodeFixed(t))
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(s.events)*(tsSize+1))
	if s.sorted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.AppendUvarint(buf, uint64(len(s.events)))
	for _, e := range s.events {
		buf = append(buf, types.EncodeFixed(e.ts)...)
		buf = append(buf, e.stage)
	}
	return buf
}

func (s *funnelState[T]) unmarshal(data []byte, maxStage uint8) error {
	if len(data) < 1 {
		return serr.NewCorruptedStateNoCtx("funnel state is empty")
	}
	switch data[0] {
	case 0:
		s.sorted = false
	case 1:
		s.sorted = true
	default:
		return serr.NewCorruptedStateNoCtx("funnel state has bad sorted flag %d", data[0])
	}
	data = data[1:]

	cnt, n := binary.Uvarint(data)
	if n <= 0 {
		return serr.NewCorruptedStateNoCtx("funnel state has bad event count")
	}
	data = data[n:]

	var t T
	tsSize := len(types.EncodeFixed(t))
	stride := uint64(tsSize) + 1
	// cnt is attacker-controlled; bound it before the multiply so a huge
	// count cannot overflow past the length check and reach make.
	if cnt > uint64(len(data)) || uint64(len(data)) != cnt*stride {
		return serr.NewCorruptedStateNoCtx(
			"funnel state truncated, %d bytes for %d events", len(data), cnt)
	}
	s.events = make([]funnelEvent[T], 0, cnt)
	for i := uint64(0); i < cnt; i++ {
		ts := types.DecodeFixed[T](data[:tsSize])
		stage := data[tsSize]
		if stage == 0 || stage > maxStage {
			return serr.NewCorruptedStateNoCtx(
				"funnel state has stage %d out of range [1, %d]", stage, maxStage)
		}
		s.events = append(s.events, funnelEvent[T]{ts: ts, stage: stage})
		data = data[tsSize+1:]
	}
	return nil
}

func (s *funnelState[T]) size() int {
	return len(s.events)
}

// windowFunnelExec is the executor of window_funnel(ts, cond1 .. condN).
type windowFunnelExec[T funnelTime] struct {
	multiAggInfo

	mg     AggMemoryManager
	steps  uint8
	window uint64

	ret    aggFuncResult[uint8]
	groups []*funnelState[T]
}

func newWindowFunnelExec[T funnelTime](mg AggMemoryManager, info multiAggInfo) AggFuncExec {
	return &windowFunnelExec[T]{
		multiAggInfo: info,
		mg:           mg,
		steps:        uint8(len(info.argTypes) - 1),
		window:       defaultFunnelWindow,
		ret:          initFixedAggFuncResult[uint8](mg, info.retType, false),
	}
}

func (exec *windowFunnelExec[T]) GroupGrow(more int) error {
	if err := exec.ret.grows(more); err != nil {
		return err
	}
	for i := 0; i < more; i++ {
		exec.groups = append(exec.groups, newFunnelState[T]())
	}
	return nil
}

func (exec *windowFunnelExec[T]) Fill(groupIndex int, row int, vectors []*vector.Vector) error {
	ts := vectors[0]
	if ts.IsNull(uint64(row)) {
		return nil
	}
	t := vector.GetFixedAt[T](ts, row)
	state := exec.groups[groupIndex]
	for i := 1; i < len(vectors); i++ {
		if vectors[i].IsNull(uint64(row)) {
			continue
		}
		if vector.GetFixedAt[bool](vectors[i], row) {
			state.add(t, uint8(i))
			exec.ret.setGroupNotEmpty(groupIndex)
		}
	}
	return nil
}

func (exec *windowFunnelExec[T]) BulkFill(groupIndex int, vectors []*vector.Vector) error {
	length := vectors[0].Length()
	for row := 0; row < length; row++ {
		if err := exec.Fill(groupIndex, row, vectors); err != nil {
			return err
		}
	}
	return nil
}

func (exec *windowFunnelExec[T]) BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
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

func (exec *windowFunnelExec[T]) Merge(next AggFuncExec, groupIdx1, groupIdx2 int) error {
	other, ok := next.(*windowFunnelExec[T])
	if !ok {
		return serr.NewInternalNoCtx("window_funnel merge with mismatched executor")
	}
	exec.groups[groupIdx1].merge(other.groups[groupIdx2])
	if !other.ret.groupIsEmpty(groupIdx2) {
		exec.ret.setGroupNotEmpty(groupIdx1)
	}
	return nil
}

func (exec *windowFunnelExec[T]) BatchMerge(next AggFuncExec, offset int, groups []uint64) error {
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

func (exec *windowFunnelExec[T]) Flush() (*vector.Vector, error) {
	for i, state := range exec.groups {
		exec.ret.aggSet(i, state.eventLevel(exec.steps, exec.window))
	}
	return exec.ret.flush(), nil
}

func (exec *windowFunnelExec[T]) Free() {
	exec.ret.free()
	exec.groups = nil
}

func (exec *windowFunnelExec[T]) marshal() ([]byte, error) {
	result, err := exec.ret.marshal()
	if err != nil {
		return nil, err
	}
	groups := make([][]byte, len(exec.groups))
	for i, state := range exec.groups {
		groups[i] = state.marshal()
	}
	return marshalExecSections(exec.multiAggInfo, result, groups)
}

func (exec *windowFunnelExec[T]) unmarshal(mp *mpool.MPool, result []byte, groups [][]byte) error {
	if err := exec.ret.unmarshal(mp, result); err != nil {
		return err
	}
	if exec.ret.groupCount() != len(groups) {
		return serr.NewCorruptedStateNoCtx(
			"window_funnel has %d result groups but %d states",
			exec.ret.groupCount(), len(groups))
	}
	exec.groups = make([]*funnelState[T], len(groups))
	for i, data := range groups {
		exec.groups[i] = newFunnelState[T]()
		if err := exec.groups[i].unmarshal(data, exec.steps); err != nil {
			return err
		}
	}
	return nil
}

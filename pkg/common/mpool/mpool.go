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

// Package mpool is the accounting allocator of the engine.  Every byte a
// vector or aggregate state takes from the host is charged against one
// MPool so a query's memory footprint can be capped and inspected.
package mpool

import (
	"sync/atomic"

	"github.com/silodb/silo/pkg/common/serr"
)

// Stats tracks lifetime counters of a pool.
type Stats struct {
	NumAlloc      atomic.Int64
	NumFree       atomic.Int64
	NumCurrBytes  atomic.Int64
	HighWaterMark atomic.Int64
}

// MPool enforces an optional capacity and records allocation statistics.
// Cap == 0 means no limit.
type MPool struct {
	name  string
	cap   int64
	stats Stats
}

func NewMPool(name string, cap int64) (*MPool, error) {
	if cap < 0 {
		return nil, serr.NewInvalidInputNoCtx("mpool cap %d is negative", cap)
	}
	return &MPool{name: name, cap: cap}, nil
}

// MustNewZero returns an unbounded pool and panics on failure.
func MustNewZero() *MPool {
	m, err := NewMPool("", 0)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *MPool) Name() string {
	return m.name
}

func (m *MPool) Cap() int64 {
	return m.cap
}

// CurrNB returns the number of bytes currently charged to the pool.
func (m *MPool) CurrNB() int64 {
	return m.stats.NumCurrBytes.Load()
}

func (m *MPool) Stats() *Stats {
	return &m.stats
}

// Alloc returns a zeroed byte slice of length sz charged to the pool.
func (m *MPool) Alloc(sz int) ([]byte, error) {
	if sz < 0 {
		return nil, serr.NewInvalidInputNoCtx("mpool alloc size %d is negative", sz)
	}
	if sz == 0 {
		return nil, nil
	}
	if m.cap > 0 && m.CurrNB()+int64(sz) > m.cap {
		return nil, serr.NewOOMNoCtx()
	}
	m.stats.NumAlloc.Add(1)
	curr := m.stats.NumCurrBytes.Add(int64(sz))
	for {
		hwm := m.stats.HighWaterMark.Load()
		if curr <= hwm || m.stats.HighWaterMark.CompareAndSwap(hwm, curr) {
			break
		}
	}
	return make([]byte, sz), nil
}

// Realloc returns a zero-extended slice of length sz holding old's content.
// old is freed; the returned slice is a fresh charge.
func (m *MPool) Realloc(old []byte, sz int) ([]byte, error) {
	if sz <= len(old) {
		return old[:sz], nil
	}
	data, err := m.Alloc(sz)
	if err != nil {
		return nil, err
	}
	copy(data, old)
	m.Free(old)
	return data, nil
}

// Grow is Realloc with capacity doubling, for append-heavy callers.
func (m *MPool) Grow(old []byte, sz int) ([]byte, error) {
	if sz <= cap(old) {
		return old[:sz], nil
	}
	newCap := cap(old) * 2
	if newCap < sz {
		newCap = sz
	}
	data, err := m.Alloc(newCap)
	if err != nil {
		return nil, err
	}
	copy(data, old)
	m.Free(old)
	return data[:sz], nil
}

// Free returns bs's charge to the pool.  The memory itself is reclaimed
// by the runtime once unreferenced.  The charge is the slice capacity,
// which is what Alloc charged.
func (m *MPool) Free(bs []byte) {
	if cap(bs) == 0 {
		return
	}
	m.stats.NumFree.Add(1)
	m.stats.NumCurrBytes.Add(int64(-cap(bs)))
}

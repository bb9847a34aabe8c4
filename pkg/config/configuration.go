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

package config

import (
	"github.com/BurntSushi/toml"
	"github.com/silodb/silo/pkg/logutil"
)

const (
	defaultMempoolMaxSize = 0 // unlimited
	defaultMergeParallel  = 0 // runtime.NumCPU
)

// EngineConfig holds the settings of the aggregation engine.
type EngineConfig struct {
	// MempoolMaxSize caps the memory charged to the engine mpool in
	// bytes. Zero means unlimited.
	MempoolMaxSize int64 `toml:"mempool-max-size"`

	// MergeParallel is the worker count used when folding partial
	// aggregation states in parallel. Zero picks the CPU count.
	MergeParallel int `toml:"merge-parallel"`

	Log logutil.LogConfig `toml:"log"`
}

func (c *EngineConfig) SetDefaultValues() {
	if c.MempoolMaxSize < 0 {
		c.MempoolMaxSize = defaultMempoolMaxSize
	}
	if c.MergeParallel < 0 {
		c.MergeParallel = defaultMergeParallel
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 512
	}
}

// LoadConfig parses the toml file at path and fills in defaults.
func LoadConfig(path string) (*EngineConfig, error) {
	var cfg EngineConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaultValues()
	return &cfg, nil
}

// ParseConfig parses toml data, for embedding configuration in tests
// and tools.
func ParseConfig(data string) (*EngineConfig, error) {
	var cfg EngineConfig
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaultValues()
	return &cfg, nil
}

// Copyright 2022-2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/parca-dev/breakpad-unwind/pkg/logger"
	"github.com/parca-dev/breakpad-unwind/pkg/stack/unwind"
)

var (
	ErrEmptyConfig   = errors.New("empty config")
	ErrInvalidConfig = errors.New("invalid config")
)

const DefaultSymbolsCacheSize = 1024

// Config holds all the configuration of the unwinder.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Unwind  UnwindConfig  `yaml:"unwind"`
	Symbols SymbolsConfig `yaml:"symbols"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type UnwindConfig struct {
	// FPOLeftoverReturnAddress skips a return address that was left on the
	// stack of a context frame by a callee that never popped it.
	FPOLeftoverReturnAddress bool `yaml:"fpo_leftover_return_address"`
}

type SymbolsConfig struct {
	// CacheSize is the number of address lookups kept per store.
	CacheSize int `yaml:"cache_size"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: logger.LogFormatLogfmt,
		},
		Unwind: UnwindConfig{
			FPOLeftoverReturnAddress: true,
		},
		Symbols: SymbolsConfig{
			CacheSize: DefaultSymbolsCacheSize,
		},
	}
}

func (c Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<error creating config string: %s>", err)
	}
	return string(b)
}

// Validate checks the values yaml.v3 cannot check by itself.
func (c Config) Validate() error {
	if !slices.Contains(logger.Levels, c.Log.Level) {
		return fmt.Errorf("%w: log level %q is not one of %v", ErrInvalidConfig, c.Log.Level, logger.Levels)
	}
	if c.Log.Format != logger.LogFormatLogfmt && c.Log.Format != logger.LogFormatJSON {
		return fmt.Errorf("%w: log format %q is not one of [%s %s]", ErrInvalidConfig, c.Log.Format, logger.LogFormatLogfmt, logger.LogFormatJSON)
	}
	if c.Symbols.CacheSize < 0 {
		return fmt.Errorf("%w: symbols cache size must not be negative, got %d", ErrInvalidConfig, c.Symbols.CacheSize)
	}
	return nil
}

// UnwinderOptions turns the unwind section into options for
// unwind.NewUnwinder.
func (c Config) UnwinderOptions() []unwind.Option {
	return []unwind.Option{
		unwind.WithFPOLeftoverReturnAddress(c.Unwind.FPOLeftoverReturnAddress),
	}
}

// Load parses the YAML input b into a Config on top of the defaults.
func Load(b []byte) (*Config, error) {
	if len(b) == 0 {
		return nil, ErrEmptyConfig
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile parses the given YAML file into a Config.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(content)
	if err != nil {
		return nil, fmt.Errorf("parsing YAML file %s: %w", filename, err)
	}
	return cfg, nil
}

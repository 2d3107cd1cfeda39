// Copyright 2024 The Parca Authors
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

// Package breakpad puts together an unwind.Unwinder and a symbols.Store from
// a config.Config.
package breakpad

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/breakpad-unwind/pkg/config"
	"github.com/parca-dev/breakpad-unwind/pkg/logger"
	"github.com/parca-dev/breakpad-unwind/pkg/stack/unwind"
	"github.com/parca-dev/breakpad-unwind/pkg/symbols"
)

type Unwinder struct {
	logger   log.Logger
	unwinder *unwind.Unwinder
	symbols  *symbols.Store
}

// New creates an Unwinder logging to stderr as configured.
func New(cfg *config.Config, reg prometheus.Registerer) (*Unwinder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithLogger(logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "breakpad-unwind"), cfg, reg), nil
}

// NewWithLogger is New with a caller supplied logger; cfg.Log is ignored.
func NewWithLogger(logger log.Logger, cfg *config.Config, reg prometheus.Registerer) *Unwinder {
	return &Unwinder{
		logger:   logger,
		unwinder: unwind.NewUnwinder(log.With(logger, "component", "unwinder"), reg, cfg.UnwinderOptions()...),
		symbols:  symbols.NewStore(log.With(logger, "component", "symbols"), reg, cfg.Symbols.CacheSize),
	}
}

// LoadSymbols loads a Breakpad symbol file.
func (u *Unwinder) LoadSymbols(filename string) (*symbols.Module, error) {
	m, err := u.symbols.LoadFile(filename)
	if err != nil {
		return nil, err
	}
	level.Debug(u.logger).Log("msg", "symbols ready", "file", filename, "checksum", fmt.Sprintf("%016x", m.Checksum))
	return m, nil
}

// WalkFrame unwinds one frame of code belonging to m, which is loaded at
// moduleBase.
func (u *Unwinder) WalkFrame(m *symbols.Module, w unwind.FrameWalker, moduleBase uint64) error {
	return m.WalkFrame(u.unwinder, w, moduleBase)
}

func (u *Unwinder) Close() error {
	return u.symbols.Close()
}

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

package symbols

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/parca-dev/breakpad-unwind/pkg/cache"
)

const (
	extensionGzip = ".gz"
	extensionZstd = ".zst"
)

// Store keeps the parsed symbol files, deduplicated by content, and a cache
// of address lookups shared by all of them.
type Store struct {
	logger log.Logger

	lookups *cache.LRUCache[lookupKey, UnwindInfo]
	modules *xsync.MapOf[uint64, *Module]
}

// NewStore creates a Store whose lookup cache holds cacheSize entries.
func NewStore(logger log.Logger, reg prometheus.Registerer, cacheSize int) *Store {
	return &Store{
		logger: logger,
		lookups: cache.NewLRUCache[lookupKey, UnwindInfo](
			prometheus.WrapRegistererWith(prometheus.Labels{"cache": "breakpad_unwind_info"}, reg),
			cacheSize,
		),
		modules: xsync.NewMapOf[uint64, *Module](),
	}
}

// Load parses a symbol file. If a file with the same content was loaded
// before, that module is returned instead.
func (s *Store) Load(r io.Reader) (*Module, error) {
	m, err := Parse(s.logger, r)
	if err != nil {
		return nil, err
	}
	m.lookups = s.lookups

	existing, loaded := s.modules.LoadOrStore(m.Checksum, m)
	if loaded {
		return existing, nil
	}

	level.Debug(s.logger).Log(
		"msg", "loaded symbol file",
		"checksum", fmt.Sprintf("%016x", m.Checksum),
		"cfi_records", m.NumCFIRecords(),
		"win_frame_data_records", m.NumWinRecords(WinFrameData),
		"win_fpo_records", m.NumWinRecords(WinFPO),
	)
	return m, nil
}

// LoadFile is Load for a file on disk. Files ending in .gz or .zst are
// decompressed first.
func (s *Store) LoadFile(name string) (*Module, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(name, extensionGzip):
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream %s: %w", name, err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(name, extensionZstd):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream %s: %w", name, err)
		}
		defer zr.Close()
		r = zr
	}

	m, err := s.Load(r)
	if err != nil {
		return nil, fmt.Errorf("load symbol file %s: %w", name, err)
	}

	if fi, err := f.Stat(); err == nil {
		level.Debug(s.logger).Log("msg", "read symbol file", "file", name, "size", humanize.Bytes(uint64(fi.Size())))
	}
	return m, nil
}

// LoadFiles loads several symbol files concurrently. The modules are
// returned in the order of names.
func (s *Store) LoadFiles(names ...string) ([]*Module, error) {
	modules := make([]*Module, len(names))

	g := errgroup.Group{}
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			m, err := s.LoadFile(name)
			if err != nil {
				return err
			}
			modules[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return modules, nil
}

// Module returns a loaded module by checksum.
func (s *Store) Module(checksum uint64) (*Module, bool) {
	return s.modules.Load(checksum)
}

// Len returns the number of distinct modules loaded.
func (s *Store) Len() int {
	return s.modules.Size()
}

// Close drops every module and unregisters the cache metrics.
func (s *Store) Close() error {
	s.modules.Clear()
	return s.lookups.Close()
}

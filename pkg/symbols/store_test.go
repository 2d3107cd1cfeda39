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
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStore(log.NewNopLogger(), reg, 16)

	m, err := s.LoadFile(testSymbolFile)
	require.NoError(t, err)

	again, err := s.LoadFile(testSymbolFile)
	require.NoError(t, err)
	require.Same(t, m, again)

	got, ok := s.Module(m.Checksum)
	require.True(t, ok)
	require.Same(t, m, got)

	other, err := s.Load(strings.NewReader("STACK CFI INIT 10 8 .cfa: $rsp 8 + .ra: .cfa -8 + ^\n"))
	require.NoError(t, err)
	require.NotEqual(t, m.Checksum, other.Checksum)

	first, ok := m.UnwindInfoAt(0x1000)
	require.True(t, ok)
	second, ok := m.UnwindInfoAt(0x1000)
	require.True(t, ok)
	require.Equal(t, first, second)
	require.NotNil(t, first.Win)
	require.NotNil(t, first.CFIInit)

	// Misses are cached too, and the same address in another module is a
	// different key.
	_, ok = m.UnwindInfoAt(0x10)
	require.False(t, ok)
	_, ok = m.UnwindInfoAt(0x10)
	require.False(t, ok)
	_, ok = other.UnwindInfoAt(0x10)
	require.True(t, ok)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP cache_requests_total Total number of cache requests.
# TYPE cache_requests_total counter
cache_requests_total{cache="breakpad_unwind_info",result="hit"} 2
cache_requests_total{cache="breakpad_unwind_info",result="miss"} 3
`), "cache_requests_total"))

	require.Equal(t, 2, s.Len())
	require.NoError(t, s.Close())
	_, ok = s.Module(m.Checksum)
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func compressTestFile(t *testing.T, name string, compress func(io.Writer) (io.WriteCloser, error)) string {
	t.Helper()

	content, err := os.ReadFile(testSymbolFile)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := compress(f)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return path
}

func TestStoreLoadCompressed(t *testing.T) {
	gz := compressTestFile(t, "test.sym.gz", func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriter(w), nil
	})
	zst := compressTestFile(t, "test.sym.zst", func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})

	s := NewStore(log.NewNopLogger(), prometheus.NewRegistry(), 16)
	modules, err := s.LoadFiles(testSymbolFile, gz, zst)
	require.NoError(t, err)
	require.Len(t, modules, 3)

	// Same content, so the very same module.
	require.Same(t, modules[0], modules[1])
	require.Same(t, modules[0], modules[2])
	require.Equal(t, 1, s.Len())

	_, err = s.LoadFiles(testSymbolFile, "testdata/does-not-exist.sym")
	require.Error(t, err)
}

func TestStoreLoadCorruptCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.sym.gz")
	require.NoError(t, os.WriteFile(path, []byte("STACK CFI INIT 10 8 .cfa: 1 .ra: 2\n"), 0o600))

	s := NewStore(log.NewNopLogger(), prometheus.NewRegistry(), 16)
	_, err := s.LoadFile(path)
	require.Error(t, err)
}

func TestStoreLoadFileNotFound(t *testing.T) {
	s := NewStore(log.NewNopLogger(), prometheus.NewRegistry(), 16)
	_, err := s.LoadFile("testdata/does-not-exist.sym")
	require.Error(t, err)
}

func TestModuleWithoutStore(t *testing.T) {
	m := parseTestFile(t)

	info, ok := m.UnwindInfoAt(0x6001)
	require.True(t, ok)
	require.Nil(t, info.Win)
	require.NotNil(t, info.CFIInit)
	require.Len(t, info.CFIDiffs, 1)
}

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
//

package frame

import (
	"debug/elf"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUnsupportedArch(t *testing.T) {
	_, err := New(elf.EM_MIPS)
	require.ErrorIs(t, err, ErrArchNotSupported)
}

func TestRegisterAtAddress(t *testing.T) {
	f, err := New(elf.EM_X86_64)
	require.NoError(t, err)
	f.AddMemory(0x1000, []byte{1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0})

	v, ok := f.RegisterAtAddress(0x1000)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)

	v, ok = f.RegisterAtAddress(0x1004)
	require.True(t, ok)
	require.Equal(t, uint64(2)<<32, v)

	// Straddles the end of the region.
	_, ok = f.RegisterAtAddress(0x1005)
	require.False(t, ok)
	_, ok = f.RegisterAtAddress(0xfff)
	require.False(t, ok)
	_, ok = f.RegisterAtAddress(math.MaxUint64 - 3)
	require.False(t, ok)
}

func TestRegisterAtAddress32(t *testing.T) {
	f, err := New(elf.EM_386)
	require.NoError(t, err)
	f.AddMemory(0, []byte{0x34, 0x12, 0xcd, 0xab, 0x78, 0x56, 0xcd, 0xab})

	v, ok := f.RegisterAtAddress(4)
	require.True(t, ok)
	require.Equal(t, uint64(0xabcd5678), v)

	_, ok = f.RegisterAtAddress(5)
	require.False(t, ok)
}

func TestCallerRegisters(t *testing.T) {
	f, err := New(elf.EM_AARCH64)
	require.NoError(t, err)

	require.True(t, f.SetCFA(0x100))
	require.True(t, f.SetRA(0x200))
	require.True(t, f.SetCallerRegister("x11", 3))
	require.False(t, f.SetCallerRegister("rax", 3))

	require.Equal(t, map[string]uint64{"sp": 0x100, "pc": 0x200, "x11": 3}, f.CallerRegisters())

	f.ClearCallerRegister("x11")
	_, ok := f.CallerRegister("x11")
	require.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	f, err := LoadFile("testdata/fpo_leftover.yaml")
	require.NoError(t, err)

	require.Equal(t, elf.EM_386, f.Arch().Machine)
	require.False(t, f.HasGrandCallee())
	require.Equal(t, uint64(0xabcd1234), f.Instruction())

	eip, ok := f.CalleeRegister("eip")
	require.True(t, ok)
	require.Equal(t, uint64(0xabcd1234), eip)

	v, ok := f.RegisterAtAddress(0)
	require.True(t, ok)
	require.Equal(t, uint64(0xabcd1234), v)

	f, err = LoadFile("testdata/framedata_x86.yaml")
	require.NoError(t, err)
	require.True(t, f.HasGrandCallee())
	require.Equal(t, uint32(0), f.GrandCalleeParameterSize())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: "", wantErr: ErrEmptyFixture},
		{name: "unknown arch", input: "arch: mips", wantErr: ErrArchNotSupported},
		{name: "minimal", input: "arch: arm64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Load([]byte(tt.input))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, f)
		})
	}

	_, err := Load([]byte("arch: x86\nmemory:\n  - base: 0\n    bytes: zz\n"))
	require.Error(t, err)
}

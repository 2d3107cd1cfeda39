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

// Package frame provides an in-memory stack frame: the callee's registers,
// a snapshot of the stack memory, and the caller registers recovered so far.
package frame

import (
	"debug/elf"
	"encoding/binary"
	"math"
)

// Region is a contiguous chunk of target memory.
type Region struct {
	Base uint64
	Data []byte
}

func (r Region) read(address uint64, size int) ([]byte, bool) {
	if address < r.Base {
		return nil, false
	}
	offset := address - r.Base
	if offset >= uint64(len(r.Data)) || uint64(len(r.Data))-offset < uint64(size) {
		return nil, false
	}
	return r.Data[offset : offset+uint64(size)], true
}

// Frame is a callee frame and the caller frame being recovered from it.
// It is not safe for concurrent use.
type Frame struct {
	arch *Arch

	instruction              uint64
	hasGrandCallee           bool
	grandCalleeParameterSize uint32

	callee map[string]uint64
	caller map[string]uint64
	memory []Region
}

func New(machine elf.Machine) (*Frame, error) {
	arch, err := ArchFor(machine)
	if err != nil {
		return nil, err
	}
	return &Frame{
		arch:   arch,
		callee: map[string]uint64{},
		caller: map[string]uint64{},
	}, nil
}

func (f *Frame) Arch() *Arch {
	return f.arch
}

func (f *Frame) SetInstruction(pc uint64) {
	f.instruction = pc
}

// SetGrandCallee records that the callee called a function whose parameter
// area is paramSize bytes.
func (f *Frame) SetGrandCallee(paramSize uint32) {
	f.hasGrandCallee = true
	f.grandCalleeParameterSize = paramSize
}

func (f *Frame) SetCalleeRegister(name string, value uint64) {
	f.callee[name] = value
}

// AddMemory maps data at base. Regions are searched in the order they were
// added.
func (f *Frame) AddMemory(base uint64, data []byte) {
	f.memory = append(f.memory, Region{Base: base, Data: data})
}

// CallerRegister returns a recovered caller register.
func (f *Frame) CallerRegister(name string) (uint64, bool) {
	v, ok := f.caller[name]
	return v, ok
}

// CallerRegisters returns a copy of all recovered caller registers.
func (f *Frame) CallerRegisters() map[string]uint64 {
	regs := make(map[string]uint64, len(f.caller))
	for k, v := range f.caller {
		regs[k] = v
	}
	return regs
}

func (f *Frame) Instruction() uint64 {
	return f.instruction
}

func (f *Frame) HasGrandCallee() bool {
	return f.hasGrandCallee
}

func (f *Frame) GrandCalleeParameterSize() uint32 {
	return f.grandCalleeParameterSize
}

// RegisterAtAddress reads a pointer-sized little-endian value.
func (f *Frame) RegisterAtAddress(address uint64) (uint64, bool) {
	size := f.arch.PointerSize
	if address > math.MaxUint64-uint64(size) {
		return 0, false
	}
	for _, r := range f.memory {
		b, ok := r.read(address, size)
		if !ok {
			continue
		}
		if size == 4 {
			return uint64(binary.LittleEndian.Uint32(b)), true
		}
		return binary.LittleEndian.Uint64(b), true
	}
	return 0, false
}

func (f *Frame) CalleeRegister(name string) (uint64, bool) {
	v, ok := f.callee[name]
	return v, ok
}

func (f *Frame) SetCallerRegister(name string, value uint64) bool {
	if !f.arch.hasRegister(name) {
		return false
	}
	f.caller[name] = value
	return true
}

func (f *Frame) ClearCallerRegister(name string) {
	delete(f.caller, name)
}

func (f *Frame) SetCFA(value uint64) bool {
	return f.SetCallerRegister(f.arch.StackPointer, value)
}

func (f *Frame) SetRA(value uint64) bool {
	return f.SetCallerRegister(f.arch.InstructionPointer, value)
}

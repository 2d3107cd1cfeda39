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
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

var ErrArchNotSupported = errors.New("architecture not supported")

// Arch describes the register file of an architecture.
type Arch struct {
	Machine     elf.Machine
	PointerSize int
	// StackPointer receives the CFA, InstructionPointer the return address.
	StackPointer       string
	InstructionPointer string
	Registers          []string
}

// From the System V ABI Intel386 Architecture Processor Supplement, table 2.14.
var i386Regs = []string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi", "eip", "eflags",
}

// From 3.6.2 DWARF Register Number Mapping for x86_64, Fig 3.36
// https://refspecs.linuxbase.org/elf/x86_64-abi-0.99.pdf
var x86_64Regs = []string{
	"rax", "rdx", "rcx", "rbx", "rsi", "rdi", "rbp", "rsp", "r8", "r9", "r10", "r11",
	"r12", "r13", "r14", "r15", "rip",
}

// From 4.1 DWARF Register Names for Aarch64/Arm64
// https://github.com/ARM-software/abi-aa/blob/2023q1-release/aadwarf64/aadwarf64.rst#dwarf-register-names
var arm64Regs = []string{
	"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7", "x8", "x9", "x10", "x11",
	"x12", "x13", "x14", "x15", "x16", "x17", "x18", "x19", "x20",
	"x21", "x22", "x23", "x24", "x25", "x26", "x27", "x28", "x29", "x30",
	"sp", "pc",
}

var archs = map[elf.Machine]*Arch{
	elf.EM_386: {
		Machine:            elf.EM_386,
		PointerSize:        4,
		StackPointer:       "esp",
		InstructionPointer: "eip",
		Registers:          i386Regs,
	},
	elf.EM_X86_64: {
		Machine:            elf.EM_X86_64,
		PointerSize:        8,
		StackPointer:       "rsp",
		InstructionPointer: "rip",
		Registers:          x86_64Regs,
	},
	elf.EM_AARCH64: {
		Machine:            elf.EM_AARCH64,
		PointerSize:        8,
		StackPointer:       "sp",
		InstructionPointer: "pc",
		Registers:          arm64Regs,
	},
}

// ArchFor returns the register file description for machine.
func ArchFor(machine elf.Machine) (*Arch, error) {
	arch, ok := archs[machine]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArchNotSupported, machine)
	}
	return arch, nil
}

func (a *Arch) hasRegister(name string) bool {
	return slices.Contains(a.Registers, name)
}

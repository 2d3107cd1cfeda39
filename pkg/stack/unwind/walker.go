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

package unwind

import (
	"errors"
)

var (
	ErrMissingCFA          = errors.New("no .cfa rule")
	ErrMissingRA           = errors.New("no .ra rule")
	ErrRegisterUnavailable = errors.New("callee register unavailable")
	ErrMemoryRead          = errors.New("failed to read memory")
	ErrSetRegister         = errors.New("failed to set caller register")
	ErrWrongPayload        = errors.New("STACK WIN payload does not match the walker")
)

// FrameWalker gives the unwinder access to the frame being unwound (the
// callee) and to the frame being recovered (the caller).
type FrameWalker interface {
	// Instruction returns the address of the current instruction in the
	// callee.
	Instruction() uint64
	// HasGrandCallee reports whether the frame called by the callee is known.
	HasGrandCallee() bool
	// GrandCalleeParameterSize is the size of the grand callee's parameter
	// area. Only meaningful if HasGrandCallee.
	GrandCalleeParameterSize() uint32
	// RegisterAtAddress reads one register-sized value from memory.
	RegisterAtAddress(address uint64) (uint64, bool)
	// CalleeRegister returns the value of a register in the callee.
	CalleeRegister(name string) (uint64, bool)
	// SetCallerRegister fails if name is not a register of the architecture.
	SetCallerRegister(name string, value uint64) bool
	// ClearCallerRegister marks a caller register as unknown.
	ClearCallerRegister(name string)
	// SetCFA and SetRA let the implementation derive the caller's stack and
	// instruction pointers from the canonical frame address and return
	// address.
	SetCFA(value uint64) bool
	SetRA(value uint64) bool
}

// CFIRecord is one STACK CFI line: the address from which its rules apply
// and the unparsed rules themselves.
type CFIRecord struct {
	Address uint64
	Rules   string
}

// WinInfo is a STACK WIN record.
type WinInfo struct {
	Address           uint64
	Size              uint32
	PrologueSize      uint32
	EpilogueSize      uint32
	ParameterSize     uint32
	SavedRegisterSize uint32
	LocalSize         uint32
	MaxStackSize      uint32
	// Payload is either a ProgramString (frame data records) or an
	// AllocatesBasePointer (FPO records).
	Payload WinPayload
}

// WinPayload is implemented by ProgramString and AllocatesBasePointer.
type WinPayload interface {
	winPayload()
}

// ProgramString is the postfix program of a frame data record.
type ProgramString string

// AllocatesBasePointer is the only piece of information an FPO record has
// besides its sizes.
type AllocatesBasePointer bool

func (ProgramString) winPayload()        {}
func (AllocatesBasePointer) winPayload() {}

func grandCalleeParameterSize(w FrameWalker) uint32 {
	if !w.HasGrandCallee() {
		return 0
	}
	return w.GrandCalleeParameterSize()
}

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
	"fmt"
	"strings"

	"github.com/parca-dev/breakpad-unwind/internal/breakpad/win"
)

// STACK WIN records only describe 32-bit x86 frames.
const winRegisterSize = 4

// The caller registers STACK WIN unwinding can recover. Nothing else is
// ever forwarded from the callee.
var winOutputRegisters = [...]string{"eip", "esp", "ebp", "ebx", "esi", "edi"}

type winRegisterValue struct {
	name  string
	value uint32
}

func clearWinOutputRegisters(w FrameWalker) {
	for _, reg := range winOutputRegisters {
		w.ClearCallerRegister(reg)
	}
}

// setWinCallerRegisters sets every output or, if one cannot be set, none.
func setWinCallerRegisters(w FrameWalker, outputs []winRegisterValue) error {
	for _, out := range outputs {
		if !w.SetCallerRegister(out.name, uint64(out.value)) {
			clearWinOutputRegisters(w)
			return fmt.Errorf("%w: %s", ErrSetRegister, out.name)
		}
	}
	return nil
}

func calleeRegister32(w FrameWalker, name string) (uint32, error) {
	v, ok := w.CalleeRegister(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRegisterUnavailable, name)
	}
	return uint32(v), nil
}

func readRegister32(w FrameWalker, address uint32) (uint32, error) {
	v, ok := w.RegisterAtAddress(uint64(address))
	if !ok {
		return 0, fmt.Errorf("%w at %#x", ErrMemoryRead, address)
	}
	return uint32(v), nil
}

func frameSize(info WinInfo, grandCalleeParams uint32) uint32 {
	return info.LocalSize + info.SavedRegisterSize + grandCalleeParams
}

// WalkWinFrameData recovers the caller registers by running the program
// string of a STACK WIN frame data record. Only the registers the program
// assigns are set in the caller.
func WalkWinFrameData(info WinInfo, w FrameWalker) error {
	program, ok := info.Payload.(ProgramString)
	if !ok {
		return fmt.Errorf("%w: frame data walker got %T", ErrWrongPayload, info.Payload)
	}

	clearWinOutputRegisters(w)

	esp, err := calleeRegister32(w, "esp")
	if err != nil {
		return err
	}
	ebp, err := calleeRegister32(w, "ebp")
	if err != nil {
		return err
	}

	grandCalleeParams := grandCalleeParameterSize(w)
	size := frameSize(info, grandCalleeParams)

	// .raSearch is not refined by scanning the stack. An alignment operator
	// means the frame was realigned, so the search starts above ebp instead.
	searchStart := esp + size
	if strings.Contains(string(program), "@") {
		searchStart = ebp + winRegisterSize
	}

	vars := win.Variables{
		"$esp":            esp,
		"$ebp":            ebp,
		".cbParams":       info.ParameterSize,
		".cbCalleeParams": grandCalleeParams,
		".cbSavedRegs":    info.SavedRegisterSize,
		".cbLocals":       info.LocalSize,
		".raSearch":       searchStart,
		".raSearchStart":  searchStart,
	}
	if ebx, ok := w.CalleeRegister("ebx"); ok {
		vars["$ebx"] = uint32(ebx)
	}

	if err := win.Evaluate(string(program), vars, w); err != nil {
		return fmt.Errorf("evaluate program %q: %w", program, err)
	}

	outputs := make([]winRegisterValue, 0, len(winOutputRegisters))
	for _, reg := range winOutputRegisters {
		if v, ok := vars["$"+reg]; ok {
			outputs = append(outputs, winRegisterValue{reg, v})
		}
	}
	return setWinCallerRegisters(w, outputs)
}

// WalkWinFPO recovers the caller registers of a frame described by a STACK
// WIN FPO record.
func WalkWinFPO(info WinInfo, w FrameWalker) error {
	return walkWinFPO(info, w, true)
}

func walkWinFPO(info WinInfo, w FrameWalker, fixLeftoverReturnAddress bool) error {
	allocatesBasePointer, ok := info.Payload.(AllocatesBasePointer)
	if !ok {
		return fmt.Errorf("%w: FPO walker got %T", ErrWrongPayload, info.Payload)
	}

	clearWinOutputRegisters(w)

	grandCalleeParams := grandCalleeParameterSize(w)
	size := frameSize(info, grandCalleeParams)

	esp, err := calleeRegister32(w, "esp")
	if err != nil {
		return err
	}

	eipAddress := esp + size
	eip, err := readRegister32(w, eipAddress)
	if err != nil {
		return err
	}

	// A context frame sometimes still has its own return address on top of
	// the stack, in which case the real one is right above it.
	if fixLeftoverReturnAddress && !w.HasGrandCallee() {
		if calleeEIP, ok := w.CalleeRegister("eip"); ok && uint32(calleeEIP) == eip {
			eipAddress += winRegisterSize
			if eip, err = readRegister32(w, eipAddress); err != nil {
				return err
			}
		}
	}

	callerESP := eipAddress + winRegisterSize

	var (
		ebp    uint32
		ebx    uint32
		hasEBX bool
	)
	if allocatesBasePointer {
		ebpAddress := esp + grandCalleeParams + info.SavedRegisterSize - 8
		if ebp, err = readRegister32(w, ebpAddress); err != nil {
			return err
		}
	} else {
		if ebp, err = calleeRegister32(w, "ebp"); err != nil {
			return err
		}
		if v, ok := w.CalleeRegister("ebx"); ok {
			ebx, hasEBX = uint32(v), true
		}
	}

	outputs := []winRegisterValue{
		{"eip", eip},
		{"esp", callerESP},
		{"ebp", ebp},
	}
	if hasEBX {
		outputs = append(outputs, winRegisterValue{"ebx", ebx})
	}
	return setWinCallerRegisters(w, outputs)
}

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
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/parca-dev/breakpad-unwind/pkg/hash"
	"github.com/parca-dev/breakpad-unwind/pkg/stack/unwind"
)

var ErrMalformedRecord = errors.New("malformed STACK record")

const (
	prefixCFIInit = "STACK CFI INIT "
	prefixCFI     = "STACK CFI "
	prefixWin     = "STACK WIN "

	// FUNC lines of C++ symbol files can be very long.
	maxLineSize = 1024 * 1024
)

// WinType is the kind of frame a STACK WIN record describes.
type WinType uint8

const (
	WinFPO WinType = iota
	WinTrap
	WinTSS
	WinStandard
	WinFrameData
)

func (t WinType) String() string {
	switch t {
	case WinFPO:
		return "FPO"
	case WinTrap:
		return "TRAP"
	case WinTSS:
		return "TSS"
	case WinStandard:
		return "STANDARD"
	case WinFrameData:
		return "FRAME_DATA"
	default:
		return fmt.Sprintf("WinType(%d)", uint8(t))
	}
}

// Parse reads the STACK records of a Breakpad symbol file. Every other kind
// of record is ignored, and malformed STACK lines are skipped.
func Parse(logger log.Logger, r io.Reader) (*Module, error) {
	h, err := hash.New()
	if err != nil {
		return nil, fmt.Errorf("create hash: %w", err)
	}

	b := newModuleBuilder()
	s := bufio.NewScanner(io.TeeReader(r, h))
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for n := 1; s.Scan(); n++ {
		if err := b.addLine(s.Text()); err != nil {
			level.Debug(logger).Log("msg", "skipping malformed STACK record", "line", n, "err", err)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read symbol file: %w", err)
	}

	return b.build(h.Sum64()), nil
}

type moduleBuilder struct {
	cfi []cfiEntry
	win map[WinType][]unwind.WinInfo
}

func newModuleBuilder() *moduleBuilder {
	return &moduleBuilder{win: map[WinType][]unwind.WinInfo{}}
}

func (b *moduleBuilder) addLine(line string) error {
	line = strings.TrimRight(line, "\r")

	switch {
	case strings.HasPrefix(line, prefixCFIInit):
		e, err := parseCFIInit(line[len(prefixCFIInit):])
		if err != nil {
			return err
		}
		b.cfi = append(b.cfi, e)
	case strings.HasPrefix(line, prefixCFI):
		diff, err := parseCFI(line[len(prefixCFI):])
		if err != nil {
			return err
		}
		if len(b.cfi) == 0 {
			return fmt.Errorf("%w: STACK CFI before any STACK CFI INIT", ErrMalformedRecord)
		}
		last := &b.cfi[len(b.cfi)-1]
		last.diffs = append(last.diffs, diff)
	case strings.HasPrefix(line, prefixWin):
		typ, info, err := parseWin(line[len(prefixWin):])
		if err != nil {
			return err
		}
		b.win[typ] = append(b.win[typ], info)
	}
	return nil
}

// STACK CFI INIT <address> <size> <rules>
func parseCFIInit(s string) (cfiEntry, error) {
	fields := strings.SplitN(s, " ", 3)
	if len(fields) != 3 {
		return cfiEntry{}, fmt.Errorf("%w: STACK CFI INIT needs an address, a size and rules", ErrMalformedRecord)
	}
	address, err := parseHex(fields[0], 64)
	if err != nil {
		return cfiEntry{}, err
	}
	size, err := parseHex(fields[1], 64)
	if err != nil {
		return cfiEntry{}, err
	}
	return cfiEntry{
		init: unwind.CFIRecord{Address: address, Rules: fields[2]},
		size: size,
	}, nil
}

// STACK CFI <address> <rules>
func parseCFI(s string) (unwind.CFIRecord, error) {
	fields := strings.SplitN(s, " ", 2)
	if len(fields) != 2 {
		return unwind.CFIRecord{}, fmt.Errorf("%w: STACK CFI needs an address and rules", ErrMalformedRecord)
	}
	address, err := parseHex(fields[0], 64)
	if err != nil {
		return unwind.CFIRecord{}, err
	}
	return unwind.CFIRecord{Address: address, Rules: fields[1]}, nil
}

// STACK WIN <type> <rva> <code_size> <prologue_size> <epilogue_size>
// <parameter_size> <saved_register_size> <local_size> <max_stack_size>
// <has_program_string> <program_string | allocates_base_pointer>
func parseWin(s string) (WinType, unwind.WinInfo, error) {
	fields := strings.SplitN(s, " ", 11)
	if len(fields) != 11 {
		return 0, unwind.WinInfo{}, fmt.Errorf("%w: STACK WIN needs 11 fields, got %d", ErrMalformedRecord, len(fields))
	}

	typ, err := parseHex(fields[0], 8)
	if err != nil {
		return 0, unwind.WinInfo{}, err
	}
	if WinType(typ) > WinFrameData {
		return 0, unwind.WinInfo{}, fmt.Errorf("%w: unknown STACK WIN type %d", ErrMalformedRecord, typ)
	}
	address, err := parseHex(fields[1], 64)
	if err != nil {
		return 0, unwind.WinInfo{}, err
	}

	var sizes [7]uint32
	for i := range sizes {
		v, err := parseHex(fields[i+2], 32)
		if err != nil {
			return 0, unwind.WinInfo{}, err
		}
		sizes[i] = uint32(v)
	}

	hasProgramString, err := parseHex(fields[9], 8)
	if err != nil {
		return 0, unwind.WinInfo{}, err
	}

	info := unwind.WinInfo{
		Address:           address,
		Size:              sizes[0],
		PrologueSize:      sizes[1],
		EpilogueSize:      sizes[2],
		ParameterSize:     sizes[3],
		SavedRegisterSize: sizes[4],
		LocalSize:         sizes[5],
		MaxStackSize:      sizes[6],
	}
	if hasProgramString != 0 {
		info.Payload = unwind.ProgramString(fields[10])
	} else {
		allocatesBasePointer, err := parseHex(fields[10], 8)
		if err != nil {
			return 0, unwind.WinInfo{}, err
		}
		info.Payload = unwind.AllocatesBasePointer(allocatesBasePointer != 0)
	}
	return WinType(typ), info, nil
}

func parseHex(s string, bitSize int) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return v, nil
}

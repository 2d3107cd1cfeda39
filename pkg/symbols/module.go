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

// Package symbols indexes the STACK CFI and STACK WIN records of Breakpad
// symbol files and uses them to unwind frames.
package symbols

import (
	"cmp"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/parca-dev/breakpad-unwind/pkg/cache"
	"github.com/parca-dev/breakpad-unwind/pkg/stack/unwind"
)

var ErrNoUnwindInfo = errors.New("no unwind information for address")

type cfiEntry struct {
	init  unwind.CFIRecord
	size  uint64
	diffs []unwind.CFIRecord
}

func (e cfiEntry) covers(address uint64) bool {
	return address >= e.init.Address && address-e.init.Address < e.size
}

// UnwindInfo is what a module knows about unwinding at one address. Win is
// preferred over CFI when both are set.
type UnwindInfo struct {
	Win *unwind.WinInfo

	CFIInit  *unwind.CFIRecord
	CFIDiffs []unwind.CFIRecord
}

func (i UnwindInfo) empty() bool {
	return i.Win == nil && i.CFIInit == nil
}

type lookupKey struct {
	checksum uint64
	address  uint64
}

// Module is the unwind information of one symbol file. It is immutable once
// parsed and safe for concurrent use.
type Module struct {
	// Checksum identifies the content of the symbol file.
	Checksum uint64

	// Sorted by start address.
	cfi []cfiEntry
	win map[WinType][]unwind.WinInfo

	lookups *cache.LRUCache[lookupKey, UnwindInfo]
}

func (b *moduleBuilder) build(checksum uint64) *Module {
	slices.SortStableFunc(b.cfi, func(a, b cfiEntry) int {
		return cmp.Compare(a.init.Address, b.init.Address)
	})
	for _, e := range b.cfi {
		slices.SortStableFunc(e.diffs, func(a, b unwind.CFIRecord) int {
			return cmp.Compare(a.Address, b.Address)
		})
	}
	for _, infos := range b.win {
		slices.SortStableFunc(infos, func(a, b unwind.WinInfo) int {
			return cmp.Compare(a.Address, b.Address)
		})
	}
	return &Module{
		Checksum: checksum,
		cfi:      b.cfi,
		win:      b.win,
	}
}

// NumCFIRecords returns the number of STACK CFI INIT records.
func (m *Module) NumCFIRecords() int {
	return len(m.cfi)
}

// NumWinRecords returns the number of STACK WIN records of the given type.
func (m *Module) NumWinRecords(typ WinType) int {
	return len(m.win[typ])
}

// CFIRulesAt returns the STACK CFI INIT record covering address and the
// STACK CFI records that apply at address, in address order.
func (m *Module) CFIRulesAt(address uint64) (unwind.CFIRecord, []unwind.CFIRecord, bool) {
	i := innermostCovering(m.cfi, address,
		func(e cfiEntry) uint64 { return e.init.Address },
		func(e cfiEntry) bool { return e.covers(address) },
	)
	if i < 0 {
		return unwind.CFIRecord{}, nil, false
	}

	e := m.cfi[i]
	n, _ := slices.BinarySearchFunc(e.diffs, address, func(r unwind.CFIRecord, address uint64) int {
		return cmp.Compare(r.Address, address)
	})
	for n < len(e.diffs) && e.diffs[n].Address == address {
		n++
	}
	return e.init, e.diffs[:n:n], true
}

// WinInfoAt returns the STACK WIN record covering address. Frame data
// records take precedence over FPO records; the other types are never used
// for unwinding.
func (m *Module) WinInfoAt(address uint64) (unwind.WinInfo, bool) {
	for _, typ := range []WinType{WinFrameData, WinFPO} {
		infos := m.win[typ]
		i := innermostCovering(infos, address,
			func(info unwind.WinInfo) uint64 { return info.Address },
			func(info unwind.WinInfo) bool { return address-info.Address < uint64(info.Size) },
		)
		if i >= 0 {
			return infos[i], true
		}
	}
	return unwind.WinInfo{}, false
}

// UnwindInfoAt combines WinInfoAt and CFIRulesAt. Results are cached if the
// module was loaded through a Store.
func (m *Module) UnwindInfoAt(address uint64) (UnwindInfo, bool) {
	key := lookupKey{checksum: m.Checksum, address: address}
	if m.lookups != nil {
		if info, ok := m.lookups.Get(key); ok {
			return info, !info.empty()
		}
	}

	var info UnwindInfo
	if win, ok := m.WinInfoAt(address); ok {
		info.Win = &win
	}
	if init, diffs, ok := m.CFIRulesAt(address); ok {
		info.CFIInit = &init
		info.CFIDiffs = diffs
	}

	if m.lookups != nil {
		m.lookups.Add(key, info)
	}
	return info, !info.empty()
}

// WalkFrame recovers the caller of the frame w describes. moduleBase is the
// address the module is loaded at. STACK WIN records are tried first, then
// STACK CFI.
func (m *Module) WalkFrame(u *unwind.Unwinder, w unwind.FrameWalker, moduleBase uint64) error {
	pc := w.Instruction()
	if pc < moduleBase {
		return fmt.Errorf("%w: %#x is below the module base %#x", ErrNoUnwindInfo, pc, moduleBase)
	}
	address := pc - moduleBase

	info, ok := m.UnwindInfoAt(address)
	if !ok {
		return fmt.Errorf("%w: %#x", ErrNoUnwindInfo, address)
	}

	if info.Win != nil {
		err := u.WalkWin(*info.Win, w)
		if err == nil || info.CFIInit == nil {
			return err
		}
	}
	return u.WalkCFI(*info.CFIInit, info.CFIDiffs, w)
}

// innermostCovering returns the index of the element of s, sorted by start,
// that covers address and starts last, or -1. Records may nest, so the last
// one starting at or before address is not necessarily the one covering it.
func innermostCovering[E any](s []E, address uint64, start func(E) uint64, covers func(E) bool) int {
	i, _ := slices.BinarySearchFunc(s, address, func(e E, address uint64) int {
		return cmp.Compare(start(e), address)
	})
	for i < len(s) && start(s[i]) == address {
		i++
	}
	for i--; i >= 0; i-- {
		if covers(s[i]) {
			return i
		}
	}
	return -1
}

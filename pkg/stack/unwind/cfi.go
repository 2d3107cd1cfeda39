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

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/parca-dev/breakpad-unwind/internal/breakpad/cfi"
)

// registerFailureFunc is told about every general purpose register that
// could not be recovered.
type registerFailureFunc func(register string, err error)

// WalkCFI recovers the caller registers described by a STACK CFI INIT
// record and the diffs that apply at the current instruction, in address
// order. The caller is responsible for the selection of diffs.
//
// Failing to recover the CFA or the return address fails the whole frame.
// Any other register that cannot be recovered is cleared in the caller.
func WalkCFI(init CFIRecord, diffs []CFIRecord, w FrameWalker) error {
	return walkCFI(init, diffs, w, nil)
}

func walkCFI(init CFIRecord, diffs []CFIRecord, w FrameWalker, onFailure registerFailureFunc) error {
	rules := cfi.Rules{}
	if err := rules.Merge(init.Rules); err != nil {
		return fmt.Errorf("parse STACK CFI INIT %x: %w", init.Address, err)
	}
	for _, diff := range diffs {
		if err := rules.Merge(diff.Rules); err != nil {
			return fmt.Errorf("parse STACK CFI %x: %w", diff.Address, err)
		}
	}

	cfaExpr, ok := rules[cfi.CFA]
	if !ok {
		return ErrMissingCFA
	}
	raExpr, ok := rules[cfi.RA]
	if !ok {
		return ErrMissingRA
	}
	delete(rules, cfi.CFA)
	delete(rules, cfi.RA)

	cfa, err := cfi.Evaluate(cfaExpr, w, nil)
	if err != nil {
		return fmt.Errorf("evaluate .cfa %q: %w", cfaExpr, err)
	}
	ra, err := cfi.Evaluate(raExpr, w, &cfa)
	if err != nil {
		return fmt.Errorf("evaluate .ra %q: %w", raExpr, err)
	}

	if !w.SetCFA(cfa) {
		return fmt.Errorf("%w: .cfa", ErrSetRegister)
	}
	if !w.SetRA(ra) {
		return fmt.Errorf("%w: .ra", ErrSetRegister)
	}

	registers := maps.Keys(rules)
	slices.SortFunc(registers, func(a, b cfi.Register) int {
		return strings.Compare(a.Name, b.Name)
	})
	for _, reg := range registers {
		if reg.Kind != cfi.RegisterNamed {
			panic(fmt.Sprintf("register %s left in rules after extraction", reg))
		}

		v, err := cfi.Evaluate(rules[reg], w, &cfa)
		if err == nil && !w.SetCallerRegister(reg.Name, v) {
			err = ErrSetRegister
		}
		if err != nil {
			// Don't let the caller inherit the callee's value.
			w.ClearCallerRegister(reg.Name)
			if onFailure != nil {
				onFailure(reg.Name, err)
			}
		}
	}

	return nil
}

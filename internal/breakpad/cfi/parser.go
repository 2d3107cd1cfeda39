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

package cfi

import (
	"fmt"
	"strings"

	"github.com/parca-dev/breakpad-unwind/internal/breakpad/postfix"
)

// Rules maps registers to the postfix expression that recovers their value
// in the caller frame.
type Rules map[Register]string

// ParseRules parses the rules of a single STACK CFI record, e.g.
//
//	.cfa: $rsp 8 + .ra: .cfa -8 + ^
func ParseRules(text string) (Rules, error) {
	rules := Rules{}
	if err := rules.Merge(text); err != nil {
		return nil, err
	}
	return rules, nil
}

// Merge parses text and adds its rules to r. A register that already has a
// rule is overwritten, which is how both INIT+diff records and repeated
// registers within one record are resolved.
//
// r may be partially updated when an error is returned.
func (r Rules) Merge(text string) error {
	var (
		current    Register
		open       bool
		empty      bool
		start, end int
	)

	flush := func() error {
		if !open {
			return nil
		}
		if empty {
			return fmt.Errorf("%w: %s", ErrEmptyExpression, current)
		}
		r[current] = text[start:end]
		return nil
	}

	for _, tok := range postfix.Tokenize(text) {
		if tag, ok := strings.CutSuffix(tok.Text, ":"); ok {
			if err := flush(); err != nil {
				return err
			}
			reg, err := parseRegister(tag)
			if err != nil {
				return err
			}
			current, open, empty = reg, true, true
			continue
		}

		if !open {
			return fmt.Errorf("%w: expected a register before %q", ErrMalformedRules, tok.Text)
		}
		if empty {
			start, empty = tok.Start, false
		}
		end = tok.End
	}

	return flush()
}

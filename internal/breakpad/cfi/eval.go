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

// Package cfi implements the STACK CFI rule language of Breakpad symbol
// files: parsing a record into per-register postfix expressions and
// evaluating those expressions against a stack frame.
package cfi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/parca-dev/breakpad-unwind/internal/breakpad/postfix"
)

var (
	ErrMalformedRules      = errors.New("malformed CFI rules")
	ErrEmptyExpression     = errors.New("register has an empty expression")
	ErrStackUnderflow      = errors.New("not enough values on the stack")
	ErrUndefined           = errors.New("value is explicitly undefined")
	ErrNoCFA               = errors.New(".cfa is not available")
	ErrUnknownRegister     = errors.New("unknown register")
	ErrMemoryRead          = errors.New("failed to read memory")
	ErrMalformedExpression = errors.New("expression must leave exactly one value on the stack")
)

// Frame is what the evaluator needs to know about the callee frame.
type Frame interface {
	// RegisterAtAddress reads one register-sized value from memory.
	RegisterAtAddress(address uint64) (uint64, bool)
	// CalleeRegister returns the value of a register in the frame being
	// unwound.
	CalleeRegister(name string) (uint64, bool)
}

// Evaluate runs a postfix expression and returns the single value it
// produces. cfa is nil while the CFA itself is being computed, so that
// expressions referring to `.cfa` fail instead of recursing.
func Evaluate(expr string, f Frame, cfa *uint64) (uint64, error) {
	stack := make([]uint64, 0, 4)

	for _, tok := range postfix.Tokenize(expr) {
		token := tok.Text

		switch {
		case postfix.IsBinaryOperator(token):
			if len(stack) < 2 {
				return 0, fmt.Errorf("%w: %q", ErrStackUnderflow, token)
			}
			lhs, rhs := stack[len(stack)-2], stack[len(stack)-1]
			v, err := postfix.Apply(token, lhs, rhs)
			if err != nil {
				return 0, fmt.Errorf("%d %d %s: %w", lhs, rhs, token, err)
			}
			stack = append(stack[:len(stack)-2], v)

		case token == "^":
			if len(stack) < 1 {
				return 0, fmt.Errorf("%w: %q", ErrStackUnderflow, token)
			}
			addr := stack[len(stack)-1]
			v, ok := f.RegisterAtAddress(addr)
			if !ok {
				return 0, fmt.Errorf("%w at %#x", ErrMemoryRead, addr)
			}
			stack[len(stack)-1] = v

		case token == ".cfa":
			if cfa == nil {
				return 0, ErrNoCFA
			}
			stack = append(stack, *cfa)

		case token == ".undef":
			return 0, ErrUndefined

		default:
			if v, err := strconv.ParseInt(token, 10, 64); err == nil {
				stack = append(stack, uint64(v))
				continue
			}
			name := strings.TrimPrefix(token, "$")
			v, ok := f.CalleeRegister(name)
			if name == "" || !ok {
				return 0, fmt.Errorf("%w: %q", ErrUnknownRegister, token)
			}
			stack = append(stack, v)
		}
	}

	if len(stack) != 1 {
		return 0, fmt.Errorf("%w: got %d", ErrMalformedExpression, len(stack))
	}
	return stack[0], nil
}

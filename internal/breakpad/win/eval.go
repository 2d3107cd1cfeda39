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

// Package win evaluates the program strings of STACK WIN frame data records.
//
// A program string is a sequence of postfix assignments such as
//
//	$T0 $ebp = $eip $T0 4 + ^ = $ebp $T0 ^ = $esp $T0 8 + =
//
// Its result is the set of variables it leaves behind, not a value.
package win

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/parca-dev/breakpad-unwind/internal/breakpad/postfix"
)

var (
	ErrStackUnderflow    = errors.New("not enough values on the stack")
	ErrUndefined         = errors.New(".undef used as a value")
	ErrUndefinedVariable = errors.New("variable is not defined")
	ErrInvalidAssignment = errors.New("left-hand side of assignment is not a variable")
	ErrUnknownToken      = errors.New("unknown token")
	ErrMemoryRead        = errors.New("failed to read memory")
)

// Variables is the environment a program reads and assigns. Keys keep their
// sigil: `$ebp`, `.cbParams`.
type Variables map[string]uint32

// Frame is what the evaluator needs to know about the callee frame.
type Frame interface {
	// RegisterAtAddress reads one 32-bit value from memory.
	RegisterAtAddress(address uint64) (uint64, bool)
}

type kind uint8

const (
	kindInt kind = iota
	kindVar
	kindUndef
)

// value is a stack cell. Variables are pushed by name and only looked up
// when an operator consumes them, so that they can be assigned to.
type value struct {
	kind kind
	n    uint32
	name string
}

func (v value) String() string {
	switch v.kind {
	case kindVar:
		return v.name
	case kindUndef:
		return ".undef"
	default:
		return strconv.FormatUint(uint64(v.n), 10)
	}
}

func (v value) resolve(vars Variables) (uint32, error) {
	switch v.kind {
	case kindInt:
		return v.n, nil
	case kindVar:
		n, ok := vars[v.name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUndefinedVariable, v.name)
		}
		return n, nil
	default:
		return 0, ErrUndefined
	}
}

type machine struct {
	stack []value
	vars  Variables
	frame Frame
}

func (m *machine) push(v value) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop(token string) (value, error) {
	if len(m.stack) == 0 {
		return value{}, fmt.Errorf("%w: %q", ErrStackUnderflow, token)
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *machine) popInt(token string) (uint32, error) {
	v, err := m.pop(token)
	if err != nil {
		return 0, err
	}
	return v.resolve(m.vars)
}

// Evaluate runs program against vars, which it mutates in place. Values left
// on the stack at the end are ignored.
func Evaluate(program string, vars Variables, f Frame) error {
	m := &machine{
		stack: make([]value, 0, 8),
		vars:  vars,
		frame: f,
	}

	for _, token := range tokens(program) {
		if err := m.step(token); err != nil {
			return err
		}
	}
	return nil
}

func (m *machine) step(token string) error {
	switch {
	case postfix.IsBinaryOperator(token):
		rhs, err := m.popInt(token)
		if err != nil {
			return err
		}
		lhs, err := m.popInt(token)
		if err != nil {
			return err
		}
		n, err := postfix.Apply(token, lhs, rhs)
		if err != nil {
			return fmt.Errorf("%d %d %s: %w", lhs, rhs, token, err)
		}
		m.push(value{kind: kindInt, n: n})

	case token == "^":
		addr, err := m.popInt(token)
		if err != nil {
			return err
		}
		n, ok := m.frame.RegisterAtAddress(uint64(addr))
		if !ok {
			return fmt.Errorf("%w at %#x", ErrMemoryRead, addr)
		}
		m.push(value{kind: kindInt, n: uint32(n)})

	case token == "=":
		rhs, err := m.pop(token)
		if err != nil {
			return err
		}
		lhs, err := m.pop(token)
		if err != nil {
			return err
		}
		if lhs.kind != kindVar {
			return fmt.Errorf("%w: %s", ErrInvalidAssignment, lhs)
		}
		if rhs.kind == kindUndef {
			delete(m.vars, lhs.name)
			return nil
		}
		n, err := rhs.resolve(m.vars)
		if err != nil {
			return err
		}
		m.vars[lhs.name] = n

	case token == ".undef":
		m.push(value{kind: kindUndef})

	case strings.HasPrefix(token, "$") || strings.HasPrefix(token, "."):
		m.push(value{kind: kindVar, name: token})

	default:
		n, err := strconv.ParseInt(token, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownToken, token)
		}
		m.push(value{kind: kindInt, n: uint32(n)})
	}
	return nil
}

// tokens splits a program into words. Some toolchains emit `=$eip` without
// the space after the assignment operator, so a leading `=` is split off
// into its own token.
func tokens(program string) []string {
	words := postfix.Tokenize(program)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w.Text) > 1 && w.Text[0] == '=' {
			out = append(out, "=", w.Text[1:])
			continue
		}
		out = append(out, w.Text)
	}
	return out
}

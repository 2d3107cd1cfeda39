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

// Package postfix holds the pieces shared by the STACK CFI and STACK WIN
// expression languages: whitespace tokenization that keeps byte offsets, and
// the binary operators, which behave the same in both languages modulo the
// width of the value they operate on.
package postfix

import (
	"errors"

	"golang.org/x/exp/constraints"
)

var (
	ErrDivisionByZero   = errors.New("division by zero")
	ErrInvalidAlignment = errors.New("alignment is not a non-zero power of two")
	ErrUnknownOperator  = errors.New("unknown operator")
)

// Token is a whitespace-delimited word and its position in the source text.
type Token struct {
	Text string
	// Start and End are byte offsets, End exclusive.
	Start, End int
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

// Tokenize splits s on ASCII whitespace.
func Tokenize(s string) []Token {
	tokens := make([]Token, 0, 8)
	i := 0
	for i < len(s) {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i == len(s) {
			break
		}
		start := i
		for i < len(s) && !isSpace(s[i]) {
			i++
		}
		tokens = append(tokens, Token{Text: s[start:i], Start: start, End: i})
	}
	return tokens
}

// IsBinaryOperator reports whether op pops two operands and pushes one result.
func IsBinaryOperator(op string) bool {
	switch op {
	case "+", "-", "*", "/", "%", "@":
		return true
	default:
		return false
	}
}

// Apply evaluates `lhs rhs op`. All arithmetic wraps around.
func Apply[T constraints.Unsigned](op string, lhs, rhs T) (T, error) {
	switch op {
	case "+":
		return lhs + rhs, nil
	case "-":
		return lhs - rhs, nil
	case "*":
		return lhs * rhs, nil
	case "/":
		if rhs == 0 {
			return 0, ErrDivisionByZero
		}
		return lhs / rhs, nil
	case "%":
		if rhs == 0 {
			return 0, ErrDivisionByZero
		}
		return lhs % rhs, nil
	case "@":
		// Rounds lhs down to a multiple of rhs.
		if rhs == 0 || rhs&(rhs-1) != 0 {
			return 0, ErrInvalidAlignment
		}
		return lhs &^ (rhs - 1), nil
	default:
		return 0, ErrUnknownOperator
	}
}

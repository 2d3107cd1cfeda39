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
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parca-dev/breakpad-unwind/internal/breakpad/postfix"
)

type testFrame struct {
	regs   map[string]uint64
	memory map[uint64]uint64
}

func (f testFrame) RegisterAtAddress(address uint64) (uint64, bool) {
	v, ok := f.memory[address]
	return v, ok
}

func (f testFrame) CalleeRegister(name string) (uint64, bool) {
	v, ok := f.regs[name]
	return v, ok
}

func TestEvaluate(t *testing.T) {
	f := testFrame{
		regs:   map[string]uint64{"rsp": 32, "x11": 7},
		memory: map[uint64]uint64{48: 0xdead, 40: 0xbeef},
	}
	cfa := uint64(56)

	tests := []struct {
		name    string
		expr    string
		cfa     *uint64
		want    uint64
		wantErr error
	}{
		{name: "literal", expr: "42", want: 42},
		{name: "negative literal", expr: "-1", want: math.MaxUint64},
		{name: "register", expr: "$rsp 8 +", want: 40},
		{name: "register without dollar", expr: "rsp 8 +", want: 40},
		{name: "arm style register", expr: "x11 x11 *", want: 49},
		{name: "subtraction order", expr: "10 3 -", want: 7},
		{name: "division order", expr: "10 3 /", want: 3},
		{name: "remainder", expr: "10 3 %", want: 1},
		{name: "align down", expr: "161 8 @", want: 160},
		{name: "align to zero", expr: "8 16 @", want: 0},
		{name: "deref", expr: ".cfa -8 + ^", cfa: &cfa, want: 0xdead},
		{name: "cfa", expr: ".cfa", cfa: &cfa, want: 56},
		{name: "extra whitespace", expr: "  $rsp\t\t8  + ", want: 40},

		{name: "cfa not in scope", expr: ".cfa 8 +", wantErr: ErrNoCFA},
		{name: "undefined", expr: ".undef", cfa: &cfa, wantErr: ErrUndefined},
		{name: "undefined after values", expr: "1 2 + .undef", wantErr: ErrUndefined},
		{name: "division by zero", expr: "1 0 /", wantErr: postfix.ErrDivisionByZero},
		{name: "remainder by zero", expr: "1 0 %", wantErr: postfix.ErrDivisionByZero},
		{name: "non power of two alignment", expr: "161 7 @", wantErr: postfix.ErrInvalidAlignment},
		{name: "zero alignment", expr: "161 0 @", wantErr: postfix.ErrInvalidAlignment},
		{name: "underflow", expr: "1 +", wantErr: ErrStackUnderflow},
		{name: "deref underflow", expr: "^", wantErr: ErrStackUnderflow},
		{name: "unmapped memory", expr: "8 ^", wantErr: ErrMemoryRead},
		{name: "unknown register", expr: "$rbx", wantErr: ErrUnknownRegister},
		{name: "garbage", expr: "1 2 &", wantErr: ErrUnknownRegister},
		{name: "lone dollar", expr: "$", wantErr: ErrUnknownRegister},
		{name: "empty", expr: "", wantErr: ErrMalformedExpression},
		{name: "too many values", expr: "1 2", wantErr: ErrMalformedExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, f, tt.cfa)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	f := testFrame{regs: map[string]uint64{"rsp": 32}, memory: map[uint64]uint64{40: 1}}
	for i := 0; i < 10; i++ {
		got, err := Evaluate("$rsp 8 + ^", f, nil)
		require.NoError(t, err)
		require.Equal(t, uint64(1), got)
	}
}

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

package postfix

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	src := "  .cfa: $rsp 8 +\t.ra:\n.cfa -8 + ^ "
	tokens := Tokenize(src)

	texts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		require.Equal(t, tok.Text, src[tok.Start:tok.End])
		texts = append(texts, tok.Text)
	}
	require.Equal(t, []string{".cfa:", "$rsp", "8", "+", ".ra:", ".cfa", "-8", "+", "^"}, texts)

	require.Empty(t, Tokenize(""))
	require.Empty(t, Tokenize(" \t\r\n"))
}

func TestApply(t *testing.T) {
	tests := []struct {
		op       string
		lhs, rhs uint64
		want     uint64
		wantErr  error
	}{
		{op: "+", lhs: 1, rhs: 2, want: 3},
		{op: "+", lhs: math.MaxUint64, rhs: 2, want: 1},
		{op: "-", lhs: 1, rhs: 2, want: math.MaxUint64},
		{op: "*", lhs: 6, rhs: 7, want: 42},
		{op: "/", lhs: 42, rhs: 5, want: 8},
		{op: "%", lhs: 42, rhs: 5, want: 2},
		{op: "/", lhs: 1, rhs: 0, wantErr: ErrDivisionByZero},
		{op: "%", lhs: 1, rhs: 0, wantErr: ErrDivisionByZero},
		{op: "@", lhs: 8, rhs: 16, want: 0},
		{op: "@", lhs: 161, rhs: 8, want: 160},
		{op: "@", lhs: 161, rhs: 1, want: 161},
		{op: "@", lhs: 161, rhs: 0, wantErr: ErrInvalidAlignment},
		{op: "@", lhs: 161, rhs: 7, wantErr: ErrInvalidAlignment},
		{op: "^", lhs: 1, rhs: 1, wantErr: ErrUnknownOperator},
	}
	for _, tt := range tests {
		got, err := Apply(tt.op, tt.lhs, tt.rhs)
		if tt.wantErr != nil {
			require.ErrorIs(t, err, tt.wantErr, "%d %d %s", tt.lhs, tt.rhs, tt.op)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "%d %d %s", tt.lhs, tt.rhs, tt.op)
	}
}

func TestApply32BitWraps(t *testing.T) {
	got, err := Apply[uint32]("+", math.MaxUint32, 5)
	require.NoError(t, err)
	require.Equal(t, uint32(4), got)

	got, err = Apply[uint32]("@", 0xffff_ffff, 0x1000)
	require.NoError(t, err)
	require.Equal(t, uint32(0xffff_f000), got)
}

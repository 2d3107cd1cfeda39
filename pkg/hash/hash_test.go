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

package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader(t *testing.T) {
	a, err := Reader(strings.NewReader("STACK CFI INIT 10 6 .cfa: $rsp 8 + .ra: .cfa -8 + ^"))
	require.NoError(t, err)
	b, err := Reader(strings.NewReader("STACK CFI INIT 10 6 .cfa: $rsp 8 + .ra: .cfa -8 + ^"))
	require.NoError(t, err)
	c, err := Reader(strings.NewReader("STACK CFI INIT 10 7 .cfa: $rsp 8 + .ra: .cfa -8 + ^"))
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestNewMatchesReader(t *testing.T) {
	const data = "MODULE Linux x86_64 000000000000000000000000000000000 test"

	h, err := New()
	require.NoError(t, err)
	_, err = h.Write([]byte(data))
	require.NoError(t, err)

	sum, err := Reader(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, h.Sum64(), sum)
}

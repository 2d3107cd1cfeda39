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
	"strconv"
	"strings"
)

type RegisterKind uint8

const (
	// A general purpose register, identified by name.
	RegisterNamed RegisterKind = iota
	// The canonical frame address, `.cfa`.
	RegisterCFA
	// The return address, `.ra`.
	RegisterRA
)

// Register is the left-hand side of a rule in a STACK CFI record.
type Register struct {
	Kind RegisterKind
	// Name is only set for RegisterNamed. It never carries the `$` prefix.
	Name string
}

var (
	CFA = Register{Kind: RegisterCFA}
	RA  = Register{Kind: RegisterRA}
)

// Named returns the general purpose register called name. A leading `$` is
// dropped, so `$rax` and `rax` are the same register.
func Named(name string) Register {
	return Register{Kind: RegisterNamed, Name: strings.TrimPrefix(name, "$")}
}

func (r Register) String() string {
	switch r.Kind {
	case RegisterCFA:
		return ".cfa"
	case RegisterRA:
		return ".ra"
	default:
		return "$" + r.Name
	}
}

// parseRegister parses a rule tag with its trailing colon already removed.
func parseRegister(tag string) (Register, error) {
	switch tag {
	case ".cfa":
		return CFA, nil
	case ".ra":
		return RA, nil
	}

	reg := Named(tag)
	if reg.Name == "" {
		return Register{}, fmt.Errorf("%w: empty register name", ErrMalformedRules)
	}
	// `$.cfa` and `$.ra` would shadow the pseudo-registers as general ones.
	if reg.Name == ".cfa" || reg.Name == ".ra" {
		return Register{}, fmt.Errorf("%w: %q names a pseudo-register", ErrMalformedRules, tag)
	}
	// `$rax:$rbx:` would otherwise name a register "rax:$rbx", hiding the
	// fact that $rax has no expression.
	if strings.Contains(reg.Name, ":") {
		return Register{}, fmt.Errorf("%w: %q", ErrEmptyExpression, tag)
	}
	if _, err := strconv.ParseInt(reg.Name, 10, 64); err == nil {
		return Register{}, fmt.Errorf("%w: register name %q is a number", ErrMalformedRules, tag)
	}
	return reg, nil
}

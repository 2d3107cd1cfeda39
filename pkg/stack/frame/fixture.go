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

package frame

import (
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrEmptyFixture = errors.New("empty frame fixture")

// Fixture is the YAML representation of a Frame, e.g.
//
//	arch: x86
//	instruction: 4096
//	grand_callee_parameter_size: 8
//	registers:
//	  esp: 0
//	  ebp: 17
//	memory:
//	  - base: 0
//	    bytes: 3412cdab 7856cdab
type Fixture struct {
	Arch        string `yaml:"arch"`
	Instruction uint64 `yaml:"instruction,omitempty"`
	// Unset means there is no grand callee.
	GrandCalleeParameterSize *uint32           `yaml:"grand_callee_parameter_size,omitempty"`
	Registers                map[string]uint64 `yaml:"registers,omitempty"`
	Memory                   []FixtureRegion   `yaml:"memory,omitempty"`
}

type FixtureRegion struct {
	Base uint64 `yaml:"base"`
	// Bytes is hex encoded; whitespace is ignored.
	Bytes string `yaml:"bytes"`
}

var fixtureArchs = map[string]elf.Machine{
	"x86":     elf.EM_386,
	"x86_64":  elf.EM_X86_64,
	"amd64":   elf.EM_X86_64,
	"arm64":   elf.EM_AARCH64,
	"aarch64": elf.EM_AARCH64,
}

// Frame builds the frame the fixture describes.
func (fx Fixture) Frame() (*Frame, error) {
	machine, ok := fixtureArchs[fx.Arch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrArchNotSupported, fx.Arch)
	}
	f, err := New(machine)
	if err != nil {
		return nil, err
	}

	f.SetInstruction(fx.Instruction)
	if fx.GrandCalleeParameterSize != nil {
		f.SetGrandCallee(*fx.GrandCalleeParameterSize)
	}
	for name, v := range fx.Registers {
		f.SetCalleeRegister(name, v)
	}
	for i, r := range fx.Memory {
		data, err := hex.DecodeString(strings.Join(strings.Fields(r.Bytes), ""))
		if err != nil {
			return nil, fmt.Errorf("memory region %d: %w", i, err)
		}
		f.AddMemory(r.Base, data)
	}
	return f, nil
}

// Load parses a YAML fixture into a Frame.
func Load(b []byte) (*Frame, error) {
	if len(b) == 0 {
		return nil, ErrEmptyFixture
	}

	fx := Fixture{}
	if err := yaml.Unmarshal(b, &fx); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	return fx.Frame()
}

// LoadFile parses the given YAML fixture file into a Frame.
func LoadFile(filename string) (*Frame, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	f, err := Load(content)
	if err != nil {
		return nil, fmt.Errorf("parsing YAML file %s: %w", filename, err)
	}
	return f, nil
}

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

// Package unwind recovers the registers of a caller frame from the STACK CFI
// and STACK WIN records of Breakpad symbol files.
package unwind

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// Unwinder runs the walkers of this package and reports how they did. It
// holds no per-frame state and can be shared between goroutines as long as
// each one has its own FrameWalker.
type Unwinder struct {
	logger  log.Logger
	metrics *metrics

	fixLeftoverReturnAddress bool
}

type Option func(*Unwinder)

// WithFPOLeftoverReturnAddress toggles the FPO correction for context frames
// whose own return address was never popped. Enabled by default.
func WithFPOLeftoverReturnAddress(enabled bool) Option {
	return func(u *Unwinder) {
		u.fixLeftoverReturnAddress = enabled
	}
}

func NewUnwinder(logger log.Logger, reg prometheus.Registerer, opts ...Option) *Unwinder {
	u := &Unwinder{
		logger:                   logger,
		metrics:                  newMetrics(reg),
		fixLeftoverReturnAddress: true,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WalkCFI is the package level WalkCFI with logging and metrics.
func (u *Unwinder) WalkCFI(init CFIRecord, diffs []CFIRecord, w FrameWalker) error {
	err := walkCFI(init, diffs, w, func(register string, err error) {
		u.metrics.registerFailures.WithLabelValues(labelCFI).Inc()
		level.Debug(u.logger).Log("msg", "failed to recover register", "register", register, "err", err)
	})
	u.observe(labelCFI, w, err)
	return err
}

// WalkWin picks the STACK WIN walker matching the payload of info.
func (u *Unwinder) WalkWin(info WinInfo, w FrameWalker) error {
	switch info.Payload.(type) {
	case ProgramString:
		return u.WalkWinFrameData(info, w)
	case AllocatesBasePointer:
		return u.WalkWinFPO(info, w)
	default:
		return fmt.Errorf("%w: %T", ErrWrongPayload, info.Payload)
	}
}

// WalkWinFrameData is the package level WalkWinFrameData with logging and metrics.
func (u *Unwinder) WalkWinFrameData(info WinInfo, w FrameWalker) error {
	err := WalkWinFrameData(info, w)
	u.observe(labelWinFrameData, w, err)
	return err
}

// WalkWinFPO is the package level WalkWinFPO with logging and metrics, honoring
// WithFPOLeftoverReturnAddress.
func (u *Unwinder) WalkWinFPO(info WinInfo, w FrameWalker) error {
	err := walkWinFPO(info, w, u.fixLeftoverReturnAddress)
	u.observe(labelWinFPO, w, err)
	return err
}

func (u *Unwinder) observe(kind string, w FrameWalker, err error) {
	u.metrics.observe(kind, err)
	if err != nil {
		level.Debug(u.logger).Log("msg", "failed to unwind frame", "kind", kind, "pc", fmt.Sprintf("%#x", w.Instruction()), "err", err)
	}
}

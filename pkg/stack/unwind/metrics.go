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

package unwind

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelCFI          = "cfi"
	labelWinFrameData = "win_framedata"
	labelWinFPO       = "win_fpo"

	labelSuccess = "success"
	labelError   = "error"
)

type metrics struct {
	attempts         *prometheus.CounterVec
	registerFailures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		attempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakpad_unwind_attempts_total",
				Help: "Total number of frames unwound with Breakpad STACK records.",
			},
			[]string{"kind", "status"},
		),
		registerFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakpad_unwind_register_failures_total",
				Help: "Number of caller registers that could not be recovered in otherwise successful unwinds.",
			},
			[]string{"kind"},
		),
	}

	for _, kind := range []string{labelCFI, labelWinFrameData, labelWinFPO} {
		m.attempts.WithLabelValues(kind, labelSuccess)
		m.attempts.WithLabelValues(kind, labelError)
	}
	m.registerFailures.WithLabelValues(labelCFI)

	return m
}

func (m *metrics) observe(kind string, err error) {
	if err != nil {
		m.attempts.WithLabelValues(kind, labelError).Inc()
		return
	}
	m.attempts.WithLabelValues(kind, labelSuccess).Inc()
}

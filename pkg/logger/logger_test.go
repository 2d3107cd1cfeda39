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

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/require"
)

func TestLevelFilter(t *testing.T) {
	tests := []struct {
		level     string
		wantLines int
	}{
		{level: "error", wantLines: 1},
		{level: "warn", wantLines: 2},
		{level: "info", wantLines: 3},
		{level: "debug", wantLines: 4},
		{level: "verbose", wantLines: 3},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := newLogger(buf, tt.level, LogFormatLogfmt, "")

			level.Error(logger).Log("msg", "e")
			level.Warn(logger).Log("msg", "w")
			level.Info(logger).Log("msg", "i")
			level.Debug(logger).Log("msg", "d")

			require.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), tt.wantLines)
		})
	}
}

func TestLogfmt(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newLogger(buf, "info", LogFormatLogfmt, "breakpad-unwind")

	level.Info(logger).Log("msg", "loaded symbol file", "cfi_records", 2)

	out := buf.String()
	require.Contains(t, out, "name=breakpad-unwind")
	require.Contains(t, out, `msg="loaded symbol file"`)
	require.Contains(t, out, "cfi_records=2")
	require.Contains(t, out, "caller=logger_test.go")
	require.Contains(t, out, "ts=")
}

func TestJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newLogger(buf, "debug", LogFormatJSON, "")

	level.Debug(logger).Log("msg", "failed to recover register", "register", "$rax")

	entry := map[string]string{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "debug", entry["level"])
	require.Equal(t, "$rax", entry["register"])
	require.NotContains(t, entry, "name")
}

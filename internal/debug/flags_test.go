// Copyright 2025 The ensis Authors
// This file is part of the ensis library.
//
// The ensis library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ensis library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ensis library. If not, see <http://www.gnu.org/licenses/>.

package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runSetup(t *testing.T, args ...string) error {
	t.Helper()
	prev := log.Root()
	t.Cleanup(func() {
		Exit()
		logOutputFile = nil
		log.SetDefault(prev)
	})
	app := &cli.App{
		Flags:  Flags,
		Action: Setup,
	}
	return app.Run(append([]string{"ensis"}, args...))
}

func TestSetupLogFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "ensis.log")
	require.NoError(t, runSetup(t, "--log.file", file, "--log.format", "json", "--verbosity", "4"))

	log.Debug("Resolved function", "function", "getItem")
	blob, err := os.ReadFile(file)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(blob), `"function":"getItem"`), "log file: %s", blob)
}

func TestSetupErrors(t *testing.T) {
	require.ErrorContains(t, runSetup(t, "--log.format", "xml"), "unknown log format")
	require.ErrorContains(t, runSetup(t, "--log.vmodule", "gateway=x"), "invalid --log.vmodule")
}

// Copyright 2025 The ensis Authors
// This file is part of ensis.
//
// ensis is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ensis is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ensis. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ensis-project/ensis/cmd/utils"
	"github.com/ensis-project/ensis/gateway"
	"github.com/ensis-project/ensis/internal/flags"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const testConfig = `
[Gateway]
RPCURL = "http://node:8545"
Registry = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
ABIURL = "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
CallTimeout = 5000000000

[HTTP]
Host = "0.0.0.0"
Port = 9000
VirtualHosts = ["gateway.example.org"]
RateLimit = 20.0
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func TestLoadConfig(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, loadConfig(writeConfig(t, testConfig), &cfg))

	require.Equal(t, "http://node:8545", cfg.Gateway.RPCURL)
	require.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), cfg.Gateway.Registry)
	require.Equal(t, 5*time.Second, cfg.Gateway.CallTimeout)
	require.Equal(t, gateway.DefaultConfig.ReceiptTimeout, cfg.Gateway.ReceiptTimeout)
	require.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	require.Equal(t, 9000, cfg.HTTP.Port)
	require.Equal(t, []string{"gateway.example.org"}, cfg.HTTP.VirtualHosts)
	require.Equal(t, 20.0, cfg.HTTP.RateLimit)
	require.Equal(t, gateway.DefaultReadPrefix, cfg.HTTP.ReadPrefix)
}

func TestLoadConfigErrors(t *testing.T) {
	cfg := defaultConfig()
	err := loadConfig(writeConfig(t, "[Gateway]\nRPCUrl = \"x\"\n"), &cfg)
	require.ErrorContains(t, err, "field 'RPCUrl' is not defined in gateway.Config")

	// Fields listed as deprecated are ignored rather than rejected.
	deprecatedConfigFields["gateway.Config.RPCUrl"] = true
	t.Cleanup(func() { delete(deprecatedConfigFields, "gateway.Config.RPCUrl") })
	cfg = defaultConfig()
	require.NoError(t, loadConfig(writeConfig(t, "[Gateway]\nRPCUrl = \"x\"\n"), &cfg))

	require.Error(t, loadConfig(filepath.Join(t.TempDir(), "missing.toml"), &cfg))
}

func TestDumpConfigRoundTrip(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, loadConfig(writeConfig(t, testConfig), &cfg))
	cfg.Gateway.PrivateKey = "0x01"

	out, err := tomlSettings.Marshal(&cfg)
	require.NoError(t, err)
	require.False(t, bytes.Contains(out, []byte("PrivateKey")), "private key must not be persisted")

	var loaded ensisConfig
	require.NoError(t, loadConfig(writeConfig(t, string(out)), &loaded))
	cfg.Gateway.PrivateKey = ""
	require.Equal(t, cfg.Gateway, loaded.Gateway)
	require.Equal(t, cfg.HTTP, loaded.HTTP)
}

// runConfig parses args with the gateway flags and returns the resulting
// configuration.
func runConfig(t *testing.T, args ...string) ensisConfig {
	t.Helper()
	var cfg ensisConfig
	app := &cli.App{
		Flags: flags.Merge([]cli.Flag{configFileFlag}, utils.GatewayFlags, utils.SignerFlags, utils.HTTPFlags, utils.MetricsFlags),
		Action: func(ctx *cli.Context) error {
			cfg = loadBaseConfig(ctx)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"ensis"}, args...)))
	return cfg
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Setenv("ENSIS_CONTRACT_ADDRESS", "0x71562b71999873DB5b286dF957af199Ec94617F7")
	t.Setenv("PRIVATE_KEY", "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")

	cfg := runConfig(t,
		"--config", writeConfig(t, testConfig),
		"--http.port", "9100",
		"--http.corsdomain", "https://a.example.org, https://b.example.org",
		"--rpc.receipttimeout", "1m",
	)
	require.Equal(t, common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7"), cfg.Gateway.Registry)
	require.Equal(t, "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291", cfg.Gateway.PrivateKey)
	require.Equal(t, "http://node:8545", cfg.Gateway.RPCURL)
	require.Equal(t, time.Minute, cfg.Gateway.ReceiptTimeout)
	require.Equal(t, 9100, cfg.HTTP.Port)
	require.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	require.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.HTTP.Cors)
}

// Copyright 2015 The go-ethereum Authors
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

// Package utils contains internal helper functions for ensis commands.
package utils

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ensis-project/ensis/abistore"
	"github.com/ensis-project/ensis/gateway"
	"github.com/ensis-project/ensis/internal/flags"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"
	"github.com/urfave/cli/v2"
)

var (
	// Chain access settings
	RPCURLFlag = &cli.StringFlag{
		Name:     "rpc",
		Usage:    "JSON-RPC endpoint of the chain node (http, ws or ipc)",
		Value:    gateway.DefaultConfig.RPCURL,
		EnvVars:  []string{"RPC_URL"},
		Category: flags.GatewayCategory,
	}
	CallTimeoutFlag = &cli.DurationFlag{
		Name:     "rpc.calltimeout",
		Usage:    "Upper bound on the chain interaction of a read request (0 = unlimited)",
		Value:    gateway.DefaultConfig.CallTimeout,
		Category: flags.GatewayCategory,
	}
	ReceiptTimeoutFlag = &cli.DurationFlag{
		Name:     "rpc.receipttimeout",
		Usage:    "How long a write request waits for its transaction receipt (0 = unlimited)",
		Value:    gateway.DefaultConfig.ReceiptTimeout,
		Category: flags.GatewayCategory,
	}

	// Registry settings
	RegistryFlag = &cli.StringFlag{
		Name:     "registry",
		Usage:    "Address of the deployed registry contract",
		EnvVars:  []string{"ENSIS_CONTRACT_ADDRESS"},
		Category: flags.RegistryCategory,
	}
	ABIURLFlag = &cli.StringFlag{
		Name:     "registry.abi",
		Usage:    "Location of the registry ABI document (http(s)://, ipfs://, file:// or a path); the built-in interface is used if empty",
		EnvVars:  []string{"ENSIS_ABI_URL"},
		Category: flags.RegistryCategory,
	}
	IPFSGatewayFlag = &cli.StringFlag{
		Name:     "registry.ipfsgateway",
		Usage:    "HTTP gateway used to resolve ipfs:// ABI locations",
		Value:    gateway.DefaultConfig.IPFSGateway,
		Category: flags.RegistryCategory,
	}
	ABICacheTTLFlag = &cli.DurationFlag{
		Name:     "registry.abicache",
		Usage:    "How long a fetched ABI document is reused (0 = fetch on every request)",
		Value:    gateway.DefaultConfig.ABICacheTTL,
		Category: flags.RegistryCategory,
	}

	// Signer settings
	PrivateKeyFlag = &cli.StringFlag{
		Name:     "key",
		Usage:    "Hex encoded private key signing write transactions",
		EnvVars:  []string{"PRIVATE_KEY"},
		Category: flags.AccountCategory,
	}
	KeyStoreFileFlag = &flags.DirectoryFlag{
		Name:     "keystore",
		Usage:    "Encrypted key file signing write transactions",
		Category: flags.AccountCategory,
	}
	PasswordFileFlag = &flags.DirectoryFlag{
		Name:     "password",
		Usage:    "File holding the password of the keystore file",
		Category: flags.AccountCategory,
	}

	// HTTP server settings
	HTTPListenAddrFlag = &cli.StringFlag{
		Name:     "http.addr",
		Usage:    "HTTP server listening interface",
		Value:    gateway.DefaultHTTPHost,
		Category: flags.APICategory,
	}
	HTTPPortFlag = &cli.IntFlag{
		Name:     "http.port",
		Usage:    "HTTP server listening port",
		Value:    gateway.DefaultHTTPPort,
		Category: flags.APICategory,
	}
	HTTPReadPrefixFlag = &cli.StringFlag{
		Name:     "http.readprefix",
		Usage:    "Path prefix of the read endpoint",
		Value:    gateway.DefaultReadPrefix,
		Category: flags.APICategory,
	}
	HTTPWritePrefixFlag = &cli.StringFlag{
		Name:     "http.writeprefix",
		Usage:    "Path prefix of the write endpoint",
		Value:    gateway.DefaultWritePrefix,
		Category: flags.APICategory,
	}
	HTTPReadOnlyFlag = &cli.BoolFlag{
		Name:     "http.readonly",
		Usage:    "Serve the read endpoint only",
		Category: flags.APICategory,
	}
	HTTPCORSDomainFlag = &cli.StringFlag{
		Name:     "http.corsdomain",
		Usage:    "Comma separated list of domains from which to accept cross origin requests (browser enforced)",
		Value:    "",
		Category: flags.APICategory,
	}
	HTTPVirtualHostsFlag = &cli.StringFlag{
		Name:     "http.vhosts",
		Usage:    "Comma separated list of virtual hostnames from which to accept requests (server enforced). Accepts '*' wildcard.",
		Value:    strings.Join(gateway.DefaultHTTPConfig.VirtualHosts, ","),
		Category: flags.APICategory,
	}
	HTTPJWTSecretFlag = &flags.DirectoryFlag{
		Name:     "http.jwtsecret",
		Usage:    "Path to a JWT secret required as bearer token on the write endpoint",
		Category: flags.APICategory,
	}
	HTTPRateLimitFlag = &cli.Float64Flag{
		Name:     "http.ratelimit",
		Usage:    "Maximum requests per second accepted by the server (0 = unlimited)",
		Category: flags.APICategory,
	}
	HTTPRateBurstFlag = &cli.IntFlag{
		Name:     "http.rateburst",
		Usage:    "Number of requests accepted in a burst above the rate limit",
		Category: flags.APICategory,
	}
	HTTPBodyLimitFlag = &cli.Int64Flag{
		Name:     "http.bodylimit",
		Usage:    "Maximum size of a request body in bytes",
		Value:    gateway.DefaultHTTPConfig.BodyLimit,
		Category: flags.APICategory,
	}

	// Metrics settings
	MetricsEnabledFlag = &cli.BoolFlag{
		Name:     "metrics",
		Usage:    "Enable metrics collection and reporting",
		Category: flags.MetricsCategory,
	}
	// MetricsHTTPFlag defines the endpoint for a stand-alone metrics HTTP endpoint.
	// Since the pprof service enables sensitive/vulnerable behavior, this allows a user
	// to enable a public-OK metrics endpoint without having to worry about ALSO exposing
	// other profiling behavior or information.
	MetricsHTTPFlag = &cli.StringFlag{
		Name:     "metrics.addr",
		Usage:    `Enable stand-alone metrics HTTP server listening interface.`,
		Category: flags.MetricsCategory,
	}
	MetricsPortFlag = &cli.IntFlag{
		Name: "metrics.port",
		Usage: `Metrics HTTP server listening port.
Please note that --metrics.addr must be set to start the server.`,
		Value:    metrics.DefaultConfig.Port,
		Category: flags.MetricsCategory,
	}

	// Deployment settings
	ArtifactFlag = &flags.DirectoryFlag{
		Name:     "artifact",
		Usage:    "Compiled registry contract artifact (Hardhat or Foundry JSON)",
		Category: flags.DeployCategory,
	}
	InitialPriceFlag = &flags.BigFlag{
		Name:     "initialprice",
		Usage:    "Constructor argument initialPrice of the registry contract",
		Value:    big.NewInt(1_000_000_000),
		Category: flags.DeployCategory,
	}
)

var (
	// GatewayFlags configure the chain side of the gateway.
	GatewayFlags = []cli.Flag{
		RPCURLFlag,
		CallTimeoutFlag,
		ReceiptTimeoutFlag,
		RegistryFlag,
		ABIURLFlag,
		IPFSGatewayFlag,
		ABICacheTTLFlag,
	}
	// SignerFlags select the key signing write transactions.
	SignerFlags = []cli.Flag{
		PrivateKeyFlag,
		KeyStoreFileFlag,
		PasswordFileFlag,
	}
	// HTTPFlags configure the HTTP server.
	HTTPFlags = []cli.Flag{
		HTTPListenAddrFlag,
		HTTPPortFlag,
		HTTPReadPrefixFlag,
		HTTPWritePrefixFlag,
		HTTPReadOnlyFlag,
		HTTPCORSDomainFlag,
		HTTPVirtualHostsFlag,
		HTTPJWTSecretFlag,
		HTTPRateLimitFlag,
		HTTPRateBurstFlag,
		HTTPBodyLimitFlag,
	}
	// MetricsFlags configure metrics collection.
	MetricsFlags = []cli.Flag{
		MetricsEnabledFlag,
		MetricsHTTPFlag,
		MetricsPortFlag,
	}
)

// SetGatewayConfig applies gateway-related command line flags to the config.
func SetGatewayConfig(ctx *cli.Context, cfg *gateway.Config) {
	if ctx.IsSet(RPCURLFlag.Name) || cfg.RPCURL == "" {
		cfg.RPCURL = ctx.String(RPCURLFlag.Name)
	}
	if ctx.IsSet(CallTimeoutFlag.Name) {
		cfg.CallTimeout = ctx.Duration(CallTimeoutFlag.Name)
	}
	if ctx.IsSet(ReceiptTimeoutFlag.Name) {
		cfg.ReceiptTimeout = ctx.Duration(ReceiptTimeoutFlag.Name)
	}
	if ctx.IsSet(RegistryFlag.Name) {
		addr := ctx.String(RegistryFlag.Name)
		if !common.IsHexAddress(addr) {
			Fatalf("Invalid registry address %q", addr)
		}
		cfg.Registry = common.HexToAddress(addr)
	}
	if ctx.IsSet(ABIURLFlag.Name) {
		cfg.ABIURL = ctx.String(ABIURLFlag.Name)
	}
	if ctx.IsSet(IPFSGatewayFlag.Name) {
		cfg.IPFSGateway = ctx.String(IPFSGatewayFlag.Name)
	}
	if ctx.IsSet(ABICacheTTLFlag.Name) {
		cfg.ABICacheTTL = ctx.Duration(ABICacheTTLFlag.Name)
	}
	if err := flags.CheckExclusive(ctx, PrivateKeyFlag, KeyStoreFileFlag); err != nil {
		Fatalf("%v", err)
	}
	if ctx.IsSet(PrivateKeyFlag.Name) {
		cfg.PrivateKey = ctx.String(PrivateKeyFlag.Name)
	}
	if ctx.IsSet(KeyStoreFileFlag.Name) {
		cfg.KeyStoreFile = ctx.String(KeyStoreFileFlag.Name)
	}
	if ctx.IsSet(PasswordFileFlag.Name) {
		cfg.PasswordFile = ctx.String(PasswordFileFlag.Name)
	}
}

// SetHTTPConfig applies HTTP server related command line flags to the config.
func SetHTTPConfig(ctx *cli.Context, cfg *gateway.HTTPConfig) {
	if ctx.IsSet(HTTPListenAddrFlag.Name) {
		cfg.Host = ctx.String(HTTPListenAddrFlag.Name)
	}
	if ctx.IsSet(HTTPPortFlag.Name) {
		cfg.Port = ctx.Int(HTTPPortFlag.Name)
	}
	if ctx.IsSet(HTTPReadPrefixFlag.Name) {
		cfg.ReadPrefix = ctx.String(HTTPReadPrefixFlag.Name)
	}
	if ctx.IsSet(HTTPWritePrefixFlag.Name) {
		cfg.WritePrefix = ctx.String(HTTPWritePrefixFlag.Name)
	}
	if ctx.IsSet(HTTPCORSDomainFlag.Name) {
		cfg.Cors = SplitAndTrim(ctx.String(HTTPCORSDomainFlag.Name))
	}
	if ctx.IsSet(HTTPVirtualHostsFlag.Name) {
		cfg.VirtualHosts = SplitAndTrim(ctx.String(HTTPVirtualHostsFlag.Name))
	}
	if ctx.IsSet(HTTPJWTSecretFlag.Name) {
		cfg.JWTSecret = ctx.String(HTTPJWTSecretFlag.Name)
	}
	if ctx.IsSet(HTTPRateLimitFlag.Name) {
		cfg.RateLimit = ctx.Float64(HTTPRateLimitFlag.Name)
	}
	if ctx.IsSet(HTTPRateBurstFlag.Name) {
		cfg.RateBurst = ctx.Int(HTTPRateBurstFlag.Name)
	}
	if ctx.IsSet(HTTPBodyLimitFlag.Name) {
		cfg.BodyLimit = ctx.Int64(HTTPBodyLimitFlag.Name)
	}
}

// SetMetricsConfig applies metrics related command line flags to the config.
func SetMetricsConfig(ctx *cli.Context, cfg *metrics.Config) {
	if ctx.IsSet(MetricsEnabledFlag.Name) {
		cfg.Enabled = ctx.Bool(MetricsEnabledFlag.Name)
	}
	if ctx.IsSet(MetricsHTTPFlag.Name) {
		cfg.HTTP = ctx.String(MetricsHTTPFlag.Name)
	}
	if ctx.IsSet(MetricsPortFlag.Name) {
		cfg.Port = ctx.Int(MetricsPortFlag.Name)
	}
}

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// Dial connects to the chain node of the gateway config.
func Dial(ctx context.Context, cfg *gateway.Config) *ethclient.Client {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		Fatalf("Failed to connect to %s: %v", cfg.RPCURL, err)
	}
	return client
}

// MakeABISource creates the ABI fetcher of the gateway config.
func MakeABISource(cfg *gateway.Config) *abistore.Fetcher {
	config := abistore.DefaultConfig
	config.IPFSGateway = cfg.IPFSGateway
	config.CacheTTL = cfg.ABICacheTTL
	return abistore.New(config, nil)
}

// ErrNoSigner is returned by MakeTransactor if neither a private key nor a
// keystore file is configured.
var ErrNoSigner = errors.New("no signing key configured, use --key or --keystore")

// MakeTransactor creates the transaction signer of the gateway config for the
// given chain.
func MakeTransactor(cfg *gateway.Config, chainID *big.Int) (*bind.TransactOpts, error) {
	switch {
	case cfg.PrivateKey != "":
		key, err := parseKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		return bind.NewKeyedTransactorWithChainID(key, chainID)

	case cfg.KeyStoreFile != "":
		keyjson, err := os.Open(cfg.KeyStoreFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read the keyfile at '%s': %v", cfg.KeyStoreFile, err)
		}
		defer keyjson.Close()

		var password string
		if cfg.PasswordFile != "" {
			text, err := os.ReadFile(cfg.PasswordFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read password file: %v", err)
			}
			password = strings.TrimRight(string(text), "\r\n")
		}
		return bind.NewTransactorWithChainID(keyjson, password, chainID)
	}
	return nil, ErrNoSigner
}

func parseKey(hexkey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexkey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return key, nil
}

// ChainID queries the chain id of the connected node, bounded by timeout. A zero
// timeout waits indefinitely.
func ChainID(client *ethclient.Client, timeout time.Duration) (*big.Int, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return client.ChainID(ctx)
}

// SetupMetrics enables metrics collection and starts the stand-alone metrics
// server if configured.
func SetupMetrics(cfg *metrics.Config) {
	if !cfg.Enabled {
		return
	}
	log.Info("Enabling metrics collection")
	metrics.Enable()

	// Start system runtime metrics collection
	go metrics.CollectProcessMetrics(3 * time.Second)

	if cfg.HTTP != "" {
		address := fmt.Sprintf("%s:%d", cfg.HTTP, cfg.Port)
		log.Info("Enabling stand-alone metrics HTTP endpoint", "address", address)
		exp.Setup(address)
	}
}

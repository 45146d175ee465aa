// Copyright 2014 The go-ethereum Authors
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

// ensis is the command line interface of the contract gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ensis-project/ensis/cmd/utils"
	"github.com/ensis-project/ensis/gateway"
	"github.com/ensis-project/ensis/internal/debug"
	"github.com/ensis-project/ensis/internal/flags"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	clientIdentifier = "ensis" // Client identifier used in version output

	shutdownTimeout = 10 * time.Second
)

var app = flags.NewApp("the ensis contract gateway")

func init() {
	app.Action = ensis
	app.Commands = []*cli.Command{
		callCommand,
		execCommand,
		deployCommand,
		dumpConfigCommand,
		versionCommand,
	}
	app.Flags = flags.Merge(
		[]cli.Flag{configFileFlag},
		utils.GatewayFlags,
		utils.SignerFlags,
		utils.HTTPFlags,
		utils.MetricsFlags,
		debug.Flags,
	)
	flags.AutoEnvVars(app.Flags, "ENSIS")

	app.Before = func(ctx *cli.Context) error {
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ensis is the main entry point into the system if no special subcommand is
// run. It serves the read and write endpoints until interrupted.
func ensis(ctx *cli.Context) error {
	if args := ctx.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("invalid command: %s", args[0])
	}
	cfg := loadBaseConfig(ctx)
	utils.SetupMetrics(&cfg.Metrics)

	client, reader, writer := makeGateway(ctx, &cfg, !ctx.Bool(utils.HTTPReadOnlyFlag.Name))
	defer client.Close()

	srv, err := gateway.NewServer(cfg.HTTP, reader, writer)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	if err := srv.Start(); err != nil {
		utils.Fatalf("Failed to start HTTP server: %v", err)
	}
	defer srv.Stop(shutdownTimeout)

	waitForInterrupt()
	return nil
}

// waitForInterrupt blocks until SIGINT or SIGTERM. Repeated interrupts during
// shutdown force an exit.
func waitForInterrupt() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	<-sigc
	log.Info("Got interrupt, shutting down...")
	go func() {
		for i := 3; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.Warn("Already shutting down, interrupt more to exit.", "times", i-1)
			}
		}
		log.Error("Forced exit")
		os.Exit(1)
	}()
}

// makeGateway connects to the chain node, verifies the registry and creates
// the read service. The write service is created if withWriter is set and a
// signing key is configured.
func makeGateway(ctx *cli.Context, cfg *ensisConfig, withWriter bool) (*ethclient.Client, *gateway.Reader, *gateway.Writer) {
	if cfg.Gateway.Registry == (common.Address{}) {
		utils.Fatalf("Registry address not configured, use --%s or %s", utils.RegistryFlag.Name, utils.RegistryFlag.EnvVars[0])
	}
	client := utils.Dial(ctx.Context, &cfg.Gateway)
	abis := utils.MakeABISource(&cfg.Gateway)

	if err := checkGateway(ctx.Context, client, &cfg.Gateway, abis); err != nil {
		utils.Fatalf("%v", err)
	}
	reader := gateway.NewReader(cfg.Gateway, abis, client)
	if !withWriter {
		return client, reader, nil
	}
	chainID, err := utils.ChainID(client, cfg.Gateway.CallTimeout)
	if err != nil {
		utils.Fatalf("Failed to retrieve chain id: %v", err)
	}
	opts, err := utils.MakeTransactor(&cfg.Gateway, chainID)
	if errors.Is(err, utils.ErrNoSigner) {
		log.Warn("No signing key configured, write endpoint disabled")
		return client, reader, nil
	}
	if err != nil {
		utils.Fatalf("Failed to create transaction signer: %v", err)
	}
	writer := gateway.NewWriter(cfg.Gateway, abis, client, opts)
	log.Info("Write endpoint enabled", "from", writer.From(), "chainid", chainID)
	return client, reader, writer
}

// checkGateway verifies that the registry contract is deployed and its ABI
// document can be loaded.
func checkGateway(ctx context.Context, client *ethclient.Client, cfg *gateway.Config, abis gateway.ABISource) error {
	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		code, err := client.CodeAt(gctx, cfg.Registry, nil)
		if err != nil {
			return fmt.Errorf("failed to check registry %s: %w", cfg.Registry.Hex(), err)
		}
		if len(code) == 0 {
			return fmt.Errorf("no contract code at registry address %s", cfg.Registry.Hex())
		}
		return nil
	})
	if cfg.ABIURL != "" {
		g.Go(func() error {
			if _, err := abis.Fetch(gctx, cfg.ABIURL); err != nil {
				return fmt.Errorf("failed to load registry ABI: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

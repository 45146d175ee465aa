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
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ensis-project/ensis/cmd/utils"
	"github.com/ensis-project/ensis/gateway"
	"github.com/ensis-project/ensis/internal/flags"
	"github.com/ensis-project/ensis/registry"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var deployCommand = &cli.Command{
	Action:    deploy,
	Name:      "deploy",
	Usage:     "Deploy the registry contract",
	ArgsUsage: "",
	Flags: []cli.Flag{
		utils.ArtifactFlag,
		utils.InitialPriceFlag,
	},
	Description: `
The deploy command publishes the registry contract compiled into the given
artifact, passing --initialprice to its constructor. It waits until the
contract code is available and prints the contract address, to be configured
with --registry or ENSIS_CONTRACT_ADDRESS.`,
}

func deploy(ctx *cli.Context) error {
	path := ctx.String(utils.ArtifactFlag.Name)
	if path == "" {
		utils.Fatalf("Registry artifact not specified, use --%s", utils.ArtifactFlag.Name)
	}
	artifact, err := registry.LoadArtifact(path)
	if err != nil {
		utils.Fatalf("Failed to load artifact: %v", err)
	}
	price := flags.GlobalBig(ctx, utils.InitialPriceFlag.Name)
	if price == nil || price.Sign() < 0 {
		utils.Fatalf("Invalid initial price")
	}
	cfg := loadBaseConfig(ctx)
	client := utils.Dial(ctx.Context, &cfg.Gateway)
	defer client.Close()

	chainID, err := utils.ChainID(client, cfg.Gateway.CallTimeout)
	if err != nil {
		utils.Fatalf("Failed to retrieve chain id: %v", err)
	}
	opts, err := utils.MakeTransactor(&cfg.Gateway, chainID)
	if err != nil {
		utils.Fatalf("Failed to create transaction signer: %v", err)
	}
	address, hash, err := deployRegistry(ctx.Context, client, opts, artifact, price, cfg.Gateway.ReceiptTimeout)
	if err != nil {
		return err
	}
	fmt.Printf("Contract deployed: %s\n", address.Hex())
	fmt.Printf("Transaction:       %s\n", hash.Hex())
	return nil
}

// deployRegistry sends the deployment transaction and waits until the contract
// code is available.
func deployRegistry(ctx context.Context, backend gateway.Backend, opts *bind.TransactOpts, artifact *registry.Artifact, price *big.Int, timeout time.Duration) (common.Address, common.Hash, error) {
	deployOpts := *opts
	deployOpts.Context = ctx
	address, tx, err := registry.Deploy(&deployOpts, backend, artifact.ABI, artifact.Bytecode, price)
	if err != nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("failed to deploy registry: %w", err)
	}
	log.Info("Submitted registry deployment", "contract", artifact.ContractName, "address", address, "hash", tx.Hash(), "initialPrice", price)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if _, err := bind.WaitDeployed(ctx, backend, tx); err != nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("waiting for deployment %s: %w", tx.Hash().Hex(), err)
	}
	return address, tx.Hash(), nil
}

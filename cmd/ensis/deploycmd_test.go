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
	"math/big"
	"testing"
	"time"

	"github.com/ensis-project/ensis/registry"
	"github.com/ensis-project/ensis/registry/registrytest"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestDeployRegistry(t *testing.T) {
	key, _ := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	backend := registrytest.NewBackend(common.Address{}, nil)
	opts, err := bind.NewKeyedTransactorWithChainID(key, backend.ChainID())
	require.NoError(t, err)

	parsed, err := registry.MetaData.GetAbi()
	require.NoError(t, err)
	artifact := &registry.Artifact{ContractName: "Lock", ABI: *parsed, Bytecode: []byte{0x60, 0x80, 0x60, 0x40}}

	address, hash, err := deployRegistry(context.Background(), backend, opts, artifact, big.NewInt(1_000_000_000), time.Minute)
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(opts.From, 0), address)

	sent := backend.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, sent[0].Hash(), hash)

	// The constructor argument trails the creation code.
	price := common.LeftPadBytes(big.NewInt(1_000_000_000).Bytes(), 32)
	require.Equal(t, append([]byte{0x60, 0x80, 0x60, 0x40}, price...), sent[0].Data())

	artifact.Bytecode = nil
	_, _, err = deployRegistry(context.Background(), backend, opts, artifact, big.NewInt(1), time.Minute)
	require.ErrorContains(t, err, "bytecode is empty")
}

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

// Package registrytest provides an in-memory chain backend that answers calls
// to a registry contract, for use in tests.
package registrytest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ensis-project/ensis/registry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNotRegistered is the revert reason of getFunctionData for unknown functions.
var ErrNotRegistered = errors.New("execution reverted: function not registered")

// Function is a registry entry served by the Backend.
type Function struct {
	Selector [4]byte
	ArgTypes []string
	ArgNames []string

	// Success and Result are returned by callContractFunction.
	Success bool
	Result  []byte
}

// Call records one callContractFunction or executeFunction invocation.
type Call struct {
	Target common.Address
	Name   string
	Params []byte
}

type funcKey struct {
	target common.Address
	name   string
}

// Backend implements bind.ContractBackend and bind.DeployBackend on top of a
// map of registered functions. Transactions are "mined" as soon as they are
// sent.
type Backend struct {
	abi     abi.ABI
	chainID *big.Int
	signer  types.Signer

	mu        sync.Mutex
	code      map[common.Address][]byte
	functions map[funcKey]Function
	nonces    map[common.Address]uint64
	receipts  map[common.Hash]*types.Receipt
	calls     []Call
	sent      []*types.Transaction
	price     *big.Int
	callErr   error
	revert    bool
}

var _ bind.ContractBackend = (*Backend)(nil)
var _ bind.DeployBackend = (*Backend)(nil)

// NewBackend creates a backend with a registry deployed at address, speaking
// the given ABI. A nil ABI selects registry.MetaData.
func NewBackend(address common.Address, parsed *abi.ABI) *Backend {
	if parsed == nil {
		def, err := registry.MetaData.GetAbi()
		if err != nil {
			panic(err)
		}
		parsed = def
	}
	chainID := big.NewInt(1337)
	return &Backend{
		abi:       *parsed,
		chainID:   chainID,
		signer:    types.LatestSignerForChainID(chainID),
		code:      map[common.Address][]byte{address: {0x60, 0x80}},
		functions: make(map[funcKey]Function),
		nonces:    make(map[common.Address]uint64),
		receipts:  make(map[common.Hash]*types.Receipt),
		price:     big.NewInt(1_000_000_000),
	}
}

// ChainID returns the chain id transactions must be signed for.
func (b *Backend) ChainID() *big.Int {
	return new(big.Int).Set(b.chainID)
}

// Register adds a function for target.
func (b *Backend) Register(target common.Address, name string, fn Function) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.functions[funcKey{target, name}] = fn
}

// FailCalls makes every subsequent contract call fail with err.
func (b *Backend) FailCalls(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callErr = err
}

// RevertTransactions makes subsequently mined transactions produce a failed
// receipt, or successful ones again when revert is false.
func (b *Backend) RevertTransactions(revert bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revert = revert
}

// Calls returns the forwarded calls seen so far.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Sent returns the transactions sent so far.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code[contract], nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return b.CodeAt(ctx, account, nil)
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.callErr != nil {
		return nil, b.callErr
	}
	if call.To == nil || len(b.code[*call.To]) == 0 {
		return nil, nil
	}
	if len(call.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	method, err := b.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "price":
		return method.Outputs.Pack(b.price)

	case "getFunctionData":
		key := funcKey{args[0].(common.Address), args[1].(string)}
		fn, ok := b.functions[key]
		if !ok {
			return nil, ErrNotRegistered
		}
		if len(method.Outputs) == 4 {
			return method.Outputs.Pack(fn.Selector, key.name, fn.ArgTypes, fn.ArgNames)
		}
		return method.Outputs.Pack(fn.Selector, fn.ArgTypes, fn.ArgNames)

	case "callContractFunction":
		key := funcKey{args[0].(common.Address), args[1].(string)}
		fn, ok := b.functions[key]
		if !ok {
			return nil, ErrNotRegistered
		}
		b.calls = append(b.calls, Call{Target: key.target, Name: key.name, Params: args[2].([]byte)})
		return method.Outputs.Pack(fn.Success, fn.Result)
	}
	return nil, fmt.Errorf("execution reverted: %s is not callable", method.Name)
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(gwei)}, nil
}

const gwei = 1_000_000_000

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(gwei), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(gwei), nil
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

// SendTransaction records tx and mines it immediately. executeFunction calls
// are recorded like callContractFunction calls; contract creations leave code
// at the derived address.
func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(b.signer, tx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if tx.Nonce() != b.nonces[from] {
		return fmt.Errorf("nonce mismatch: have %d, want %d", tx.Nonce(), b.nonces[from])
	}
	b.nonces[from]++
	b.sent = append(b.sent, tx)

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21_000,
		GasUsed:           21_000,
		TxHash:            tx.Hash(),
		BlockNumber:       big.NewInt(int64(len(b.sent))),
		BlockHash:         common.BigToHash(big.NewInt(int64(len(b.sent)))),
		Logs:              []*types.Log{},
	}
	if tx.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
		b.code[receipt.ContractAddress] = []byte{0x60, 0x80}
	} else if data := tx.Data(); len(data) >= 4 {
		if method, err := b.abi.MethodById(data[:4]); err == nil && method.Name == "executeFunction" {
			if args, err := method.Inputs.Unpack(data[4:]); err == nil {
				b.calls = append(b.calls, Call{Target: args[0].(common.Address), Name: args[1].(string), Params: args[2].([]byte)})
			}
		}
	}
	if b.revert {
		receipt.Status = types.ReceiptStatusFailed
	}
	b.receipts[tx.Hash()] = receipt
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *Backend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

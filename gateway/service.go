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

// Package gateway serves reads and writes of registered contract functions
// over HTTP. Calls are resolved through the registry contract and encoded with
// the go-ethereum ABI codec.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ensis-project/ensis/argconv"
	"github.com/ensis-project/ensis/registry"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

var (
	// ErrCallFailed is returned when the registry reports an unsuccessful call.
	ErrCallFailed = errors.New("Contract call failed")

	// ErrTxFailed is returned when a write transaction is mined but reverted.
	ErrTxFailed = errors.New("transaction failed")
)

// ABISource supplies ABI documents by location.
type ABISource interface {
	Fetch(ctx context.Context, location string) (abi.ABI, error)
}

// Backend is the chain access needed to submit transactions and wait for
// their receipts.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Request names a function of a target contract and carries the raw JSON
// arguments of the call.
type Request struct {
	Target   string
	Function string
	Body     []byte

	// Returns optionally lists the ABI types used to decode the result of a
	// read. By default the result is decoded with the function's parameter
	// types and keyed by the parameter names.
	Returns []string
}

// service holds what the read and write paths share: resolving the registry
// binding and the function metadata.
type service struct {
	config  Config
	abis    ABISource
	backend bind.ContractBackend
}

// registry binds the registry contract with the current ABI document.
func (s *service) registry(ctx context.Context) (*registry.Registry, error) {
	var parsed abi.ABI
	if s.config.ABIURL == "" {
		def, err := registry.MetaData.GetAbi()
		if err != nil {
			return nil, err
		}
		parsed = *def
	} else {
		var err error
		if parsed, err = s.abis.Fetch(ctx, s.config.ABIURL); err != nil {
			return nil, err
		}
	}
	return registry.New(s.config.Registry, parsed, s.backend)
}

// resolve validates the target and looks the function up in the registry.
func (s *service) resolve(ctx context.Context, req *Request) (*registry.Registry, common.Address, *registry.FunctionData, error) {
	if !argconv.IsAddress(req.Target) {
		return nil, common.Address{}, nil, fmt.Errorf("Invalid address: %s", req.Target)
	}
	target := common.HexToAddress(req.Target)

	reg, err := s.registry(ctx)
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	fd, err := reg.FunctionData(ctx, target, req.Function)
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	return reg, target, fd, nil
}

// Reader performs read-only calls of registered functions.
type Reader struct {
	service
}

// NewReader creates a Reader resolving calls through the registry configured
// in config.
func NewReader(config Config, abis ABISource, backend bind.ContractBackend) *Reader {
	return &Reader{service{config: config, abis: abis, backend: backend}}
}

// Call converts the positional JSON arguments in req.Body, forwards the call
// through the registry and returns the decoded result keyed by name.
func (r *Reader) Call(ctx context.Context, req *Request) (map[string]string, error) {
	if r.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()
	}
	values, err := argconv.ParseList(req.Body)
	if err != nil {
		return nil, err
	}
	reg, target, fd, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	args, err := argconv.ParseTypes(fd.ArgTypes, fd.ArgNames)
	if err != nil {
		return nil, err
	}
	converted, err := argconv.Positional(values, args, argconv.Lenient)
	if err != nil {
		return nil, err
	}
	params, err := argconv.Encode(args, converted)
	if err != nil {
		return nil, err
	}
	ok, result, err := reg.CallFunction(ctx, target, req.Function, params)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCallFailed
	}
	returns := args
	if len(req.Returns) > 0 {
		if returns, err = argconv.ParseTypes(req.Returns, nil); err != nil {
			return nil, err
		}
	}
	log.Debug("Forwarded contract call", "target", target, "function", req.Function, "selector", common.Bytes2Hex(fd.Selector[:]), "result", len(result))
	return argconv.Decode(returns, result)
}

// Writer submits transactions invoking registered functions.
type Writer struct {
	service
	deploy bind.DeployBackend
	opts   *bind.TransactOpts

	// The nonce is derived from the pending state, so submissions are
	// serialised until the node has accepted the previous transaction.
	sendLock sync.Mutex
}

// NewWriter creates a Writer signing with opts.
func NewWriter(config Config, abis ABISource, backend Backend, opts *bind.TransactOpts) *Writer {
	return &Writer{
		service: service{config: config, abis: abis, backend: backend},
		deploy:  backend,
		opts:    opts,
	}
}

// From returns the account write transactions are sent from.
func (w *Writer) From() common.Address {
	return w.opts.From
}

// Execute converts the named JSON arguments in req.Body, submits a
// transaction through the registry and waits for its receipt.
func (w *Writer) Execute(ctx context.Context, req *Request) (*types.Receipt, error) {
	values, err := argconv.ParseObject(req.Body)
	if err != nil {
		return nil, err
	}
	reg, target, fd, err := w.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	args, err := argconv.ParseTypes(fd.ArgTypes, fd.ArgNames)
	if err != nil {
		return nil, err
	}
	converted, err := argconv.Named(values, args, argconv.Strict)
	if err != nil {
		return nil, err
	}
	params, err := argconv.Encode(args, converted)
	if err != nil {
		return nil, err
	}
	tx, err := w.send(ctx, reg, target, req.Function, params)
	if err != nil {
		return nil, err
	}
	log.Info("Submitted contract transaction", "target", target, "function", req.Function, "hash", tx.Hash(), "nonce", tx.Nonce())

	if w.config.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.ReceiptTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(ctx, w.deploy, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for transaction %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTxFailed, tx.Hash().Hex())
	}
	return receipt, nil
}

func (w *Writer) send(ctx context.Context, reg *registry.Registry, target common.Address, function string, params []byte) (*types.Transaction, error) {
	w.sendLock.Lock()
	defer w.sendLock.Unlock()

	opts := *w.opts
	opts.Context = ctx
	return reg.ExecuteFunction(&opts, target, function, params)
}

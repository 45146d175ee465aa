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

// Package registry binds the Ensis registry contract, which maps a target
// contract and function name to the function's selector and parameter list and
// forwards encoded calls to the target.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	methodFunctionData = "getFunctionData"
	methodCall         = "callContractFunction"
	methodExecute      = "executeFunction"
)

// ErrMissingMethod is returned when the registry ABI lacks one of the methods
// the gateway relies on.
var ErrMissingMethod = errors.New("registry ABI is missing method")

// FunctionData describes a function registered for a target contract.
type FunctionData struct {
	Selector [4]byte
	Name     string // empty when the registry does not report it
	ArgTypes []string
	ArgNames []string
}

// Registry is a binding to a deployed registry contract.
type Registry struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	named    bool // getFunctionData reports the function name
}

// New binds the registry deployed at address. The ABI is checked for the
// methods and return shapes the gateway uses.
func New(address common.Address, parsed abi.ABI, backend bind.ContractBackend) (*Registry, error) {
	named, err := checkABI(parsed)
	if err != nil {
		return nil, err
	}
	return &Registry{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		named:    named,
	}, nil
}

// checkABI validates the registry interface. getFunctionData comes in two
// shapes: (bytes4, string[], string[]) and (bytes4, string, string[], string[]).
func checkABI(parsed abi.ABI) (named bool, err error) {
	for _, name := range []string{methodFunctionData, methodCall, methodExecute} {
		if _, ok := parsed.Methods[name]; !ok {
			return false, fmt.Errorf("%w %s", ErrMissingMethod, name)
		}
	}
	outputs := parsed.Methods[methodFunctionData].Outputs
	want := []string{"bytes4", "string[]", "string[]"}
	if len(outputs) == 4 {
		want = []string{"bytes4", "string", "string[]", "string[]"}
	}
	if err := checkOutputs(methodFunctionData, outputs, want); err != nil {
		return false, err
	}
	if err := checkOutputs(methodCall, parsed.Methods[methodCall].Outputs, []string{"bool", "bytes"}); err != nil {
		return false, err
	}
	return len(outputs) == 4, nil
}

func checkOutputs(method string, outputs abi.Arguments, want []string) error {
	if len(outputs) != len(want) {
		return fmt.Errorf("registry method %s returns %d values, want %d", method, len(outputs), len(want))
	}
	for i, out := range outputs {
		if out.Type.String() != want[i] {
			return fmt.Errorf("registry method %s output %d is %s, want %s", method, i, out.Type, want[i])
		}
	}
	return nil
}

// Address returns the address of the bound registry.
func (r *Registry) Address() common.Address {
	return r.address
}

// FunctionData asks the registry for the selector and parameters of the
// function called name on target.
func (r *Registry) FunctionData(ctx context.Context, target common.Address, name string) (*FunctionData, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodFunctionData, target, name); err != nil {
		return nil, fmt.Errorf("%s: %w", methodFunctionData, err)
	}
	fd := &FunctionData{Selector: out[0].([4]byte)}
	rest := out[1:]
	if r.named {
		fd.Name = rest[0].(string)
		rest = rest[1:]
	}
	fd.ArgTypes = rest[0].([]string)
	fd.ArgNames = rest[1].([]string)
	if len(fd.ArgTypes) != len(fd.ArgNames) {
		return nil, fmt.Errorf("registry returned %d argument types but %d names", len(fd.ArgTypes), len(fd.ArgNames))
	}
	return fd, nil
}

// CallFunction performs a read-only call of name on target through the
// registry. params is the ABI-encoded parameter tuple without selector.
func (r *Registry) CallFunction(ctx context.Context, target common.Address, name string, params []byte) (bool, []byte, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodCall, target, name, params); err != nil {
		return false, nil, fmt.Errorf("%s: %w", methodCall, err)
	}
	return out[0].(bool), out[1].([]byte), nil
}

// ExecuteFunction submits a transaction invoking name on target through the
// registry.
func (r *Registry) ExecuteFunction(opts *bind.TransactOpts, target common.Address, name string, params []byte) (*types.Transaction, error) {
	tx, err := r.contract.Transact(opts, methodExecute, target, name, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", methodExecute, err)
	}
	return tx, nil
}

// Deploy publishes a new registry contract with the given initial price.
func Deploy(opts *bind.TransactOpts, backend bind.ContractBackend, parsed abi.ABI, bytecode []byte, initialPrice *big.Int) (common.Address, *types.Transaction, error) {
	if len(bytecode) == 0 {
		return common.Address{}, nil, errors.New("registry bytecode is empty")
	}
	if n := len(parsed.Constructor.Inputs); n != 1 {
		return common.Address{}, nil, fmt.Errorf("registry constructor takes %d parameters, want 1", n)
	}
	address, tx, _, err := bind.DeployContract(opts, parsed, bytecode, backend, initialPrice)
	if err != nil {
		return common.Address{}, nil, err
	}
	return address, tx, nil
}

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

package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ensis-project/ensis/argconv"
	"github.com/ensis-project/ensis/registry"
	"github.com/ensis-project/ensis/registry/registrytest"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000e5515")
	targetAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	ownerAddr    = common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7")
	testKey, _   = crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
)

// staticABIs serves one document for every location and counts fetches.
type staticABIs struct {
	abi     abi.ABI
	err     error
	fetches int
}

func (s *staticABIs) Fetch(ctx context.Context, location string) (abi.ABI, error) {
	s.fetches++
	return s.abi, s.err
}

func pack(t *testing.T, types, names []string, values ...interface{}) []byte {
	t.Helper()
	args, err := argconv.ParseTypes(types, names)
	require.NoError(t, err)
	blob, err := args.Pack(values...)
	require.NoError(t, err)
	return blob
}

type testEnv struct {
	backend *registrytest.Backend
	config  Config
	reader  *Reader
	writer  *Writer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := registrytest.NewBackend(registryAddr, nil)
	backend.Register(targetAddr, "getItem", registrytest.Function{
		Selector: [4]byte{0x01, 0x02, 0x03, 0x04},
		ArgTypes: []string{"uint256", "string"},
		ArgNames: []string{"id", "label"},
		Success:  true,
		Result:   pack(t, []string{"uint256", "string"}, nil, big.NewInt(7), "seven"),
	})
	backend.Register(targetAddr, "setOwner", registrytest.Function{
		Selector: [4]byte{0x13, 0xaf, 0x40, 0x35},
		ArgTypes: []string{"address", "bool"},
		ArgNames: []string{"owner", "active"},
		Success:  true,
	})
	backend.Register(targetAddr, "broken", registrytest.Function{
		ArgTypes: []string{},
		ArgNames: []string{},
		Success:  false,
	})
	config := DefaultConfig
	config.Registry = registryAddr
	config.ABIURL = ""

	opts, err := bind.NewKeyedTransactorWithChainID(testKey, backend.ChainID())
	require.NoError(t, err)

	return &testEnv{
		backend: backend,
		config:  config,
		reader:  NewReader(config, nil, backend),
		writer:  NewWriter(config, nil, backend, opts),
	}
}

func TestReaderCall(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.reader.Call(context.Background(), &Request{
		Target:   targetAddr.Hex(),
		Function: "getItem",
		Body:     []byte(`[42, "x"]`),
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"id": "7", "label": "seven"}, result)

	calls := env.backend.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, targetAddr, calls[0].Target)
	require.Equal(t, "getItem", calls[0].Name)
	require.Equal(t, pack(t, []string{"uint256", "string"}, nil, big.NewInt(42), "x"), calls[0].Params)
}

func TestReaderCallLenient(t *testing.T) {
	env := newTestEnv(t)

	// Decimal strings and non-string scalars are accepted on the read path.
	_, err := env.reader.Call(context.Background(), &Request{
		Target:   strings.ToLower(targetAddr.Hex()),
		Function: "getItem",
		Body:     []byte(`["0x2a", 5]`),
	})
	require.NoError(t, err)
	calls := env.backend.Calls()
	require.Equal(t, pack(t, []string{"uint256", "string"}, nil, big.NewInt(42), "5"), calls[0].Params)
}

func TestReaderCallReturns(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.reader.Call(context.Background(), &Request{
		Target:   targetAddr.Hex(),
		Function: "getItem",
		Body:     []byte(`[1, ""]`),
		Returns:  []string{"uint", "string"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"0": "7", "1": "seven"}, result)
}

func TestReaderCallErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		target, function, body string
		err                    string
	}{
		{targetAddr.Hex(), "getItem", `[1]`, "Expected 2 arguments, but got 1"},
		{targetAddr.Hex(), "getItem", `{"id": 1}`, "invalid arguments: expected JSON array"},
		{targetAddr.Hex(), "getItem", `[1, "a"`, "unexpected EOF"},
		{targetAddr.Hex(), "getItem", `[-1, "a"]`, "invalid uint256 value"},
		{"0x1234", "getItem", `[]`, "Invalid address: 0x1234"},
		{targetAddr.Hex(), "unknown", `[]`, "function not registered"},
		{targetAddr.Hex(), "broken", ``, "Contract call failed"},
	}
	for _, test := range tests {
		_, err := env.reader.Call(context.Background(), &Request{Target: test.target, Function: test.function, Body: []byte(test.body)})
		require.ErrorContains(t, err, test.err, "%s %s", test.function, test.body)
	}

	_, err := env.reader.Call(context.Background(), &Request{Target: targetAddr.Hex(), Function: "broken"})
	require.True(t, errors.Is(err, ErrCallFailed))
}

func TestReaderRemoteABI(t *testing.T) {
	env := newTestEnv(t)
	parsed, err := registry.MetaData.GetAbi()
	require.NoError(t, err)

	source := &staticABIs{abi: *parsed}
	config := env.config
	config.ABIURL = "https://example.org/ensis.json"
	reader := NewReader(config, source, env.backend)

	_, err = reader.Call(context.Background(), &Request{Target: targetAddr.Hex(), Function: "getItem", Body: []byte(`[1, "a"]`)})
	require.NoError(t, err)
	require.Equal(t, 1, source.fetches)

	source.err = errors.New("fetching ABI from https://example.org/ensis.json: 404 Not Found")
	_, err = reader.Call(context.Background(), &Request{Target: targetAddr.Hex(), Function: "getItem", Body: []byte(`[1, "a"]`)})
	require.ErrorContains(t, err, "404 Not Found")

	// A document without the registry interface cannot be bound.
	source.err = nil
	source.abi = abi.ABI{}
	_, err = reader.Call(context.Background(), &Request{Target: targetAddr.Hex(), Function: "getItem", Body: []byte(`[1, "a"]`)})
	require.True(t, errors.Is(err, registry.ErrMissingMethod), "unexpected error: %v", err)
}

func TestWriterExecute(t *testing.T) {
	env := newTestEnv(t)

	receipt, err := env.writer.Execute(context.Background(), &Request{
		Target:   targetAddr.Hex(),
		Function: "setOwner",
		Body:     []byte(`{"owner": "` + ownerAddr.Hex() + `", "active": true}`),
	})
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	sent := env.backend.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, sent[0].Hash(), receipt.TxHash)
	require.Equal(t, registryAddr, *sent[0].To())
	require.Equal(t, crypto.PubkeyToAddress(testKey.PublicKey), env.writer.From())

	calls := env.backend.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "setOwner", calls[0].Name)
	require.Equal(t, pack(t, []string{"address", "bool"}, nil, ownerAddr, true), calls[0].Params)

	// Nonces advance across submissions.
	_, err = env.writer.Execute(context.Background(), &Request{
		Target:   targetAddr.Hex(),
		Function: "setOwner",
		Body:     []byte(`{"owner": "` + ownerAddr.Hex() + `", "active": false}`),
	})
	require.NoError(t, err)
	sent = env.backend.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, uint64(1), sent[1].Nonce())
}

func TestWriterExecuteErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		body string
		err  string
	}{
		{`{"owner": "` + ownerAddr.Hex() + `"}`, "Missing argument: active"},
		{`{"owner": "` + ownerAddr.Hex() + `", "active": "true"}`, "Invalid boolean for argument active"},
		{`{"owner": "nope", "active": true}`, "Invalid address for argument owner"},
		{`[]`, "invalid arguments: expected JSON object"},
		{``, "Missing argument: owner"},
	}
	for _, test := range tests {
		_, err := env.writer.Execute(context.Background(), &Request{Target: targetAddr.Hex(), Function: "setOwner", Body: []byte(test.body)})
		require.ErrorContains(t, err, test.err, "body %s", test.body)
	}
	require.Empty(t, env.backend.Sent())
}

func TestWriterExecuteReverted(t *testing.T) {
	env := newTestEnv(t)
	env.backend.RevertTransactions(true)

	req := &Request{
		Target:   targetAddr.Hex(),
		Function: "setOwner",
		Body:     []byte(`{"owner": "` + ownerAddr.Hex() + `", "active": true}`),
	}
	receipt, err := env.writer.Execute(context.Background(), req)
	require.Nil(t, receipt)
	require.True(t, errors.Is(err, ErrTxFailed), "unexpected error: %v", err)

	sent := env.backend.Sent()
	require.Len(t, sent, 1)
	require.ErrorContains(t, err, sent[0].Hash().Hex())

	// A failed transaction still consumes its nonce.
	env.backend.RevertTransactions(false)
	_, err = env.writer.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, uint64(1), env.backend.Sent()[1].Nonce())
}

func TestWriterExecuteConcurrent(t *testing.T) {
	const n = 16
	env := newTestEnv(t)

	var (
		wg   sync.WaitGroup
		errs = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.writer.Execute(context.Background(), &Request{
				Target:   targetAddr.Hex(),
				Function: "setOwner",
				Body:     []byte(fmt.Sprintf(`{"owner": "%s", "active": %t}`, ownerAddr.Hex(), i%2 == 0)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sent := env.backend.Sent()
	require.Len(t, sent, n)
	seen := make(map[uint64]bool)
	for _, tx := range sent {
		require.Less(t, tx.Nonce(), uint64(n))
		require.False(t, seen[tx.Nonce()], "nonce %d reused", tx.Nonce())
		seen[tx.Nonce()] = true
	}
	require.Len(t, env.backend.Calls(), n)
}

func TestCallTimeout(t *testing.T) {
	env := newTestEnv(t)
	config := env.config
	config.CallTimeout = time.Nanosecond
	reader := NewReader(config, nil, blockingBackend{env.backend})

	_, err := reader.Call(context.Background(), &Request{Target: targetAddr.Hex(), Function: "getItem", Body: []byte(`[1, "a"]`)})
	require.True(t, errors.Is(err, context.DeadlineExceeded), "unexpected error: %v", err)
}

// blockingBackend waits for the call context to end before answering.
type blockingBackend struct {
	*registrytest.Backend
}

func (b blockingBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

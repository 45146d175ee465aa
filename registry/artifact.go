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

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ensis-project/ensis/abistore"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is the subset of a Hardhat compilation artifact needed to deploy
// the registry.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

// LoadArtifact reads a Hardhat artifact from path. An artifact without an ABI
// falls back to MetaData.
func LoadArtifact(path string) (*Artifact, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		ContractName string          `json:"contractName"`
		Bytecode     json.RawMessage `json:"bytecode"`
	}
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bytecode, err := bytecodeString(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if bytecode == "" || bytecode == "0x" {
		return nil, fmt.Errorf("%s: artifact has no bytecode", path)
	}
	if !strings.HasPrefix(bytecode, "0x") {
		bytecode = "0x" + bytecode
	}
	code, err := hexutil.Decode(bytecode)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid bytecode: %w", path, err)
	}
	parsed, err := abistore.Parse(blob)
	if errors.Is(err, abistore.ErrNoABI) {
		var def *abi.ABI
		if def, err = MetaData.GetAbi(); err == nil {
			parsed = *def
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Artifact{ContractName: raw.ContractName, ABI: parsed, Bytecode: code}, nil
}

// bytecodeString extracts the creation code from a Hardhat ("0x...") or
// Foundry ({"object": "0x..."}) artifact.
func bytecodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var code string
	if err := json.Unmarshal(raw, &code); err == nil {
		return code, nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("invalid bytecode field: %w", err)
	}
	return obj.Object, nil
}

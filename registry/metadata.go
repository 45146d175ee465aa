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

import "github.com/ethereum/go-ethereum/accounts/abi/bind"

// MetaData contains the interface of the Ensis registry contract. Deployments
// that publish their own ABI document override it at runtime.
var MetaData = &bind.MetaData{
	ABI: `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"initialPrice","type":"uint256"}]},
	{"type":"function","name":"price","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getFunctionData","stateMutability":"view",
		"inputs":[{"name":"target","type":"address"},{"name":"functionName","type":"string"}],
		"outputs":[{"name":"selector","type":"bytes4"},{"name":"name","type":"string"},{"name":"argTypes","type":"string[]"},{"name":"argNames","type":"string[]"}]},
	{"type":"function","name":"callContractFunction","stateMutability":"view",
		"inputs":[{"name":"target","type":"address"},{"name":"functionName","type":"string"},{"name":"params","type":"bytes"}],
		"outputs":[{"name":"success","type":"bool"},{"name":"result","type":"bytes"}]},
	{"type":"function","name":"executeFunction","stateMutability":"nonpayable",
		"inputs":[{"name":"target","type":"address"},{"name":"functionName","type":"string"},{"name":"params","type":"bytes"}],
		"outputs":[{"name":"success","type":"bool"},{"name":"result","type":"bytes"}]},
	{"type":"event","name":"FunctionExecuted","anonymous":false,
		"inputs":[{"name":"target","type":"address","indexed":true},{"name":"functionName","type":"string","indexed":false},{"name":"success","type":"bool","indexed":false}]}
]`,
}

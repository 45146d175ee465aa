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
	"time"

	"github.com/ensis-project/ensis/abistore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	DefaultHTTPHost    = "localhost" // Default host interface for the HTTP server
	DefaultHTTPPort    = 8645        // Default TCP port for the HTTP server
	DefaultReadPrefix  = "/read"     // Default path prefix of the read endpoint
	DefaultWritePrefix = "/write"    // Default path prefix of the write endpoint
)

// Config contains the chain side settings of the gateway.
type Config struct {
	// RPCURL is the JSON-RPC endpoint of the chain node (http, ws or ipc).
	RPCURL string

	// Registry is the address of the deployed registry contract.
	Registry common.Address

	// ABIURL locates the registry ABI document. If empty, the interface
	// compiled into the binary is used.
	ABIURL string `toml:",omitempty"`

	// IPFSGateway resolves ipfs:// ABI locations.
	IPFSGateway string

	// ABICacheTTL is how long a fetched ABI document is reused. Zero fetches
	// the document on every request.
	ABICacheTTL time.Duration

	// CallTimeout bounds the chain interaction of a read request.
	CallTimeout time.Duration

	// ReceiptTimeout bounds how long a write request waits for its receipt.
	ReceiptTimeout time.Duration

	// KeyStoreFile and PasswordFile select an encrypted key for signing
	// write transactions. A raw private key can be supplied through the
	// command line or environment instead and is never persisted.
	KeyStoreFile string `toml:",omitempty"`
	PasswordFile string `toml:",omitempty"`
	PrivateKey   string `toml:"-"`
}

// HTTPConfig contains the settings of the HTTP server.
type HTTPConfig struct {
	// Host is the interface the server listens on. An empty host disables
	// the server.
	Host string

	// Port is the TCP port of the server. Zero picks a random port.
	Port int `toml:",omitempty"`

	// ReadPrefix and WritePrefix are the path prefixes of the read and write
	// endpoints. The remainder of the path is /<contract-address>/<function-name>.
	ReadPrefix  string
	WritePrefix string

	// Cors is the list of origins allowed to issue cross-origin requests.
	Cors []string `toml:",omitempty"`

	// VirtualHosts is the list of host names accepted in the Host header.
	// "*" accepts any host. Requests by IP address are always accepted.
	VirtualHosts []string `toml:",omitempty"`

	// JWTSecret is the path to a hex encoded 32 byte secret. When set, the
	// write endpoint requires an HS256 bearer token.
	JWTSecret string `toml:",omitempty"`

	// RateLimit is the number of requests per second the server accepts.
	// Zero disables limiting.
	RateLimit float64 `toml:",omitempty"`
	RateBurst int     `toml:",omitempty"`

	// BodyLimit caps the size of a request body in bytes.
	BodyLimit int64

	Timeouts rpc.HTTPTimeouts
}

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	RPCURL:         "http://localhost:8545",
	IPFSGateway:    abistore.DefaultConfig.IPFSGateway,
	ABICacheTTL:    abistore.DefaultConfig.CacheTTL,
	CallTimeout:    30 * time.Second,
	ReceiptTimeout: 2 * time.Minute,
}

// DefaultHTTPConfig contains reasonable default HTTP settings.
var DefaultHTTPConfig = HTTPConfig{
	Host:         DefaultHTTPHost,
	Port:         DefaultHTTPPort,
	ReadPrefix:   DefaultReadPrefix,
	WritePrefix:  DefaultWritePrefix,
	VirtualHosts: []string{"localhost"},
	BodyLimit:    1024 * 1024,
	Timeouts:     defaultTimeouts(),
}

// defaultTimeouts extends the write timeout so a response can outlast the
// receipt wait of a write request.
func defaultTimeouts() rpc.HTTPTimeouts {
	t := rpc.DefaultHTTPTimeouts
	t.WriteTimeout = DefaultConfig.ReceiptTimeout + 30*time.Second
	return t
}

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

// Package abistore retrieves contract ABI documents from remote or local
// locations and keeps recently used ones in memory.
package abistore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"golang.org/x/sync/singleflight"
)

const maxDocumentSize = 8 * 1024 * 1024

var (
	hitMeter   = metrics.NewRegisteredMeter("abistore/hit", nil)
	missMeter  = metrics.NewRegisteredMeter("abistore/miss", nil)
	fetchTimer = metrics.NewRegisteredResettingTimer("abistore/fetch", nil)
)

var (
	// ErrNoABI is returned when a fetched document holds no recognisable ABI.
	ErrNoABI = errors.New("document carries no ABI")

	// ErrNoLocation is returned when no ABI location is configured.
	ErrNoLocation = errors.New("no ABI location configured")
)

// Config contains the settings of a Fetcher.
type Config struct {
	// IPFSGateway is the HTTP gateway used to resolve ipfs:// locations.
	IPFSGateway string

	// CacheSize is the number of parsed documents kept in memory.
	CacheSize int

	// CacheTTL is how long a parsed document is served from memory. Zero
	// disables caching.
	CacheTTL time.Duration

	// Timeout bounds a single remote fetch.
	Timeout time.Duration
}

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	IPFSGateway: "https://ipfs.io/ipfs/",
	CacheSize:   32,
	CacheTTL:    5 * time.Minute,
	Timeout:     15 * time.Second,
}

type entry struct {
	abi     abi.ABI
	fetched time.Time
}

// Fetcher downloads and parses ABI documents. It is safe for concurrent use.
type Fetcher struct {
	config Config
	client *http.Client
	cache  *lru.Cache[string, entry]
	group  singleflight.Group
	now    func() time.Time
}

// New creates a Fetcher. A nil client selects one with the configured timeout.
func New(config Config, client *http.Client) *Fetcher {
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultConfig.CacheSize
	}
	if config.IPFSGateway == "" {
		config.IPFSGateway = DefaultConfig.IPFSGateway
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &Fetcher{
		config: config,
		client: client,
		cache:  lru.NewCache[string, entry](config.CacheSize),
		now:    time.Now,
	}
}

// Fetch returns the parsed ABI found at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) (abi.ABI, error) {
	if location == "" {
		return abi.ABI{}, ErrNoLocation
	}
	if f.config.CacheTTL > 0 {
		if e, ok := f.cache.Get(location); ok && f.now().Sub(e.fetched) < f.config.CacheTTL {
			hitMeter.Mark(1)
			return e.abi, nil
		}
	}
	missMeter.Mark(1)

	// Concurrent requests for the same document share one download. The
	// download outlives a single caller's cancellation.
	v, err, shared := f.group.Do(location, func() (interface{}, error) {
		start := time.Now()
		defer fetchTimer.UpdateSince(start)

		doc, err := f.read(context.WithoutCancel(ctx), location)
		if err != nil {
			return nil, err
		}
		parsed, err := Parse(doc)
		if err != nil {
			return nil, fmt.Errorf("parsing ABI from %s: %w", location, err)
		}
		if f.config.CacheTTL > 0 {
			f.cache.Add(location, entry{abi: parsed, fetched: f.now()})
		}
		log.Debug("Fetched ABI document", "location", location, "methods", len(parsed.Methods), "elapsed", time.Since(start))
		return parsed, nil
	})
	if err != nil {
		return abi.ABI{}, err
	}
	if shared {
		log.Trace("Shared ABI download", "location", location)
	}
	return v.(abi.ABI), nil
}

// Purge drops every cached document.
func (f *Fetcher) Purge() {
	f.cache.Purge()
}

// read loads the raw document behind location. Supported forms are http(s)
// URLs, ipfs:// URIs resolved through the configured gateway, file:// URLs
// and plain filesystem paths.
func (f *Fetcher) read(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path, possibly with a windows drive letter.
		return readFile(location)
	}
	switch u.Scheme {
	case "http", "https":
		return f.get(ctx, location)
	case "ipfs":
		return f.get(ctx, strings.TrimSuffix(f.config.IPFSGateway, "/")+"/"+strings.TrimPrefix(location, "ipfs://"))
	case "file":
		return readFile(u.Path)
	default:
		return nil, fmt.Errorf("unsupported ABI location scheme %q", u.Scheme)
	}
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching ABI: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching ABI from %s: %s", target, resp.Status)
	}
	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading ABI from %s: %w", target, err)
	}
	if len(doc) > maxDocumentSize {
		return nil, fmt.Errorf("ABI document at %s exceeds %d bytes", target, maxDocumentSize)
	}
	return doc, nil
}

func readFile(path string) ([]byte, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ABI: %w", err)
	}
	return doc, nil
}

// Parse decodes an ABI document. Accepted shapes are a bare ABI array, a
// compiler or Hardhat artifact with an "abi" field, a solc standard JSON output
// ("output.abi") and an explorer response whose "result" holds the ABI as a
// JSON string.
func Parse(doc []byte) (abi.ABI, error) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return abi.ABI{}, ErrNoABI
	}
	switch doc[0] {
	case '[':
		return abi.JSON(bytes.NewReader(doc))
	case '"':
		var inner string
		if err := json.Unmarshal(doc, &inner); err != nil {
			return abi.ABI{}, err
		}
		return Parse([]byte(inner))
	case '{':
		var wrapper struct {
			ABI    json.RawMessage `json:"abi"`
			Result json.RawMessage `json:"result"`
			Output struct {
				ABI json.RawMessage `json:"abi"`
			} `json:"output"`
		}
		if err := json.Unmarshal(doc, &wrapper); err != nil {
			return abi.ABI{}, err
		}
		for _, raw := range []json.RawMessage{wrapper.ABI, wrapper.Output.ABI, wrapper.Result} {
			if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
				return Parse(raw)
			}
		}
	}
	return abi.ABI{}, ErrNoABI
}

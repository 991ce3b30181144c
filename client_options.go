// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package electrum

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/blinklabs-io/goelectrum/headerstore"
)

// ClientOptionFunc is a type that represents functions that modify the
// Client config
type ClientOptionFunc func(*Client)

// WithServers specifies an inline server catalog
func WithServers(catalog map[string]ServerEntry) ClientOptionFunc {
	return func(c *Client) {
		c.catalog = catalog
	}
}

// WithServerFile specifies the path of a JSON server catalog file
func WithServerFile(path string) ClientOptionFunc {
	return func(c *Client) {
		c.catalogPath = path
	}
}

// WithUseTls specifies whether to connect to servers over TLS. The default
// is plaintext TCP
func WithUseTls(useTls bool) ClientOptionFunc {
	return func(c *Client) {
		c.useTls = useTls
	}
}

// WithTlsConfig specifies the TLS config used when dialing servers.
// Certificate verification policy is up to the caller
func WithTlsConfig(cfg *tls.Config) ClientOptionFunc {
	return func(c *Client) {
		c.tlsConfig = cfg
	}
}

// WithTimeout specifies the per-request timeout within a batch
func WithTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithDialTimeout specifies the timeout for each connection attempt
func WithDialTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *Client) {
		c.dialTimeout = timeout
	}
}

// WithMaxServers specifies the maximum number of distinct hosts tried per
// failover sequence
func WithMaxServers(maxServers int) ClientOptionFunc {
	return func(c *Client) {
		c.maxServers = maxServers
	}
}

// WithClientName specifies the client identity advertised during the
// handshake
func WithClientName(name string) ClientOptionFunc {
	return func(c *Client) {
		c.clientName = name
	}
}

// WithProtocolVersions specifies the protocol version range advertised
// during the handshake
func WithProtocolVersions(minVersion string, maxVersion string) ClientOptionFunc {
	return func(c *Client) {
		c.protoMin = minVersion
		c.protoMax = maxVersion
	}
}

// WithLogger specifies the logger to use. If none is provided,
// slog.Default() is used
func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithErrorChan specifies the error channel to use. If none is provided,
// one will be created
func WithErrorChan(errorChan chan error) ClientOptionFunc {
	return func(c *Client) {
		c.errorChan = errorChan
	}
}

// WithHeaderStore specifies a header store. When set, block headers from
// fetches and header subscription pushes are persisted to it
func WithHeaderStore(store *headerstore.Store) ClientOptionFunc {
	return func(c *Client) {
		c.headers = store
	}
}

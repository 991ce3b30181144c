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

// Package electrum implements a client for the ElectrumX blockchain indexing
// protocol (JSON-RPC 2.0 over persistent TCP/TLS).
//
// The client maintains exactly one active connection chosen at random from a
// catalog of candidate servers. On transport errors or request timeouts it
// transparently fails over to another server, bounded by a maximum number of
// distinct hosts per sequence. Batches of requests are all-or-nothing with
// respect to server identity: if any request in a batch fails, the whole
// batch is resubmitted against the replacement server.
//
// This package is the main entry point into this library. The other packages
// can be used outside of this one, but it's not a primary design goal.
package electrum

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/goelectrum/headerstore"
	"github.com/blinklabs-io/goelectrum/jsonrpc"
	"github.com/blinklabs-io/goelectrum/session"
)

// The Client type maintains a connection to one of several candidate
// ElectrumX servers and fails over between them
type Client struct {
	registry    *ServerRegistry
	catalog     map[string]ServerEntry
	catalogPath string
	useTls      bool
	tlsConfig   *tls.Config
	timeout     time.Duration
	dialTimeout time.Duration
	maxServers  int
	clientName  string
	protoMin    string
	protoMax    string
	logger      *slog.Logger
	errorChan   chan error
	headers     *headerstore.Store
	fees        *feeCache
	doneChan    chan struct{}
	onceClose   sync.Once

	mutex          sync.Mutex
	sess           *session.Session
	currentHost    string
	failedHosts    []string
	serverSoftware string
	serverProtocol string
}

// New returns a new Client object with the specified options. No connection
// is made until Connect() or the first request
func New(options ...ClientOptionFunc) (*Client, error) {
	c := &Client{
		timeout:     DefaultTimeout,
		dialTimeout: DefaultDialTimeout,
		maxServers:  DefaultMaxServers,
		clientName:  DefaultClientName,
		protoMin:    ProtocolVersionMin,
		protoMax:    ProtocolVersionMax,
		doneChan:    make(chan struct{}),
	}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.errorChan == nil {
		c.errorChan = make(chan error, 10)
	}
	if c.fees == nil {
		c.fees = newFeeCache(time.Now)
	}
	if c.registry == nil {
		switch {
		case c.catalogPath != "":
			registry, err := NewServerRegistryFromFile(c.catalogPath, c.useTls)
			if err != nil {
				return nil, err
			}
			c.registry = registry
		case c.catalog != nil:
			c.registry = NewServerRegistry(c.catalog, c.useTls)
		default:
			return nil, errors.New("no server catalog provided")
		}
	}
	return c, nil
}

// ErrorChan returns the channel for asynchronous fatal errors (connection
// loss outside a request, push protocol violations)
func (c *Client) ErrorChan() <-chan error {
	return c.errorChan
}

// ServerVersion returns the software string and negotiated protocol version
// reported by the current server during the handshake
func (c *Client) ServerVersion() (string, string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.serverSoftware, c.serverProtocol
}

// CurrentServer returns the host of the currently connected server, or an
// empty string if not connected
func (c *Client) CurrentServer() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.currentHost
}

// Connect establishes the initial connection to a randomly chosen server.
// An error will be returned if no server can be reached within the
// configured attempt bound
func (c *Client) Connect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.sess != nil {
		return errors.New("a connection was already established")
	}
	return c.changeServer()
}

// Close shuts down the client and any active connection. Safe to call
// multiple times
func (c *Client) Close() error {
	var err error
	c.onceClose.Do(func() {
		close(c.doneChan)
		c.mutex.Lock()
		if c.sess != nil {
			err = c.sess.Close()
			c.sess = nil
		}
		c.currentHost = ""
		c.mutex.Unlock()
	})
	return err
}

// ensureSession returns the active session, connecting first if necessary
func (c *Client) ensureSession() (*session.Session, error) {
	select {
	case <-c.doneChan:
		return nil, ErrClientClosed
	default:
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.sess == nil {
		if err := c.changeServer(); err != nil {
			return nil, err
		}
	}
	return c.sess, nil
}

// failover replaces the given failed session with a connection to a fresh
// server. If another caller already replaced it, the existing replacement is
// kept
func (c *Client) failover(failed *session.Session) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.sess != nil && c.sess != failed {
		return nil
	}
	return c.changeServer()
}

// clearFailedHosts resets the failed host set after a fully successful
// batch. Previously failed servers become eligible again for future
// sequences
func (c *Client) clearFailedHosts() {
	c.mutex.Lock()
	c.failedHosts = nil
	c.mutex.Unlock()
}

// markFailed appends a host to the failed set unless already present.
// Caller must hold the mutex
func (c *Client) markFailed(host string) {
	for _, failed := range c.failedHosts {
		if failed == host {
			return
		}
	}
	c.failedHosts = append(c.failedHosts, host)
}

// changeServer closes any current session, marks the current host failed,
// and connects to a freshly chosen server. The number of distinct hosts
// tried across a failover sequence is bounded by maxServers. Caller must
// hold the mutex
func (c *Client) changeServer() error {
	if c.sess != nil {
		// Fully drain the stale connection before a replacement is installed
		c.sess.Close()
		c.sess = nil
	}
	if c.currentHost != "" {
		c.markFailed(c.currentHost)
		c.currentHost = ""
	}
	for {
		select {
		case <-c.doneChan:
			return ErrClientClosed
		default:
		}
		if len(c.failedHosts) >= c.maxServers {
			return fmt.Errorf(
				"%w: %d distinct hosts failed",
				ErrFailoverExhausted,
				len(c.failedHosts),
			)
		}
		server, err := c.registry.PickRandom(c.failedHosts)
		if err != nil {
			return err
		}
		if err := c.connectTo(server); err != nil {
			c.logger.Warn(
				"connection attempt failed",
				"server", server.Address(),
				"error", err,
			)
			c.markFailed(server.Host)
			continue
		}
		c.logger.Info(
			"connected",
			"server", server.Address(),
			"software", c.serverSoftware,
			"protocol", c.serverProtocol,
		)
		return nil
	}
}

// connectTo dials a single server and performs the protocol handshake.
// Caller must hold the mutex
func (c *Client) connectTo(server ServerDescriptor) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	var conn net.Conn
	var err error
	if c.useTls {
		conn, err = tls.DialWithDialer(&dialer, "tcp", server.Address(), c.tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", server.Address())
	}
	if err != nil {
		return err
	}
	sess := session.New(jsonrpc.NewConn(conn), c.logger)
	software, protocol, err := c.handshake(sess)
	if err != nil {
		sess.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}
	c.sess = sess
	c.currentHost = server.Host
	c.serverSoftware = software
	c.serverProtocol = protocol
	// Start goroutine to pass along fatal session errors
	go func() {
		err, ok := <-sess.ErrorChan()
		if !ok || err == nil {
			return
		}
		select {
		case <-c.doneChan:
		case c.errorChan <- err:
		}
	}()
	return nil
}

// handshake performs the server.version protocol version negotiation and
// returns the server software string and negotiated protocol version
func (c *Client) handshake(sess *session.Session) (string, string, error) {
	pending, err := sess.Send(
		"server.version",
		[]any{c.clientName, []any{c.protoMin, c.protoMax}},
	)
	if err != nil {
		return "", "", err
	}
	result, err := pending.Wait(c.timeout)
	if err != nil {
		return "", "", err
	}
	if result.Err != nil {
		return "", "", newRPCError("server.version", result.Err)
	}
	var version []string
	if err := json.Unmarshal(result.Data, &version); err != nil {
		return "", "", fmt.Errorf("malformed server.version result: %w", err)
	}
	if len(version) != 2 {
		return "", "", fmt.Errorf(
			"server.version returned %d values, expected 2",
			len(version),
		)
	}
	return version[0], version[1], nil
}

// reportError delivers a fatal asynchronous error to the consumer
func (c *Client) reportError(err error) {
	select {
	case <-c.doneChan:
	case c.errorChan <- err:
	}
}
